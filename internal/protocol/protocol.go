package protocol

import (
	"fmt"
	"strings"
)

// Verb identifies a device command. The zero value is VerbUnknown so a
// frame that fails to parse never masquerades as a real command.
type Verb int

const (
	VerbUnknown Verb = iota
	VerbInit
	VerbInfo
	VerbPing
	VerbSendReport
	VerbGetReport
	VerbVersion
	VerbDownload
	VerbErrorLog
)

var verbNames = map[string]Verb{
	"INIT": VerbInit,
	"INFO": VerbInfo,
	"PING": VerbPing,
	"SRSP": VerbSendReport,
	"GREQ": VerbGetReport,
	"VERS": VerbVersion,
	"DWNL": VerbDownload,
	"ERRL": VerbErrorLog,
}

func (v Verb) String() string {
	for name, verb := range verbNames {
		if verb == v {
			return name
		}
	}
	return "UNKNOWN"
}

// Frame is one parsed inbound line. For VerbUnknown, Raw holds the whole
// line and Word the first token; correlated report replies arrive this way.
type Frame struct {
	Verb   Verb
	Params string
	Word   string
	Raw    string
}

// Parse splits a newline-stripped wire line into a frame. Verbs are the
// fixed four-letter commands; anything else is an unknown frame, which is
// a legal state (see report correlation), not a parse error.
func Parse(line string) Frame {
	line = strings.TrimRight(line, "\r")

	word, params, _ := strings.Cut(line, " ")
	if verb, ok := verbNames[word]; ok {
		return Frame{Verb: verb, Params: params, Word: word, Raw: line}
	}
	return Frame{Verb: VerbUnknown, Word: word, Raw: line}
}

// SplitPipe splits a pipe-delimited parameter string (INFO payload).
func SplitPipe(params string) []string {
	return strings.Split(params, "|")
}

// OK renders a success response line. Payload may be empty.
func OK(payload string) string {
	if payload == "" {
		return "OK"
	}
	return "OK " + payload
}

// ErrorLine renders an error response line.
func ErrorLine(code int, message string) string {
	return fmt.Sprintf("ERROR %d %s", code, message)
}
