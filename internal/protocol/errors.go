package protocol

import "fmt"

// Error codes shared with the administrative front end and the device
// firmware. Do not renumber.
const (
	CodeMissingClientID  = 100
	CodeMissingLoginInfo = 102
	CodeLoginIncorrect   = 103

	CodeClientOffline       = 200
	CodeClientBusy          = 201
	CodeDuplicateClient     = 202
	CodeClientNotResponding = 203
	CodeSendFailed          = 204
	CodeUnknownDocument     = 205

	CodeInvalidCryptoKey  = 501
	CodeInvalidDataPacket = 502
	CodeUnknownCommand    = 503
	CodeInitFailed        = 510
	CodeDuplicateClientID = 511
)

// Error is a protocol-level failure carrying a wire/API error code.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// NewError builds a coded protocol error.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
