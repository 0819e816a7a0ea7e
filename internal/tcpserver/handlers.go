package tcpserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/config"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/crypto"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/logger"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/protocol"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/session"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/store"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/subscription"
)

// dispatch routes one parsed frame. Every verb is handled explicitly;
// unknown frames go to the correlator first, then get the 503 reply.
func (s *Server) dispatch(sess *session.TCP, frame protocol.Frame) {
	switch frame.Verb {
	case protocol.VerbInit:
		s.handleInit(sess, frame.Params)
	case protocol.VerbInfo:
		s.handleInfo(sess, frame.Params)
	case protocol.VerbPing:
		s.reply(sess, protocol.OK(""))
	case protocol.VerbSendReport:
		s.handleSendReport(sess, frame.Params)
	case protocol.VerbGetReport:
		s.handleGetReport(sess, frame.Params)
	case protocol.VerbVersion:
		s.reply(sess, protocol.OK(s.cfg.ServerVersion))
	case protocol.VerbDownload:
		s.handleDownload(sess, frame.Params)
	case protocol.VerbErrorLog:
		s.handleErrorLog(sess, frame.Params)
	case protocol.VerbUnknown:
		if sess.Slot.Deliver(frame.Raw) {
			return // correlated reply consumed, no response frame
		}
		s.replyError(sess, protocol.CodeUnknownCommand, "Unknown command: "+frame.Word)
	}
}

func (s *Server) reply(sess *session.TCP, line string) {
	if err := sess.Send(line); err != nil {
		logger.Warn("device write failed", map[string]any{
			"remote": sess.Base.Key(),
			"error":  err.Error(),
		})
	}
}

func (s *Server) replyError(sess *session.TCP, code int, message string) {
	s.reply(sess, protocol.ErrorLine(code, message))
}

// handleInit runs the handshake: INIT <apptype> <serial> <version>[ <regkey>]
func (s *Server) handleInit(sess *session.TCP, params string) {
	fields := strings.Fields(params)
	if len(fields) < 3 {
		s.replyError(sess, protocol.CodeInvalidDataPacket, "invalid INIT parameters")
		return
	}

	appType, serial, version := fields[0], fields[1], fields[2]

	if len(fields) > 3 {
		if !crypto.ValidateRegistrationKey(serial, fields[3]) {
			s.replyError(sess, protocol.CodeInvalidCryptoKey, "invalid registration key")
			return
		}
	}

	keyIndex := rand.Intn(crypto.DictionarySize())
	sess.SetHandshake(appType, serial, version, keyIndex, crypto.DeriveKey(keyIndex))

	logger.Info("device handshake", map[string]any{
		"remote":   sess.Base.Key(),
		"serial":   serial,
		"app_type": appType,
	})

	s.reply(sess, protocol.OK(fmt.Sprintf("%d", keyIndex)))
}

// handleInfo resolves the client id through the subscription
// collaborator: INFO <name>|<host>|<apptype>|<version>|<dbtype>
func (s *Server) handleInfo(sess *session.TCP, params string) {
	if sess.State() == session.StateConnected {
		s.replyError(sess, protocol.CodeInitFailed, "handshake required before INFO")
		return
	}

	parts := protocol.SplitPipe(params)
	if len(parts) < 5 {
		s.replyError(sess, protocol.CodeInvalidDataPacket, "invalid INFO parameters")
		return
	}
	// fields beyond the known five are ignored
	name, host, appType, version, dbType := parts[0], parts[1], parts[2], parts[3], parts[4]

	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()

	info, err := s.deps.Subs.Validate(ctx, subscription.Query{
		ObjectID:   sess.Serial,
		ObjectName: name,
		AppType:    appType,
		AppVersion: version,
		DBType:     dbType,
	})
	if err != nil {
		logger.Warn("subscription validation failed", map[string]any{
			"remote": sess.Base.Key(),
			"serial": sess.Serial,
			"error":  err.Error(),
		})
		s.replyError(sess, protocol.CodeInitFailed, "failed to init client id")
		return
	}

	if !s.resolveDuplicate(sess, info.ObjectID) {
		return
	}

	sess.SetDeviceInfo(name, host, appType, version, dbType)
	sess.SetClientID(info.ObjectID, info.Expiry())
	sess.SetState(session.StateReady)

	s.persistDevice(sess)

	logger.Info("device authenticated", map[string]any{
		"remote":    sess.Base.Key(),
		"client_id": info.ObjectID,
	})

	s.reply(sess, protocol.OK(fmt.Sprintf("%s %d", s.cfg.ServerName, time.Now().Unix())))
}

// resolveDuplicate applies the configured policy when another open
// session already holds the client id. Returns false when the current
// session lost and the caller must stop.
func (s *Server) resolveDuplicate(sess *session.TCP, clientID string) bool {
	existing := s.deps.Registry.FindByClientID(clientID)
	if existing == nil || existing == sess {
		return true
	}

	dup := protocol.NewError(protocol.CodeDuplicateClient, "duplicate client %s", clientID)

	switch s.cfg.DuplicatePolicy {
	case config.KeepOld:
		logger.Warn("duplicate client id, keeping existing session", map[string]any{
			"client_id": clientID,
			"loser":     sess.Base.Key(),
		})
		s.replyError(sess, protocol.CodeDuplicateClientID, "duplicate client id")
		sess.FlagDisconnect(dup)
		return false
	default: // KeepNew
		logger.Warn("duplicate client id, dropping existing session", map[string]any{
			"client_id": clientID,
			"loser":     existing.Base.Key(),
		})
		_ = existing.Send(protocol.ErrorLine(protocol.CodeDuplicateClientID, "duplicate client id"))
		existing.FlagDisconnect(dup)
		existing.Close(dup)
		s.deps.Registry.RemoveTCP(existing)
		return true
	}
}

func (s *Server) persistDevice(sess *session.TCP) {
	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()

	status := store.ClientStatus{
		ClientID:   sess.GetClientID(),
		Name:       sess.Name,
		Host:       sess.Host,
		AppType:    sess.AppType,
		AppVersion: sess.AppVersion,
		DBType:     sess.DBType,
		ExpiresAt:  sess.ExpiresAt,
	}

	if err := s.deps.Devices.UpsertDevice(ctx, status); err != nil {
		logger.Error("failed to upsert device", map[string]any{
			"client_id": status.ClientID, "error": err.Error(),
		})
	}
	if err := s.deps.Status.MarkOnline(ctx, status); err != nil {
		logger.Error("failed to mark client online", map[string]any{
			"client_id": status.ClientID, "error": err.Error(),
		})
	}
}

// handleSendReport accepts a device-pushed report:
// SRSP <documentId> <payload>
func (s *Server) handleSendReport(sess *session.TCP, params string) {
	clientID := sess.GetClientID()
	if clientID == "" {
		s.replyError(sess, protocol.CodeMissingClientID, "missing client id")
		return
	}

	documentID, payload, ok := strings.Cut(params, " ")
	if !ok || documentID == "" || payload == "" {
		s.replyError(sess, protocol.CodeInvalidDataPacket, "invalid SRSP parameters")
		return
	}

	if strings.HasPrefix(payload, "ENC:") {
		if plain, err := crypto.Decrypt(strings.TrimPrefix(payload, "ENC:"), sess.SessionKey()); err == nil {
			payload = plain
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()

	rec := &store.Report{
		DocumentID: documentID,
		ClientID:   clientID,
		Requester:  "device",
		Status:     store.StatusCompleted,
		Payload:    payload,
	}
	if err := s.deps.Reports.Create(ctx, rec); err != nil {
		logger.Error("failed to store pushed report", map[string]any{
			"client_id": clientID, "error": err.Error(),
		})
		s.replyError(sess, protocol.CodeSendFailed, "failed to store report")
		return
	}

	s.reply(sess, protocol.OK(rec.ID))
}

// handleGetReport serves a stored report back to the device:
// GREQ <documentId>
func (s *Server) handleGetReport(sess *session.TCP, params string) {
	clientID := sess.GetClientID()
	if clientID == "" {
		s.replyError(sess, protocol.CodeMissingClientID, "missing client id")
		return
	}

	documentID := strings.TrimSpace(params)
	if documentID == "" {
		s.replyError(sess, protocol.CodeInvalidDataPacket, "invalid GREQ parameters")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()

	rec, err := s.deps.Reports.LatestCompleted(ctx, documentID, clientID)
	if err != nil {
		logger.Error("report lookup failed", map[string]any{
			"client_id": clientID, "error": err.Error(),
		})
		s.replyError(sess, protocol.CodeSendFailed, "report lookup failed")
		return
	}
	if rec == nil {
		s.replyError(sess, protocol.CodeUnknownDocument, "unknown document: "+documentID)
		return
	}

	s.reply(sess, protocol.OK(rec.Payload))
}

// handleDownload serves the update catalog over the wire. DWNL with no
// argument lists the available files; DWNL <filename> returns one file.
func (s *Server) handleDownload(sess *session.TCP, params string) {
	name := strings.TrimSpace(params)

	if name == "" {
		files, err := s.deps.Catalog.List()
		if err != nil {
			s.replyError(sess, protocol.CodeSendFailed, "failed to list updates")
			return
		}
		names := make([]string, 0, len(files))
		for _, f := range files {
			names = append(names, f.Name)
		}
		s.reply(sess, protocol.OK(strings.Join(names, "|")))
		return
	}

	data, err := s.deps.Catalog.Read(name)
	if err != nil {
		s.replyError(sess, protocol.CodeSendFailed, "failed to send file: "+name)
		return
	}

	s.reply(sess, protocol.OK(fmt.Sprintf("%d %s", len(data), base64.StdEncoding.EncodeToString(data))))
}

// handleErrorLog appends a device-reported error line to the server-side
// client error log: ERRL <message>
func (s *Server) handleErrorLog(sess *session.TCP, params string) {
	if strings.TrimSpace(params) == "" {
		s.replyError(sess, protocol.CodeInvalidDataPacket, "empty error log entry")
		return
	}

	line := fmt.Sprintf("%s client=%s remote=%s %s\n",
		time.Now().Format(time.RFC3339),
		sess.GetClientID(),
		sess.Base.Key(),
		params,
	)

	path := filepath.Join(s.cfg.LogDir, "client_errors.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err == nil {
		_, err = f.WriteString(line)
		_ = f.Close()
	}
	if err != nil {
		logger.Error("failed to append client error log", map[string]any{
			"error": err.Error(),
		})
		s.replyError(sess, protocol.CodeSendFailed, "failed to store error log")
		return
	}

	s.reply(sess, protocol.OK(""))
}
