package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/crypto"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/logger"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/protocol"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/session"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/store"
)

// encPrefix marks a correlated reply payload encrypted with the session
// key. Anything else is taken verbatim.
const encPrefix = "ENC:"

// Result is what the HTTP caller gets back on success.
type Result struct {
	ReportID string
	Data     string
}

// Service bridges HTTP report requests onto device sessions. It is the
// sole authority allowed to flip a session's busy flag false to true.
type Service struct {
	registry *session.Registry
	status   store.StatusStore
	reports  store.ReportStore
	timeout  time.Duration
}

func NewService(
	registry *session.Registry,
	status store.StatusStore,
	reports store.ReportStore,
	timeout time.Duration,
) *Service {
	return &Service{
		registry: registry,
		status:   status,
		reports:  reports,
		timeout:  timeout,
	}
}

// Generate performs one correlated report exchange against the device
// holding clientID. Offline, busy and not-responding outcomes come back
// as coded errors, never panics; the busy flag is released on every
// path, including timeout.
func (s *Service) Generate(ctx context.Context, documentID, clientID, requester string) (*Result, *protocol.Error) {

	if clientID == "" {
		return nil, protocol.NewError(protocol.CodeMissingClientID, "missing client id")
	}
	if documentID == "" {
		return nil, protocol.NewError(protocol.CodeUnknownDocument, "missing document id")
	}

	sess := s.registry.FindByClientID(clientID)
	if sess == nil {
		// fall back to the persisted status before declaring offline;
		// a stale online record is healed here
		if online, err := s.status.IsOnline(ctx, clientID); err == nil && online {
			logger.Warn("status store says online but no session found", map[string]any{
				"client_id": clientID,
			})
			_ = s.status.MarkOffline(ctx, clientID)
		}
		return nil, protocol.NewError(protocol.CodeClientOffline, "client %s is offline", clientID)
	}

	if err := sess.AcquireBusy(); err != nil {
		return nil, protocol.NewError(protocol.CodeClientBusy, "client %s is busy", clientID)
	}
	defer sess.ReleaseBusy()

	rec := &store.Report{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		ClientID:   clientID,
		Requester:  requester,
		Status:     store.StatusPending,
	}
	if err := s.reports.Create(ctx, rec); err != nil {
		logger.Error("failed to record report request", map[string]any{
			"client_id": clientID,
			"error":     err.Error(),
		})
	}

	reply, perr := s.exchange(ctx, sess, rec.ID, documentID)
	if perr != nil {
		if err := s.reports.MarkFailed(ctx, rec.ID, perr.Code, perr.Message); err != nil {
			logger.Error("failed to record report failure", map[string]any{
				"report_id": rec.ID, "error": err.Error(),
			})
		}
		return nil, perr
	}

	if err := s.reports.MarkCompleted(ctx, rec.ID, reply); err != nil {
		logger.Error("failed to record report completion", map[string]any{
			"report_id": rec.ID, "error": err.Error(),
		})
	}

	return &Result{ReportID: rec.ID, Data: reply}, nil
}

// exchange writes the request frame and waits on the one-slot correlator.
func (s *Service) exchange(ctx context.Context, sess *session.TCP, reportID, documentID string) (string, *protocol.Error) {

	ch, err := sess.Slot.Arm()
	if err != nil {
		// an orphaned waiter from a previous exchange still holds the
		// slot; surface it as busy rather than stealing the reply
		return "", protocol.NewError(protocol.CodeClientBusy, "request slot occupied")
	}

	frame := fmt.Sprintf("GREQ %s %s", reportID, documentID)
	sess.RecordRequest(frame)

	if err := sess.Send(frame); err != nil {
		sess.Slot.Disarm()
		return "", protocol.NewError(protocol.CodeSendFailed, "failed to send request: %v", err)
	}

	if err := s.reports.MarkProcessing(ctx, reportID); err != nil {
		logger.Error("failed to mark report processing", map[string]any{
			"report_id": reportID, "error": err.Error(),
		})
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return s.decode(sess, reply), nil
	case <-timer.C:
		sess.Slot.Disarm()
		return "", protocol.NewError(protocol.CodeClientNotResponding, "client did not respond within %s", s.timeout)
	case <-ctx.Done():
		sess.Slot.Disarm()
		return "", protocol.NewError(protocol.CodeClientNotResponding, "request cancelled")
	}
}

// decode unwraps an encrypted reply payload; plaintext passes through.
func (s *Service) decode(sess *session.TCP, reply string) string {
	if !strings.HasPrefix(reply, encPrefix) {
		return reply
	}
	plain, err := crypto.Decrypt(strings.TrimPrefix(reply, encPrefix), sess.SessionKey())
	if err != nil {
		logger.Warn("failed to decrypt report payload, passing raw", map[string]any{
			"client_id": sess.GetClientID(),
		})
		return reply
	}
	return plain
}
