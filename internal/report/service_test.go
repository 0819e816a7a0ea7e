package report

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/crypto"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/protocol"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/session"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/store"
)

type fakeStatus struct {
	mu      sync.Mutex
	online  map[string]bool
	offline []string
}

func newFakeStatus() *fakeStatus {
	return &fakeStatus{online: make(map[string]bool)}
}

func (f *fakeStatus) MarkOnline(_ context.Context, s store.ClientStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[s.ClientID] = true
	return nil
}

func (f *fakeStatus) MarkOffline(_ context.Context, clientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[clientID] = false
	f.offline = append(f.offline, clientID)
	return nil
}

func (f *fakeStatus) IsOnline(_ context.Context, clientID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[clientID], nil
}

type fakeReports struct {
	mu       sync.Mutex
	created  []*store.Report
	statuses map[string][]string
	payloads map[string]string
	failCode map[string]int
}

func newFakeReports() *fakeReports {
	return &fakeReports{
		statuses: make(map[string][]string),
		payloads: make(map[string]string),
		failCode: make(map[string]int),
	}
}

func (f *fakeReports) Create(_ context.Context, r *store.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.created = append(f.created, &cp)
	f.statuses[r.ID] = append(f.statuses[r.ID], r.Status)
	return nil
}

func (f *fakeReports) MarkProcessing(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = append(f.statuses[id], store.StatusProcessing)
	return nil
}

func (f *fakeReports) MarkCompleted(_ context.Context, id, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = append(f.statuses[id], store.StatusCompleted)
	f.payloads[id] = payload
	return nil
}

func (f *fakeReports) MarkFailed(_ context.Context, id string, code int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = append(f.statuses[id], store.StatusFailed)
	f.failCode[id] = code
	return nil
}

func (f *fakeReports) LatestCompleted(_ context.Context, _, _ string) (*store.Report, error) {
	return nil, nil
}

func newReadySession(t *testing.T, clientID string) (*session.TCP, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	s := session.NewTCP(server, 8016)
	s.SetHandshake("posdevice", clientID, "1.0.0", 2, crypto.DeriveKey(2))
	s.SetClientID(clientID, time.Now().Add(time.Hour))
	s.SetState(session.StateReady)
	t.Cleanup(func() {
		s.Close(nil)
		client.Close()
	})
	return s, client
}

func TestGenerateOfflineClient(t *testing.T) {
	reg := session.NewRegistry()
	other, _ := newReadySession(t, "SN777")
	reg.AddTCP(other)

	svc := NewService(reg, newFakeStatus(), newFakeReports(), time.Second)

	_, perr := svc.Generate(context.Background(), "D1", "SN123", "tester")
	require.NotNil(t, perr)
	assert.Equal(t, protocol.CodeClientOffline, perr.Code)

	// no session's busy flag was touched
	assert.False(t, other.Busy())
}

func TestGenerateHealsStaleOnlineRecord(t *testing.T) {
	reg := session.NewRegistry()
	status := newFakeStatus()
	status.online["SN123"] = true

	svc := NewService(reg, status, newFakeReports(), time.Second)

	_, perr := svc.Generate(context.Background(), "D1", "SN123", "tester")
	require.NotNil(t, perr)
	assert.Equal(t, protocol.CodeClientOffline, perr.Code)
	assert.Contains(t, status.offline, "SN123")
}

func TestGenerateBusyClient(t *testing.T) {
	reg := session.NewRegistry()
	sess, _ := newReadySession(t, "SN123")
	require.NoError(t, sess.AcquireBusy())
	reg.AddTCP(sess)

	svc := NewService(reg, newFakeStatus(), newFakeReports(), time.Second)

	_, perr := svc.Generate(context.Background(), "D1", "SN123", "tester")
	require.NotNil(t, perr)
	assert.Equal(t, protocol.CodeClientBusy, perr.Code)

	// no request frame was issued
	assert.Equal(t, 1, sess.RequestCount())
}

func TestGenerateMissingParameters(t *testing.T) {
	svc := NewService(session.NewRegistry(), newFakeStatus(), newFakeReports(), time.Second)

	_, perr := svc.Generate(context.Background(), "D1", "", "tester")
	require.NotNil(t, perr)
	assert.Equal(t, protocol.CodeMissingClientID, perr.Code)

	_, perr = svc.Generate(context.Background(), "", "SN123", "tester")
	require.NotNil(t, perr)
	assert.Equal(t, protocol.CodeUnknownDocument, perr.Code)
}

func TestGenerateSuccess(t *testing.T) {
	reg := session.NewRegistry()
	sess, client := newReadySession(t, "SN123")
	reg.AddTCP(sess)

	reports := newFakeReports()
	svc := NewService(reg, newFakeStatus(), reports, 2*time.Second)

	// device side: read the request frame, then deliver the reply the
	// way the read loop would
	go func() {
		line, err := bufio.NewReader(client).ReadString('\n')
		if err != nil {
			return
		}
		if !strings.HasPrefix(line, "GREQ ") {
			return
		}
		sess.Slot.Deliver(`{"rows":42}`)
	}()

	res, perr := svc.Generate(context.Background(), "D1", "SN123", "tester")
	require.Nil(t, perr)
	assert.Equal(t, `{"rows":42}`, res.Data)
	assert.NotEmpty(t, res.ReportID)

	// busy is cleared after the exchange
	assert.False(t, sess.Busy())

	reports.mu.Lock()
	defer reports.mu.Unlock()
	assert.Equal(t,
		[]string{store.StatusPending, store.StatusProcessing, store.StatusCompleted},
		reports.statuses[res.ReportID])
	assert.Equal(t, `{"rows":42}`, reports.payloads[res.ReportID])
}

func TestGenerateEncryptedReply(t *testing.T) {
	reg := session.NewRegistry()
	sess, client := newReadySession(t, "SN123")
	reg.AddTCP(sess)

	svc := NewService(reg, newFakeStatus(), newFakeReports(), 2*time.Second)

	go func() {
		if _, err := bufio.NewReader(client).ReadString('\n'); err != nil {
			return
		}
		ct, err := crypto.Encrypt("secret report", sess.SessionKey())
		if err != nil {
			return
		}
		sess.Slot.Deliver("ENC:" + ct)
	}()

	res, perr := svc.Generate(context.Background(), "D1", "SN123", "tester")
	require.Nil(t, perr)
	assert.Equal(t, "secret report", res.Data)
}

func TestGenerateTimeoutClearsBusy(t *testing.T) {
	reg := session.NewRegistry()
	sess, client := newReadySession(t, "SN123")
	reg.AddTCP(sess)

	reports := newFakeReports()
	svc := NewService(reg, newFakeStatus(), reports, 50*time.Millisecond)

	// device reads the frame but never answers
	go func() {
		_, _ = bufio.NewReader(client).ReadString('\n')
	}()

	_, perr := svc.Generate(context.Background(), "D1", "SN123", "tester")
	require.NotNil(t, perr)
	assert.Equal(t, protocol.CodeClientNotResponding, perr.Code)

	// the timeout path releases busy and frees the slot
	assert.False(t, sess.Busy())
	_, err := sess.Slot.Arm()
	assert.NoError(t, err)
	sess.Slot.Disarm()

	reports.mu.Lock()
	defer reports.mu.Unlock()
	require.Len(t, reports.created, 1)
	id := reports.created[0].ID
	assert.Equal(t,
		[]string{store.StatusPending, store.StatusProcessing, store.StatusFailed},
		reports.statuses[id])
	assert.Equal(t, protocol.CodeClientNotResponding, reports.failCode[id])
}
