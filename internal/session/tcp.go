package session

import (
	"errors"
	"net"
	"sync"
	"time"
)

// State tracks a TCP session through its command lifecycle.
type State int

const (
	StateConnected State = iota // socket accepted, no handshake yet
	StateInitialized            // INIT accepted, crypto key assigned
	StateAuthenticated          // client id resolved, subscription checked
	StateReady                  // idle, can take a report exchange
	StateBusy                   // one report exchange outstanding
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInitialized:
		return "initialized"
	case StateAuthenticated:
		return "authenticated"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var ErrClientBusy = errors.New("session: client busy")

// TCP is one device connection: handshake state, identity, the busy flag
// and the one-slot correlator for server-initiated report requests.
type TCP struct {
	Base

	conn    net.Conn
	writeMu sync.Mutex

	closeOnce sync.Once

	stateMu sync.Mutex
	state   State

	// Device identity, populated by INIT and INFO.
	ClientID   string
	Serial     string
	AppType    string
	AppVersion string
	Name       string
	Host       string
	DBType     string
	ExpiresAt  time.Time

	// Crypto key assigned during the handshake.
	KeyIndex  int
	CryptoKey string

	busy         bool
	requestCount int
	lastRequest  string
	lastResponse string

	Slot ResponseSlot
}

// NewTCP wraps an accepted connection in a fresh session.
func NewTCP(conn net.Conn, localPort int) *TCP {
	return &TCP{
		Base: newBase(TransportTCP, conn.RemoteAddr().String(), localPort),
		conn: conn,
	}
}

// Send writes one response line to the device. Lines from the read loop
// and from HTTP-triggered report requests interleave through the write
// mutex so frames never tear.
func (t *TCP) Send(line string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.conn.Write([]byte(line + "\n")); err != nil {
		return err
	}
	t.stateMu.Lock()
	t.lastResponse = line
	t.stateMu.Unlock()
	return nil
}

func (t *TCP) State() State {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.state
}

func (t *TCP) SetState(s State) {
	t.stateMu.Lock()
	t.state = s
	t.stateMu.Unlock()
}

// Authenticated reports whether a client id has been resolved.
func (t *TCP) Authenticated() bool {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.ClientID != ""
}

// SetClientID stores the resolved identity under the state lock.
func (t *TCP) SetClientID(id string, expires time.Time) {
	t.stateMu.Lock()
	t.ClientID = id
	t.ExpiresAt = expires
	t.state = StateAuthenticated
	t.stateMu.Unlock()
}

// GetClientID reads the resolved identity under the state lock.
func (t *TCP) GetClientID() string {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.ClientID
}

// AcquireBusy claims the session for one report exchange. Only the report
// service flips busy false to true; a concurrent claim fails immediately
// with ErrClientBusy instead of queueing.
func (t *TCP) AcquireBusy() error {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	if t.busy {
		return ErrClientBusy
	}
	t.busy = true
	t.state = StateBusy
	t.requestCount++
	return nil
}

// ReleaseBusy returns the session to the ready state. Safe to call on a
// non-busy session.
func (t *TCP) ReleaseBusy() {
	t.stateMu.Lock()
	t.busy = false
	if t.state == StateBusy {
		t.state = StateReady
	}
	t.stateMu.Unlock()
}

func (t *TCP) Busy() bool {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.busy
}

// SetHandshake stores the INIT parameters and the assigned crypto key.
func (t *TCP) SetHandshake(appType, serial, version string, keyIndex int, key string) {
	t.stateMu.Lock()
	t.AppType = appType
	t.Serial = serial
	t.AppVersion = version
	t.KeyIndex = keyIndex
	t.CryptoKey = key
	t.state = StateInitialized
	t.stateMu.Unlock()
}

// SetDeviceInfo stores the INFO descriptive fields.
func (t *TCP) SetDeviceInfo(name, host, appType, version, dbType string) {
	t.stateMu.Lock()
	t.Name = name
	t.Host = host
	if appType != "" {
		t.AppType = appType
	}
	if version != "" {
		t.AppVersion = version
	}
	t.DBType = dbType
	t.stateMu.Unlock()
}

// SessionKey returns the crypto key assigned at handshake.
func (t *TCP) SessionKey() string {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.CryptoKey
}

// RecordRequest remembers the last outbound request text for diagnostics.
func (t *TCP) RecordRequest(line string) {
	t.stateMu.Lock()
	t.lastRequest = line
	t.stateMu.Unlock()
}

func (t *TCP) RequestCount() int {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.requestCount
}

// Close tears the socket down once. Later calls are no-ops.
func (t *TCP) Close(reason error) {
	t.closeOnce.Do(func() {
		if reason != nil {
			t.FlagDisconnect(reason)
		}
		t.SetState(StateClosed)
		t.markDisconnected()
		_ = t.conn.Close()
	})
}

// Snapshot is the read-only view served by the clients listing.
type Snapshot struct {
	ClientID         string  `json:"clientId"`
	Name             string  `json:"name"`
	Host             string  `json:"host"`
	AppType          string  `json:"appType"`
	AppVersion       string  `json:"appVersion"`
	DBType           string  `json:"dbType"`
	RemoteAddr       string  `json:"remoteAddr"`
	State            string  `json:"state"`
	Busy             bool    `json:"busy"`
	RequestCount     int     `json:"requestCount"`
	LastRequest      string  `json:"lastRequest,omitempty"`
	LastResponse     string  `json:"lastResponse,omitempty"`
	ConnectedSeconds float64 `json:"connectedSeconds"`
	IdleSeconds      float64 `json:"idleSeconds"`
}

// Snapshot captures the listing view of the session.
func (t *TCP) Snapshot() Snapshot {
	t.stateMu.Lock()
	snap := Snapshot{
		ClientID:     t.ClientID,
		Name:         t.Name,
		Host:         t.Host,
		AppType:      t.AppType,
		AppVersion:   t.AppVersion,
		DBType:       t.DBType,
		State:        t.state.String(),
		Busy:         t.busy,
		RequestCount: t.requestCount,
		LastRequest:  t.lastRequest,
		LastResponse: t.lastResponse,
	}
	t.stateMu.Unlock()

	snap.RemoteAddr = t.Key()
	snap.ConnectedSeconds = t.ConnectedDuration().Seconds()
	snap.IdleSeconds = t.IdleDuration().Seconds()
	return snap
}
