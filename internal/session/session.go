package session

import (
	"net"
	"strconv"
	"sync"
	"time"
)

// Transport distinguishes the two session kinds held by the registry.
type Transport string

const (
	TransportTCP  Transport = "tcp"
	TransportHTTP Transport = "http"
)

// Base carries the bookkeeping common to both transports. It is embedded
// by value in the transport-specific session types; sessions are always
// handled through pointers.
type Base struct {
	Transport   Transport
	RemoteHost  string
	RemoteIP    string
	RemotePort  int
	LocalPort   int
	ConnectedAt time.Time

	mu             sync.Mutex
	lastActivity   time.Time
	disconnectedAt time.Time
	mustDisconnect bool
	lastErr        error
}

func newBase(transport Transport, remoteAddr string, localPort int) Base {
	now := time.Now()
	ip, port := splitHostPort(remoteAddr)
	return Base{
		Transport:    transport,
		RemoteHost:   ip,
		RemoteIP:     ip,
		RemotePort:   port,
		LocalPort:    localPort,
		ConnectedAt:  now,
		lastActivity: now,
	}
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// Key identifies the session in the registry ("ip:port").
func (b *Base) Key() string {
	return net.JoinHostPort(b.RemoteIP, strconv.Itoa(b.RemotePort))
}

// Touch records inbound activity, resetting the idle clock.
func (b *Base) Touch() {
	b.mu.Lock()
	b.lastActivity = time.Now()
	b.mu.Unlock()
}

// LastActivity returns the time of the most recent inbound frame.
func (b *Base) LastActivity() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastActivity
}

// IdleDuration reports how long the session has been without activity.
func (b *Base) IdleDuration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Since(b.lastActivity)
}

// ConnectedDuration reports how long the session has existed.
func (b *Base) ConnectedDuration() time.Duration {
	return time.Since(b.ConnectedAt)
}

// FlagDisconnect marks the session for teardown with the given reason.
// Frames arriving after this point are ignored by the read loop.
func (b *Base) FlagDisconnect(reason error) {
	b.mu.Lock()
	b.mustDisconnect = true
	if reason != nil {
		b.lastErr = reason
	}
	b.mu.Unlock()
}

func (b *Base) MustDisconnect() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mustDisconnect
}

func (b *Base) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

func (b *Base) markDisconnected() {
	b.mu.Lock()
	if b.disconnectedAt.IsZero() {
		b.disconnectedAt = time.Now()
	}
	b.mu.Unlock()
}
