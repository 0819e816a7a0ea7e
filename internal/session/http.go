package session

// HTTP is the short-lived session wrapping one inbound request. It has
// no identity beyond the base fields; it exists so the registry and the
// reaper see both transports through the same bookkeeping.
type HTTP struct {
	Base

	Method string
	Path   string
}

// NewHTTP records an inbound request as a registry-visible session.
func NewHTTP(remoteAddr, method, path string, localPort int) *HTTP {
	return &HTTP{
		Base:   newBase(TransportHTTP, remoteAddr, localPort),
		Method: method,
		Path:   path,
	}
}

// Close marks the request finished.
func (h *HTTP) Close() {
	h.markDisconnected()
}
