package session

import "sync"

// Registry holds the process-wide collections of live sessions, keyed
// "ip:port" per transport. It is owned by the server and passed into
// every component that needs it; there is no ambient global state.
type Registry struct {
	mu   sync.RWMutex
	tcp  map[string]*TCP
	http map[string]*HTTP
}

func NewRegistry() *Registry {
	return &Registry{
		tcp:  make(map[string]*TCP),
		http: make(map[string]*HTTP),
	}
}

func (r *Registry) AddTCP(s *TCP) {
	r.mu.Lock()
	r.tcp[s.Base.Key()] = s
	r.mu.Unlock()
}

func (r *Registry) RemoveTCP(s *TCP) {
	r.mu.Lock()
	// only remove if the key still maps to this session; a reconnect
	// from the same ip:port must not evict its successor
	if cur, ok := r.tcp[s.Base.Key()]; ok && cur == s {
		delete(r.tcp, s.Base.Key())
	}
	r.mu.Unlock()
}

func (r *Registry) AddHTTP(s *HTTP) {
	r.mu.Lock()
	r.http[s.Base.Key()] = s
	r.mu.Unlock()
}

func (r *Registry) RemoveHTTP(s *HTTP) {
	r.mu.Lock()
	if cur, ok := r.http[s.Base.Key()]; ok && cur == s {
		delete(r.http, s.Base.Key())
	}
	r.mu.Unlock()
}

// FindByClientID returns the open TCP session holding the given client
// id, or nil. Sessions flagged for disconnect do not count as holders.
func (r *Registry) FindByClientID(clientID string) *TCP {
	if clientID == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.tcp {
		if s.GetClientID() == clientID && !s.MustDisconnect() {
			return s
		}
	}
	return nil
}

// EachTCP visits every registered TCP session. The callback must not
// mutate the registry.
func (r *Registry) EachTCP(fn func(*TCP)) {
	r.mu.RLock()
	snapshot := make([]*TCP, 0, len(r.tcp))
	for _, s := range r.tcp {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()
	for _, s := range snapshot {
		fn(s)
	}
}

// EachHTTP visits every registered HTTP session.
func (r *Registry) EachHTTP(fn func(*HTTP)) {
	r.mu.RLock()
	snapshot := make([]*HTTP, 0, len(r.http))
	for _, s := range r.http {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()
	for _, s := range snapshot {
		fn(s)
	}
}

func (r *Registry) CountTCP() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tcp)
}

func (r *Registry) CountHTTP() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.http)
}
