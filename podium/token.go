package podium

import "sync"

// TokenStore holds the session token for a client. Implementations must be
// safe for concurrent use.
type TokenStore interface {
	// SetToken stores token, replacing any previous one
	SetToken(token string)

	// GetToken returns the stored token and whether one is present
	GetToken() (string, bool)

	// HasToken reports whether a token is stored
	HasToken() bool

	// RemoveToken clears the stored token
	RemoveToken()
}

// MemoryTokenStore keeps the token in process memory. It is the default store
// for a Client; the zero value is ready to use.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
	set   bool
}

// NewMemoryTokenStore returns an empty store
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.set = true
}

func (s *MemoryTokenStore) GetToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.set
}

func (s *MemoryTokenStore) HasToken() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set
}

func (s *MemoryTokenStore) RemoveToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.set = false
}
