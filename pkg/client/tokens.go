package client

import (
	"sync"
	"time"
)

// TokenPair is the access/refresh token pair the auth service issues.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// TokenStore persists the token pair between requests. It stands in for
// the browser's origin-scoped key-value storage; only the refresh
// coordinator and the login/logout flows touch it.
type TokenStore interface {
	Load() (TokenPair, bool)
	Save(TokenPair)
	Clear()
}

// MemoryStore is an in-process TokenStore.
type MemoryStore struct {
	mutex sync.RWMutex
	pair  TokenPair
	set   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (TokenPair, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.pair, s.set
}

func (s *MemoryStore) Save(pair TokenPair) {
	s.mutex.Lock()
	s.pair = pair
	s.set = true
	s.mutex.Unlock()
}

func (s *MemoryStore) Clear() {
	s.mutex.Lock()
	s.pair = TokenPair{}
	s.set = false
	s.mutex.Unlock()
}
