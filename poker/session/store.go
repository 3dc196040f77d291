package session

import (
	"errors"
	"sync"
	"time"

	"github.com/pandac/pokersync/poker/model"
)

var ErrNoResumeState = errors.New("no resume state stored")

// resumeKey is the store key under which one client's resume state lives.
const resumeKey = "resume"

// Store is the abstract key-value store behind session resume. Implementations
// must tolerate concurrent use.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(key string) ([]byte, bool, error)

	// Set stores a value under a key, replacing any previous value.
	Set(key string, value []byte) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key string) error
}

// ResumeState is what the client needs to rejoin a session after a restart:
// the last known session snapshot plus the identity and token issued when the
// user joined.
type ResumeState struct {
	Session     model.Session `json:"session"`
	UserID      int64         `json:"userId"`
	UserName    string        `json:"userName"`
	IsModerator bool          `json:"isModerator"`
	Token       string        `json:"token"`
	SavedAt     time.Time     `json:"savedAt"`
}

// MemStore is an in-memory Store for tests and ephemeral clients.
type MemStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{values: make(map[string][]byte)}
}

func (m *MemStore) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (m *MemStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
