// Package cache holds the process-wide in-memory cache filled during startup.
package cache

import (
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("cache: closed")

const DefaultSize = 512

// Store is a bounded string cache. Writes after Close fail, so a preload
// that was abandoned by the bootstrap cannot repopulate a closed store.
type Store struct {
	mu     sync.RWMutex
	lru    *lru.Cache[string, string]
	closed bool
}

func New(size int) (*Store, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &Store{lru: c}, nil
}

func (s *Store) Put(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.lru.Add(key, value)
	return nil
}

// Load stores every entry of m, or none if the store is closed.
func (s *Store) Load(m map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for k, v := range m {
		s.lru.Add(k, v)
	}
	return nil
}

func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false
	}
	return s.lru.Get(key)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lru.Len()
}

// Close purges the store. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.lru.Purge()
	return nil
}
