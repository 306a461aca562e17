package main

import (
	"sync"

	"github.com/dabeaz/ranet/pkg/raft"
)

// Store retains the applied entries so that the HTTP API can expose them.
type Store struct {
	Items [][]byte

	mu sync.Mutex
}

func NewStore() *Store {
	s := Store{}

	return &s
}

func (s *Store) Append(entries []raft.LogEntry) {
	s.mu.Lock()

	for _, entry := range entries {
		s.Items = append(s.Items, entry.Item)
	}

	s.mu.Unlock()
}

func (s *Store) Snapshot() []string {
	s.mu.Lock()

	items := make([]string, len(s.Items))
	for i, item := range s.Items {
		items[i] = string(item)
	}

	s.mu.Unlock()

	return items
}
