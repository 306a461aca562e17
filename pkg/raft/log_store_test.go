package raft

import (
	"reflect"
	"testing"
)

func entry(term Term, item string) LogEntry {
	return LogEntry{Term: term, Item: []byte(item)}
}

func logWith(entries ...LogEntry) *LogStore {
	s := NewLogStore()
	s.Append(NoIndex, 0, entries)
	return s
}

func TestLogStoreAppend(t *testing.T) {
	base := []LogEntry{entry(1, "a"), entry(1, "b"), entry(2, "c")}

	tests := []struct {
		name string

		initial   []LogEntry
		prevIndex LogIndex
		prevTerm  Term
		entries   []LogEntry

		success  bool
		expected []LogEntry
	}{
		{
			name:      "append to empty log",
			prevIndex: NoIndex,
			entries:   base,
			success:   true,
			expected:  base,
		},
		{
			name:      "append after last entry",
			initial:   base,
			prevIndex: 2,
			prevTerm:  2,
			entries:   []LogEntry{entry(2, "d")},
			success:   true,
			expected: []LogEntry{
				entry(1, "a"), entry(1, "b"), entry(2, "c"), entry(2, "d"),
			},
		},
		{
			name:      "hole past end of log",
			initial:   base,
			prevIndex: 3,
			prevTerm:  2,
			entries:   []LogEntry{entry(2, "d")},
			success:   false,
			expected:  base,
		},
		{
			name:      "hole in empty log",
			prevIndex: 0,
			prevTerm:  1,
			entries:   []LogEntry{entry(1, "a")},
			success:   false,
			expected:  []LogEntry{},
		},
		{
			name:      "previous term mismatch",
			initial:   base,
			prevIndex: 2,
			prevTerm:  1,
			entries:   []LogEntry{entry(3, "d")},
			success:   false,
			expected:  base,
		},
		{
			name:      "conflicting suffix is truncated",
			initial:   base,
			prevIndex: 0,
			prevTerm:  1,
			entries:   []LogEntry{entry(3, "x"), entry(3, "y")},
			success:   true,
			expected:  []LogEntry{entry(1, "a"), entry(3, "x"), entry(3, "y")},
		},
		{
			name:      "full overwrite from index 0",
			initial:   base,
			prevIndex: NoIndex,
			entries:   []LogEntry{entry(3, "x")},
			success:   true,
			expected:  []LogEntry{entry(3, "x")},
		},
		{
			name:      "empty entries at last entry",
			initial:   base,
			prevIndex: 2,
			prevTerm:  2,
			entries:   nil,
			success:   true,
			expected:  base,
		},
		{
			name:      "empty entries truncate past prevIndex",
			initial:   base,
			prevIndex: 1,
			prevTerm:  1,
			entries:   nil,
			success:   true,
			expected:  []LogEntry{entry(1, "a"), entry(1, "b")},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := logWith(test.initial...)

			success := s.Append(test.prevIndex, test.prevTerm, test.entries)
			if success != test.success {
				t.Fatalf("append returned %v, expected %v",
					success, test.success)
			}

			if !reflect.DeepEqual(s.entries, test.expected) {
				t.Errorf("log is %v, expected %v", s.entries, test.expected)
			}
		})
	}
}

func TestLogStoreAppendIdempotent(t *testing.T) {
	s := logWith(entry(1, "a"), entry(1, "b"))

	entries := []LogEntry{entry(2, "c"), entry(2, "d")}

	if !s.Append(1, 1, entries) {
		t.Fatalf("first append failed")
	}

	first := append([]LogEntry{}, s.entries...)

	if !s.Append(1, 1, entries) {
		t.Fatalf("second append failed")
	}

	if !reflect.DeepEqual(s.entries, first) {
		t.Errorf("log changed after identical append: %v, expected %v",
			s.entries, first)
	}
}

func TestLogStoreLastIndexTerm(t *testing.T) {
	s := NewLogStore()

	if s.LastIndex() != NoIndex {
		t.Errorf("last index of empty log is %d, expected %d",
			s.LastIndex(), NoIndex)
	}

	if s.LastTerm() != -1 {
		t.Errorf("last term of empty log is %d, expected -1", s.LastTerm())
	}

	s.Append(NoIndex, 0, []LogEntry{entry(1, "a"), entry(4, "b")})

	if s.LastIndex() != 1 {
		t.Errorf("last index is %d, expected 1", s.LastIndex())
	}

	if s.LastTerm() != 4 {
		t.Errorf("last term is %d, expected 4", s.LastTerm())
	}
}
