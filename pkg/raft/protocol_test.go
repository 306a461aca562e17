package raft

import (
	"reflect"
	"testing"
)

func TestEncodeDecodeMsg(t *testing.T) {
	msgs := []Msg{
		&AppendEntries{
			Source: 0, Dest: 1, Term: 3,
			PrevIndex: 1, PrevTerm: 2,
			Entries:     []LogEntry{entry(2, "a"), entry(3, "b")},
			CommitIndex: 1,
		},
		&AppendEntriesResponse{
			Source: 1, Dest: 0, Term: 3,
			Success: true, MatchIndex: 3,
		},
		&AppendEntriesResponse{
			Source: 1, Dest: 0, Term: 3,
			Success: false, MatchIndex: NoIndex,
		},
		&RequestVote{
			Source: 2, Dest: 0, Term: 4,
			LastLogIndex: NoIndex, LastLogTerm: -1,
		},
		&RequestVoteResponse{
			Source: 0, Dest: 2, Term: 4,
			VoteGranted: true,
		},
	}

	for _, msg := range msgs {
		t.Run(msg.GetType(), func(t *testing.T) {
			data, err := EncodeMsg(msg)
			if err != nil {
				t.Fatalf("cannot encode %v: %v", msg, err)
			}

			msg2, err := DecodeMsg(data)
			if err != nil {
				t.Fatalf("cannot decode %q: %v", data, err)
			}

			if !reflect.DeepEqual(msg, msg2) {
				t.Errorf("decoded %v, expected %v", msg2, msg)
			}
		})
	}
}

func TestDecodeMsgUnknownType(t *testing.T) {
	tests := []string{
		`{"type": "nope", "value": {}}`,
		`{"type": "clientAppendEntry", "value": {}}`,
		`{"type": "raftDebug", "value": {}}`,
	}

	for _, test := range tests {
		if _, err := DecodeMsg([]byte(test)); err == nil {
			t.Errorf("decoding %q succeeded, expected an error", test)
		}
	}
}

func TestDecodeMsgInvalidData(t *testing.T) {
	if _, err := DecodeMsg([]byte("{")); err == nil {
		t.Errorf("decoding truncated data succeeded, expected an error")
	}
}
