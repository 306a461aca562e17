package raft

import (
	"encoding/json"
	"fmt"
)

// Msg is implemented by every message handled by the event loop. The four
// wire messages carry a source, a destination and a term; internal messages
// injected by the local process report NoNode and term 0 and never reach the
// network.
type Msg interface {
	GetType() string
	GetTerm() Term
	GetSource() NodeId
	GetDest() NodeId

	fmt.Stringer
}

type AppendEntries struct {
	Source NodeId `json:"source"`
	Dest   NodeId `json:"dest"`
	Term   Term   `json:"term"`

	PrevIndex   LogIndex   `json:"prevIndex"`
	PrevTerm    Term       `json:"prevTerm"`
	Entries     []LogEntry `json:"entries"`
	CommitIndex LogIndex   `json:"commitIndex"`
}

func (msg *AppendEntries) GetType() string {
	return "appendEntries"
}

func (msg *AppendEntries) GetTerm() Term {
	return msg.Term
}

func (msg *AppendEntries) GetSource() NodeId {
	return msg.Source
}

func (msg *AppendEntries) GetDest() NodeId {
	return msg.Dest
}

func (msg *AppendEntries) String() string {
	return fmt.Sprintf("AppendEntries{%d→%d, term: %d, prevIndex: %d, "+
		"prevTerm: %d, %d entries, commitIndex: %d}",
		msg.Source, msg.Dest, msg.Term, msg.PrevIndex, msg.PrevTerm,
		len(msg.Entries), msg.CommitIndex)
}

type AppendEntriesResponse struct {
	Source NodeId `json:"source"`
	Dest   NodeId `json:"dest"`
	Term   Term   `json:"term"`

	Success    bool     `json:"success"`
	MatchIndex LogIndex `json:"matchIndex"`
}

func (msg *AppendEntriesResponse) GetType() string {
	return "appendEntriesResponse"
}

func (msg *AppendEntriesResponse) GetTerm() Term {
	return msg.Term
}

func (msg *AppendEntriesResponse) GetSource() NodeId {
	return msg.Source
}

func (msg *AppendEntriesResponse) GetDest() NodeId {
	return msg.Dest
}

func (msg *AppendEntriesResponse) String() string {
	return fmt.Sprintf("AppendEntriesResponse{%d→%d, term: %d, success: %v, "+
		"matchIndex: %d}",
		msg.Source, msg.Dest, msg.Term, msg.Success, msg.MatchIndex)
}

type RequestVote struct {
	Source NodeId `json:"source"`
	Dest   NodeId `json:"dest"`
	Term   Term   `json:"term"`

	LastLogIndex LogIndex `json:"lastLogIndex"`
	LastLogTerm  Term     `json:"lastLogTerm"`
}

func (msg *RequestVote) GetType() string {
	return "requestVote"
}

func (msg *RequestVote) GetTerm() Term {
	return msg.Term
}

func (msg *RequestVote) GetSource() NodeId {
	return msg.Source
}

func (msg *RequestVote) GetDest() NodeId {
	return msg.Dest
}

func (msg *RequestVote) String() string {
	return fmt.Sprintf("RequestVote{%d→%d, term: %d, lastLogIndex: %d, "+
		"lastLogTerm: %d}",
		msg.Source, msg.Dest, msg.Term, msg.LastLogIndex, msg.LastLogTerm)
}

type RequestVoteResponse struct {
	Source NodeId `json:"source"`
	Dest   NodeId `json:"dest"`
	Term   Term   `json:"term"`

	VoteGranted bool `json:"voteGranted"`
}

func (msg *RequestVoteResponse) GetType() string {
	return "requestVoteResponse"
}

func (msg *RequestVoteResponse) GetTerm() Term {
	return msg.Term
}

func (msg *RequestVoteResponse) GetSource() NodeId {
	return msg.Source
}

func (msg *RequestVoteResponse) GetDest() NodeId {
	return msg.Dest
}

func (msg *RequestVoteResponse) String() string {
	return fmt.Sprintf("RequestVoteResponse{%d→%d, term: %d, voteGranted: %v}",
		msg.Source, msg.Dest, msg.Term, msg.VoteGranted)
}

// ClientAppendEntry asks the local node, which must be the leader, to append
// an item to the replicated log. Injected by the REPL or the HTTP API.
type ClientAppendEntry struct {
	Item []byte
}

func (msg *ClientAppendEntry) GetType() string {
	return "clientAppendEntry"
}

func (msg *ClientAppendEntry) GetTerm() Term {
	return 0
}

func (msg *ClientAppendEntry) GetSource() NodeId {
	return NoNode
}

func (msg *ClientAppendEntry) GetDest() NodeId {
	return NoNode
}

func (msg *ClientAppendEntry) String() string {
	return fmt.Sprintf("ClientAppendEntry{item: %q}", msg.Item)
}

// RaftDebug asks the local node to log its current state.
type RaftDebug struct{}

func (msg *RaftDebug) GetType() string {
	return "raftDebug"
}

func (msg *RaftDebug) GetTerm() Term {
	return 0
}

func (msg *RaftDebug) GetSource() NodeId {
	return NoNode
}

func (msg *RaftDebug) GetDest() NodeId {
	return NoNode
}

func (msg *RaftDebug) String() string {
	return "RaftDebug{}"
}

func EncodeMsg(msg Msg) ([]byte, error) {
	value := struct {
		Type  string `json:"type"`
		Value Msg    `json:"value"`
	}{
		Type:  msg.GetType(),
		Value: msg,
	}

	return json.Marshal(value)
}

func DecodeMsg(data []byte) (Msg, error) {
	var value struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	}

	if err := json.Unmarshal(data, &value); err != nil {
		return nil, err
	}

	var msg Msg

	switch value.Type {
	case "appendEntries":
		msg = &AppendEntries{}

	case "appendEntriesResponse":
		msg = &AppendEntriesResponse{}

	case "requestVote":
		msg = &RequestVote{}

	case "requestVoteResponse":
		msg = &RequestVoteResponse{}

	default:
		return nil, fmt.Errorf("unknown message type %q", value.Type)
	}

	if err := json.Unmarshal(value.Value, &msg); err != nil {
		return nil, err
	}

	return msg, nil
}
