package raft

import (
	"sort"
	"strings"
)

// Node is the Raft state machine. It is purely event driven: the owner feeds
// it timer ticks and messages, and it mutates its own state and queues
// outgoing messages on its control. It never blocks and is not safe for
// concurrent use; a single goroutine must own it.
type Node struct {
	ctl Control
	log Logger

	role        Role
	currentTerm Term
	votedFor    NodeId

	logStore *LogStore

	commitIndex LogIndex
	lastApplied LogIndex

	// Leader only
	nextIndex  map[NodeId]LogIndex
	matchIndex map[NodeId]LogIndex

	// Candidate only
	votes map[NodeId]bool

	// Consumed by the election tick; set by a valid AppendEntries.
	heardFromLeader bool
}

func NewNode(ctl Control, logger Logger) *Node {
	return &Node{
		ctl: ctl,
		log: logger,

		role:     RoleFollower,
		votedFor: NoNode,

		logStore: NewLogStore(),

		commitIndex: NoIndex,
		lastApplied: NoIndex,
	}
}

func (n *Node) Role() Role {
	return n.role
}

// clusterSize counts the peers plus the local node.
func (n *Node) clusterSize() int {
	return len(n.ctl.Peers()) + 1
}

// HandleHeartbeatTick runs the periodic heartbeat: a leader sends one
// AppendEntries to every peer, anyone else does nothing.
func (n *Node) HandleHeartbeatTick() {
	if n.role != RoleLeader {
		return
	}

	n.sendAllAppendEntries()
}

// HandleElectionTick runs the periodic election check. A tick consumes the
// heard-from-leader flag; a tick that finds it already consumed starts an
// election. The effective timeout therefore falls between one and two tick
// periods.
func (n *Node) HandleElectionTick() {
	if n.role == RoleLeader {
		return
	}

	if n.heardFromLeader {
		n.heardFromLeader = false
		return
	}

	n.becomeCandidate()
}

// HandleMsg dispatches a message from the event loop. Internal messages skip
// the term check; network messages first advance the current term if the
// sender's is higher, then are dropped if stale.
func (n *Node) HandleMsg(msg Msg) {
	switch msgv := msg.(type) {
	case *ClientAppendEntry:
		n.onClientAppendEntry(msgv)
		return

	case *RaftDebug:
		n.dumpState()
		return
	}

	term := msg.GetTerm()

	if term > n.currentTerm {
		n.log.Debugf("received message with term %d (current term: %d), "+
			"reverting to follower", term, n.currentTerm)

		n.currentTerm = term
		n.becomeFollower()
	}

	if term < n.currentTerm {
		n.log.Debugf("ignoring stale message %v (current term: %d)",
			msg, n.currentTerm)
		return
	}

	switch msgv := msg.(type) {
	case *AppendEntries:
		n.onAppendEntries(msgv)
	case *AppendEntriesResponse:
		n.onAppendEntriesResponse(msgv)
	case *RequestVote:
		n.onRequestVote(msgv)
	case *RequestVoteResponse:
		n.onRequestVoteResponse(msgv)
	default:
		n.log.Errorf("unexpected message %v", msg)
	}
}

func (n *Node) onAppendEntries(msg *AppendEntries) {
	// A candidate receiving an AppendEntries for the current term has lost
	// the election to the sender.
	if n.role == RoleCandidate {
		n.becomeFollower()
	}

	if n.role != RoleFollower {
		return
	}

	success := n.logStore.Append(msg.PrevIndex, msg.PrevTerm, msg.Entries)

	matchIndex := NoIndex
	if success {
		matchIndex = msg.PrevIndex + LogIndex(len(msg.Entries))
	}

	if msg.CommitIndex > n.commitIndex {
		n.commitIndex = msg.CommitIndex
		if last := n.logStore.LastIndex(); n.commitIndex > last {
			n.commitIndex = last
		}

		n.applyEntries()
	}

	n.heardFromLeader = true

	n.ctl.Send(&AppendEntriesResponse{
		Source: n.ctl.Address(),
		Dest:   msg.Source,
		Term:   n.currentTerm,

		Success:    success,
		MatchIndex: matchIndex,
	})
}

func (n *Node) onAppendEntriesResponse(msg *AppendEntriesResponse) {
	if n.role != RoleLeader {
		return
	}

	if !msg.Success {
		// The follower's log diverges before nextIndex; back up one entry
		// and retransmit.
		if n.nextIndex[msg.Source] > 0 {
			n.nextIndex[msg.Source]--
		}

		n.sendOneAppendEntries(msg.Source)
		return
	}

	n.nextIndex[msg.Source] = msg.MatchIndex + 1
	n.matchIndex[msg.Source] = msg.MatchIndex

	n.advanceCommitIndex()
}

// advanceCommitIndex moves the leader's commit index to the highest index
// replicated on a majority, provided the entry there belongs to the current
// term. A leader never commits an entry from a previous term by counting
// replicas alone.
func (n *Node) advanceCommitIndex() {
	peers := n.ctl.Peers()

	matches := make([]LogIndex, 0, len(peers))
	for _, peer := range peers {
		matches = append(matches, n.matchIndex[peer])
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i] < matches[j]
	})

	// The highest index replicated on enough peers that, with the local
	// copy, a quorum of the cluster holds it. A single node cluster is its
	// own majority.
	quorumIndex := n.logStore.LastIndex()
	if len(matches) > 0 {
		quorumIndex = matches[len(matches)-Majority(n.clusterSize())+1]
	}

	if quorumIndex <= n.commitIndex {
		return
	}

	if n.logStore.Entry(quorumIndex).Term != n.currentTerm {
		return
	}

	n.commitIndex = quorumIndex
	n.applyEntries()
}

func (n *Node) onRequestVote(msg *RequestVote) {
	lastIndex := n.logStore.LastIndex()
	lastTerm := n.logStore.LastTerm()

	freeVote := n.votedFor == NoNode || n.votedFor == msg.Source
	logUpToDate := msg.LastLogTerm > lastTerm ||
		(msg.LastLogTerm == lastTerm && msg.LastLogIndex >= lastIndex)

	granted := freeVote && logUpToDate

	if granted {
		n.votedFor = msg.Source
	}

	n.ctl.Send(&RequestVoteResponse{
		Source: n.ctl.Address(),
		Dest:   msg.Source,
		Term:   n.currentTerm,

		VoteGranted: granted,
	})
}

func (n *Node) onRequestVoteResponse(msg *RequestVoteResponse) {
	if n.role != RoleCandidate {
		return
	}

	n.votes[msg.Source] = msg.VoteGranted

	n.checkVotes()
}

func (n *Node) checkVotes() {
	nbVotes := 0

	for _, vote := range n.votes {
		if vote {
			nbVotes++
		}
	}

	if nbVotes < Majority(n.clusterSize()) {
		return
	}

	n.log.Infof("obtained %d/%d votes, becoming leader",
		nbVotes, n.clusterSize())

	n.becomeLeader()
}

func (n *Node) onClientAppendEntry(msg *ClientAppendEntry) {
	if n.role != RoleLeader {
		n.log.Errorf("cannot append client entry: not the leader")
		return
	}

	entry := LogEntry{Term: n.currentTerm, Item: msg.Item}

	if !n.logStore.Append(n.logStore.LastIndex(), n.logStore.LastTerm(),
		[]LogEntry{entry}) {
		panic("cannot append entry to own log")
	}

	// The entry reaches the peers on the next heartbeat. Without any peer
	// the local copy already is the majority.
	n.advanceCommitIndex()
}

func (n *Node) becomeFollower() {
	n.setRole(RoleFollower)

	n.votedFor = NoNode

	// Clear leader data
	n.nextIndex = nil
	n.matchIndex = nil

	// Clear candidate data
	n.votes = nil
}

func (n *Node) becomeCandidate() {
	n.setRole(RoleCandidate)

	n.currentTerm++
	n.votedFor = n.ctl.Address()

	n.votes = map[NodeId]bool{n.ctl.Address(): true}

	n.log.Debugf("starting election for term %d", n.currentTerm)

	for _, peer := range n.ctl.Peers() {
		n.ctl.Send(&RequestVote{
			Source: n.ctl.Address(),
			Dest:   peer,
			Term:   n.currentTerm,

			LastLogIndex: n.logStore.LastIndex(),
			LastLogTerm:  n.logStore.LastTerm(),
		})
	}

	// In a single node cluster our own vote is already a majority.
	n.checkVotes()
}

func (n *Node) becomeLeader() {
	n.setRole(RoleLeader)

	n.nextIndex = make(map[NodeId]LogIndex)
	n.matchIndex = make(map[NodeId]LogIndex)

	for _, peer := range n.ctl.Peers() {
		n.nextIndex[peer] = LogIndex(n.logStore.Len())
		n.matchIndex[peer] = NoIndex
	}

	// Clear candidate data
	n.votes = nil

	// Assert leadership immediately instead of waiting for the next
	// heartbeat tick.
	n.sendAllAppendEntries()
}

func (n *Node) setRole(role Role) {
	if n.role == role {
		return
	}

	n.role = role

	n.log.Infof("%d BECAME %s", n.ctl.Address(),
		strings.ToUpper(string(role)))
}

func (n *Node) sendOneAppendEntries(peer NodeId) {
	next := n.nextIndex[peer]

	prevIndex := next - 1
	prevTerm := Term(-1)
	if prevIndex >= 0 {
		prevTerm = n.logStore.Entry(prevIndex).Term
	}

	n.ctl.Send(&AppendEntries{
		Source: n.ctl.Address(),
		Dest:   peer,
		Term:   n.currentTerm,

		PrevIndex:   prevIndex,
		PrevTerm:    prevTerm,
		Entries:     n.logStore.Suffix(next),
		CommitIndex: n.commitIndex,
	})
}

func (n *Node) sendAllAppendEntries() {
	for _, peer := range n.ctl.Peers() {
		n.sendOneAppendEntries(peer)
	}
}

// applyEntries hands every committed but not yet applied entry to the state
// machine, in log order.
func (n *Node) applyEntries() {
	if n.commitIndex <= n.lastApplied {
		return
	}

	entries := n.logStore.Entries(n.lastApplied+1, n.commitIndex+1)

	n.ctl.Apply(entries)

	n.lastApplied = n.commitIndex
}

func (n *Node) dumpState() {
	n.log.Infof("node %d: role %s, term %d, votedFor %d, "+
		"log length %d, commitIndex %d, lastApplied %d",
		n.ctl.Address(), n.role, n.currentTerm, n.votedFor,
		n.logStore.Len(), n.commitIndex, n.lastApplied)
}
