package raft

// Logger is the logging surface the library writes to. The daemon adapts
// go-log to it; tests plug in the testing package.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Control is the side-effect boundary of the Raft state machine. Handlers
// queue outgoing messages on it and hand it batches of committed entries; the
// runtime harness routes the queue to the per-peer senders after each
// handler, and tests substitute an in-memory implementation.
type Control interface {
	// Address is the identifier of the local node.
	Address() NodeId

	// Peers lists every other node of the cluster.
	Peers() []NodeId

	// Send queues an outgoing message addressed by its destination. It must
	// not block.
	Send(msg Msg)

	// Apply delivers a contiguous batch of newly committed entries to the
	// state machine.
	Apply(entries []LogEntry)
}
