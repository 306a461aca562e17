package raft

import (
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type ServerCfg struct {
	Id      NodeId
	Servers ServerSet

	Logger Logger

	HeartbeatInterval   time.Duration
	ElectionTimerBase   time.Duration
	ElectionTimerJitter time.Duration

	// ApplyFunc is called with each batch of committed entries, in log
	// order, from the event loop goroutine.
	ApplyFunc func(entries []LogEntry)
}

// Server runs one cluster node: the event loop goroutine owning the Raft
// state machine, the two tickers feeding it, the listener accepting peer
// connections and one sender goroutine per peer.
type Server struct {
	Cfg ServerCfg
	Log Logger

	Id           NodeId
	LocalAddress ServerAddress

	node  *Node
	peers []NodeId

	// Messages queued by the current handler, drained after it returns.
	outgoing []Msg

	leading int32

	randGenerator *rand.Rand

	heartbeatTicker *time.Ticker
	electionTimer   *time.Timer

	listener *Listener
	senders  map[NodeId]*PeerSender

	msgChan chan Msg

	errorChan chan<- error
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

func NewServer(cfg ServerCfg) (*Server, error) {
	address, found := cfg.Servers[cfg.Id]
	if !found {
		return nil, fmt.Errorf("unknown server id %d", cfg.Id)
	}

	if cfg.Logger == nil {
		return nil, fmt.Errorf("missing logger")
	}

	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = time.Second
	}

	if cfg.ElectionTimerBase == 0 {
		cfg.ElectionTimerBase = 5 * time.Second
	}

	if cfg.ElectionTimerJitter == 0 {
		cfg.ElectionTimerJitter = 3 * time.Second
	}

	randSource := rand.NewSource(time.Now().UnixNano())

	peers := make([]NodeId, 0, len(cfg.Servers)-1)
	for id := range cfg.Servers {
		if id != cfg.Id {
			peers = append(peers, id)
		}
	}

	sort.Slice(peers, func(i, j int) bool {
		return peers[i] < peers[j]
	})

	s := &Server{
		Cfg: cfg,
		Log: cfg.Logger,

		Id:           cfg.Id,
		LocalAddress: address,

		peers: peers,

		randGenerator: rand.New(randSource),

		senders: make(map[NodeId]*PeerSender),

		msgChan: make(chan Msg, 128),

		stopChan: make(chan struct{}),
	}

	return s, nil
}

func (s *Server) Start(errorChan chan<- error) error {
	s.Log.Debugf("starting")

	s.errorChan = errorChan

	s.node = NewNode(s, s.Log)

	// Transport
	listener, err := NewListener(s)
	if err != nil {
		return fmt.Errorf("cannot create listener: %w", err)
	}

	s.listener = listener
	s.Log.Infof("listening on %s", s.LocalAddress)

	s.wg.Add(1)
	go s.listener.Run()

	for _, peer := range s.peers {
		sender := NewPeerSender(s, peer, s.Cfg.Servers[peer])
		s.senders[peer] = sender

		s.wg.Add(1)
		go sender.Run()
	}

	// Timers
	s.heartbeatTicker = time.NewTicker(s.Cfg.HeartbeatInterval)
	s.electionTimer = time.NewTimer(s.electionTimeout())

	// Main
	s.wg.Add(1)
	go s.main()

	s.Log.Debugf("started")

	return nil
}

func (s *Server) Stop() {
	s.Log.Debugf("stopping")

	close(s.stopChan)
	s.listener.Close()
	s.wg.Wait()

	s.heartbeatTicker.Stop()
	s.electionTimer.Stop()

	s.Log.Debugf("stopped")
}

// SubmitEntry queues a client append for the event loop. The entry only
// enters the log if the node is the leader when the command is dispatched.
func (s *Server) SubmitEntry(item []byte) {
	s.injectMsg(&ClientAppendEntry{Item: item})
}

// Debug makes the event loop log the node state.
func (s *Server) Debug() {
	s.injectMsg(&RaftDebug{})
}

// Leading reports whether the node was the leader after the last handled
// event. It is a snapshot for external surfaces; only the event loop sees
// the authoritative role.
func (s *Server) Leading() bool {
	return atomic.LoadInt32(&s.leading) == 1
}

func (s *Server) injectMsg(msg Msg) {
	select {
	case s.msgChan <- msg:
	case <-s.stopChan:
	}
}

func (s *Server) main() {
	defer s.wg.Done()
	defer s.failOnPanic()

	for {
		select {
		case <-s.stopChan:
			return

		case <-s.heartbeatTicker.C:
			s.node.HandleHeartbeatTick()
			s.flushOutgoing()

		case <-s.electionTimer.C:
			s.node.HandleElectionTick()
			s.flushOutgoing()

			s.electionTimer.Reset(s.electionTimeout())

		case msg := <-s.msgChan:
			s.node.HandleMsg(msg)
			s.flushOutgoing()
		}
	}
}

// flushOutgoing routes every message queued by the last handler to the
// sender of its destination, then publishes the role snapshot.
func (s *Server) flushOutgoing() {
	for _, msg := range s.outgoing {
		sender, found := s.senders[msg.GetDest()]
		if !found {
			s.Log.Errorf("cannot send %v: unknown destination", msg)
			continue
		}

		data, err := EncodeMsg(msg)
		if err != nil {
			s.Log.Errorf("cannot encode %v: %v", msg, err)
			continue
		}

		sender.Enqueue(data)
	}

	s.outgoing = s.outgoing[:0]

	leading := int32(0)
	if s.node.Role() == RoleLeader {
		leading = 1
	}

	atomic.StoreInt32(&s.leading, leading)
}

func (s *Server) electionTimeout() time.Duration {
	baseMs := s.Cfg.ElectionTimerBase.Milliseconds()
	jitterMs := s.Cfg.ElectionTimerJitter.Milliseconds()

	timeoutMs := baseMs + s.randGenerator.Int63n(jitterMs+1)

	return time.Duration(timeoutMs) * time.Millisecond
}

// Server is the Control of its node.

func (s *Server) Address() NodeId {
	return s.Id
}

func (s *Server) Peers() []NodeId {
	return s.peers
}

func (s *Server) Send(msg Msg) {
	s.Log.Debugf("sending %v", msg)

	s.outgoing = append(s.outgoing, msg)
}

func (s *Server) Apply(entries []LogEntry) {
	items := make([]string, len(entries))
	for i, entry := range entries {
		items[i] = fmt.Sprintf("%q", entry.Item)
	}

	s.Log.Infof("%d applying %v", s.Id, items)

	if s.Cfg.ApplyFunc != nil {
		s.Cfg.ApplyFunc(entries)
	}
}

// logPanic recovers and logs a panic; every auxiliary goroutine of the
// server defers it so that a bug never takes the process down silently.
func (s *Server) logPanic() {
	value := recover()
	if value == nil {
		return
	}

	s.Log.Errorf("panic: %s\n%s", panicMessage(value), stackTrace())
}

// failOnPanic is logPanic for the event loop: a panic there leaves the node
// dead, so it is also reported on the error channel.
func (s *Server) failOnPanic() {
	value := recover()
	if value == nil {
		return
	}

	msg := panicMessage(value)

	s.Log.Errorf("panic: %s\n%s", msg, stackTrace())

	s.errorChan <- fmt.Errorf("panic: %s", msg)
}

func panicMessage(value interface{}) string {
	switch v := value.(type) {
	case error:
		return v.Error()
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func stackTrace() string {
	buf := make([]byte, 16384)
	return string(buf[:runtime.Stack(buf, false)])
}
