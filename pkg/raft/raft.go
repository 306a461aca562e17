package raft

import "fmt"

type NodeId int

// NoNode is the "no vote cast" sentinel.
const NoNode NodeId = -1

type ServerAddress string

type ServerSet map[NodeId]ServerAddress

// DefaultServerSet is the standard five node development cluster.
func DefaultServerSet() ServerSet {
	servers := make(ServerSet)

	for i := 0; i < 5; i++ {
		servers[NodeId(i)] = ServerAddress(fmt.Sprintf("127.0.0.1:%d", 15000+i))
	}

	return servers
}

// Majority is the quorum size of a cluster of the given size, ⌊N/2⌋+1.
func Majority(clusterSize int) int {
	return clusterSize/2 + 1
}

type Role string

const (
	RoleFollower  Role = "follower"
	RoleCandidate Role = "candidate"
	RoleLeader    Role = "leader"
)

type Term int64

type LogIndex int64

// NoIndex marks "no entry": an empty log's last index, prevIndex when
// sending from index 0, commitIndex before anything is committed.
const NoIndex LogIndex = -1

type LogEntry struct {
	Term Term   `json:"term"`
	Item []byte `json:"item"`
}
