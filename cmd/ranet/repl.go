package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// REPL reads commands on standard input and injects the corresponding
// internal messages into the local node. Nothing here crosses the network.
type REPL struct {
	Service *Service
}

func NewREPL(s *Service) *REPL {
	return &REPL{
		Service: s,
	}
}

func (r *REPL) Start() {
	go r.run()
}

func (r *REPL) run() {
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		r.handleLine(line)
	}
}

func (r *REPL) handleLine(line string) {
	parts := strings.SplitN(line, " ", 2)

	switch parts[0] {
	case "client-append-entry":
		if len(parts) < 2 || parts[1] == "" {
			fmt.Println("usage: client-append-entry <item>")
			return
		}

		if !r.Service.raftServer.Leading() {
			fmt.Println("error: not the leader")
			return
		}

		r.Service.raftServer.SubmitEntry([]byte(parts[1]))

	case "raftdebug":
		r.Service.raftServer.Debug()

	case "help":
		fmt.Println("commands:")
		fmt.Println("  client-append-entry <item>  append an item to the log")
		fmt.Println("  raftdebug                   log the node state")

	default:
		fmt.Printf("unknown command %q\n", parts[0])
	}
}
