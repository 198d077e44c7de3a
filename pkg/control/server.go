// Package control exposes a running orchestrator to short-lived CLI
// connections over a Unix domain socket. Each connection carries one
// newline-delimited JSON directive and receives one ACK.
package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"

	"hive/pkg/orchestrator"
	"hive/pkg/protocol"
)

// Pool is the slice of the orchestrator the control server drives.
type Pool interface {
	SetDesiredInstances(n int)
	PauseAgent(id int)
	ResumeAgent(id int)
	PauseAll()
	ResumeAll()
	LiveIDs() []int
	Status() orchestrator.Status
}

// Server listens on a Unix socket and applies directives to the pool.
type Server struct {
	path string
	pool Pool

	logf func(format string, args ...any)
}

// NewServer creates a control server for the socket at path.
func NewServer(path string, pool Pool) *Server {
	return &Server{path: path, pool: pool, logf: log.Printf}
}

// Run listens until ctx ends, then removes the socket file. A stale
// socket left by a dead process is removed before binding.
func (s *Server) Run(ctx context.Context) error {
	_ = os.Remove(s.path)

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen on control socket: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			_ = os.Remove(s.path)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept control connection: %w", err)
		}
		go s.handle(conn)
	}
}

// handle serves one directive-ACK exchange and closes the connection.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}

	var d protocol.Directive
	if err := json.Unmarshal(scanner.Bytes(), &d); err != nil {
		s.reply(conn, protocol.Ack{Detail: "malformed directive"})
		return
	}
	s.reply(conn, s.apply(d))
}

func (s *Server) apply(d protocol.Directive) protocol.Ack {
	switch d.Op {
	case protocol.DirectiveScale:
		if d.N < 0 {
			return protocol.Ack{Detail: fmt.Sprintf("invalid pool size %d", d.N)}
		}
		s.pool.SetDesiredInstances(d.N)
		return protocol.Ack{OK: true, Detail: fmt.Sprintf("scaling to %d agents", d.N)}

	case protocol.DirectivePause:
		if d.All {
			s.pool.PauseAll()
			return protocol.Ack{OK: true, Detail: "paused all agents"}
		}
		if !s.isLive(d.AgentID) {
			return protocol.Ack{Detail: fmt.Sprintf("no live agent %d", d.AgentID)}
		}
		s.pool.PauseAgent(d.AgentID)
		return protocol.Ack{OK: true, Detail: fmt.Sprintf("paused agent %d", d.AgentID)}

	case protocol.DirectiveResume:
		if d.All {
			s.pool.ResumeAll()
			return protocol.Ack{OK: true, Detail: "resumed all agents"}
		}
		if !s.isLive(d.AgentID) {
			return protocol.Ack{Detail: fmt.Sprintf("no live agent %d", d.AgentID)}
		}
		s.pool.ResumeAgent(d.AgentID)
		return protocol.Ack{OK: true, Detail: fmt.Sprintf("resumed agent %d", d.AgentID)}

	case protocol.DirectiveStatus:
		data, err := json.Marshal(s.pool.Status())
		if err != nil {
			return protocol.Ack{Detail: fmt.Sprintf("marshal status: %v", err)}
		}
		return protocol.Ack{OK: true, Status: data}
	}
	return protocol.Ack{Detail: fmt.Sprintf("unknown directive %q", d.Op)}
}

func (s *Server) isLive(id int) bool {
	for _, live := range s.pool.LiveIDs() {
		if live == id {
			return true
		}
	}
	return false
}

func (s *Server) reply(conn net.Conn, ack protocol.Ack) {
	data, err := json.Marshal(ack)
	if err != nil {
		s.logf("control: marshal ack: %v", err)
		return
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logf("control: write ack: %v", err)
	}
}
