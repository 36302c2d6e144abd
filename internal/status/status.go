// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package status implements an optional local HTTP/WebSocket listener
// exposing live worker stats for operator debugging. It is ambient
// observability scaffolding, not part of the mining protocol itself: the
// orchestrator never depends on anyone connecting to it.
package status

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"scavenger-miner/internal/log"
	"scavenger-miner/internal/model"
)

var statLog = log.Logger(log.SubsystemStatus)

// StatsSource is the subset of the orchestrator's coordination state the
// status server needs to render a snapshot.
type StatsSource interface {
	AllStats() []model.WorkerStats
}

// Server is the optional debug listener. Zero value is not usable; build
// one with New.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	source     StatsSource

	upgrader websocket.Upgrader

	subsMu sync.Mutex
	subs   map[*websocket.Conn]*sync.Mutex
}

// New constructs a Server bound to addr (not yet listening). source
// supplies the live worker stats snapshot for /status and the push feed.
func New(addr string, source StatsSource) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener: ln,
		source:   source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: make(map[*websocket.Conn]*sync.Mutex),
	}

	router := mux.NewRouter()
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	s.httpServer = &http.Server{Handler: router}
	return s, nil
}

// Addr returns the bound local address, useful when addr was "127.0.0.1:0".
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks, accepting connections until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			statLog.Errorf("status server shutdown error: %v", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

type statusPayload struct {
	Workers []model.WorkerStats `json:"workers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statusPayload{Workers: s.source.AllStats()})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		statLog.Warnf("status websocket upgrade failed: %v", err)
		return
	}

	writeMu := &sync.Mutex{}
	s.subsMu.Lock()
	s.subs[conn] = writeMu
	s.subsMu.Unlock()

	defer func() {
		s.subsMu.Lock()
		delete(s.subs, conn)
		s.subsMu.Unlock()
		conn.Close()
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		writeMu.Lock()
		err := conn.WriteJSON(statusPayload{Workers: s.source.AllStats()})
		writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// Broadcast pushes an arbitrary event payload to every connected
// WebSocket client. Used by the orchestrator's observer to forward
// solution/transition events without the core depending on this package.
func (s *Server) Broadcast(v interface{}) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for conn, writeMu := range s.subs {
		writeMu.Lock()
		err := conn.WriteJSON(v)
		writeMu.Unlock()
		if err != nil {
			statLog.Debugf("dropping status subscriber after write error: %v", err)
		}
	}
}
