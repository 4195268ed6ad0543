package spectate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"battlepipe/internal/annotate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin: func(r *http.Request) bool {
		// Same-host origins only, to prevent cross-site websocket
		// hijacking. Requests without an Origin header (native clients)
		// are allowed.
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if origin == "http://"+r.Host || origin == "https://"+r.Host {
			return true
		}
		slog.Warn("Rejected spectator from unauthorized origin", "origin", origin, "host", r.Host)
		return false
	},
}

// Server exposes the live event stream at /ws and the battle report at
// /report.
type Server struct {
	hub    *Hub
	report *Report
	srv    *http.Server
}

// NewServer creates a spectate server listening on addr once Start is
// called.
func NewServer(addr string) *Server {
	s := &Server{
		hub:    NewHub(),
		report: NewReport(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/report", s.handleReport)
	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start serves until Shutdown. It is meant to run in its own goroutine;
// the listen error is logged rather than returned because spectating is
// best effort and must never abort the battle.
func (s *Server) Start() {
	slog.Info("Spectate server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Spectate server failed", "error", err)
	}
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Broadcast feeds one annotated event to the report and all observers.
func (s *Server) Broadcast(ev annotate.Event) {
	s.report.Observe(ev)
	s.hub.Broadcast(ev)
}

// Report returns the accumulating battle report.
func (s *Server) Report() *Report {
	return s.report
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade spectator connection", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	client := &Client{
		ID:     fmt.Sprintf("%s-%d", r.RemoteAddr, time.Now().UnixNano()),
		Events: make(chan annotate.Event, 100),
		Done:   make(chan struct{}),
	}
	s.hub.Register(client)
	defer s.hub.Unregister(client.ID)
	defer close(client.Done)

	// Discard inbound messages; their only purpose is detecting
	// disconnects.
	readerGone := make(chan struct{})
	go func() {
		defer close(readerGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-client.Events:
			if err := conn.WriteJSON(ev); err != nil {
				slog.Warn("Failed to write to spectator", "clientID", client.ID, "error", err)
				return
			}
		case <-readerGone:
			return
		}
	}
}

func (s *Server) handleReport(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!DOCTYPE html><html><body>%s</body></html>", s.report.HTML())
}
