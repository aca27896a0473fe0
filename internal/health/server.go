// Package health serves liveness, readiness and stats endpoints for ppgd,
// plus a websocket feed of live samples.
//
//	GET /health      process liveness, always 200
//	GET /readiness   200 unless the session is unhealthy, 503 otherwise
//	GET /stats       JSON snapshot of the running session
//	GET /ws/samples  websocket, one JSON sample per message
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/e7canasta/orion-ppg/internal/extract"
)

const (
	defaultWSBuffer = 64
	writeWait       = 2 * time.Second
	pingInterval    = 25 * time.Second
)

// Health states reported in Status.Status.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Status is the readiness report of a session.
type Status struct {
	Status        string `json:"status"`
	SessionID     string `json:"session_id,omitempty"`
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	SourceRunning bool   `json:"source_running"`
	MQTTConnected *bool  `json:"mqtt_connected,omitempty"` // nil when MQTT is disabled
}

// Provider reports on the running session.
type Provider interface {
	Status() Status
	Stats() any
}

// Subscriber is the sample bus side used by websocket viewers.
type Subscriber interface {
	Subscribe(id string, ch chan<- extract.Sample) error
	Unsubscribe(id string) error
}

// Config configures the server.
type Config struct {
	Addr     string // Listen address, e.g. ":8080"
	WSBuffer int    // Per-viewer sample buffer, default 64
	Logger   *slog.Logger
}

// Server is the health HTTP server.
type Server struct {
	cfg      Config
	provider Provider
	bus      Subscriber
	log      *slog.Logger
	started  time.Time
	upgrader websocket.Upgrader

	srv       *http.Server
	ln        net.Listener
	done      chan struct{}
	closeOnce sync.Once
	viewers   atomic.Int64
}

// New creates a server. bus may be nil, which disables /ws/samples.
func New(cfg Config, provider Provider, bus Subscriber) *Server {
	if cfg.WSBuffer <= 0 {
		cfg.WSBuffer = defaultWSBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		provider: provider,
		bus:      bus,
		log:      cfg.Logger,
		started:  time.Now(),
		done:     make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Viewers are dashboards on the local network.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.srv = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the endpoint mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleLiveness)
	mux.HandleFunc("/readiness", s.handleReadiness)
	mux.HandleFunc("/stats", s.handleStats)
	if s.bus != nil {
		mux.HandleFunc("/ws/samples", s.handleSamples)
	}
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("health: listen %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln

	s.log.Info("health: server started",
		"addr", ln.Addr().String(),
		"endpoints", []string{"/health", "/readiness", "/stats", "/ws/samples"})

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("health: server failed", "error", err)
		}
	}()
	return nil
}

// Addr is the bound listen address, empty before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown closes websocket viewers and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("health: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "alive",
		"uptime": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	st := s.provider.Status()
	code := http.StatusOK
	if st.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"viewers": s.viewers.Load(),
		"session": s.provider.Stats(),
	})
}

// handleSamples streams bus samples to one websocket viewer until the viewer
// disconnects, a write fails, or the server shuts down.
func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("health: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	// Hijacked connections keep the server's read deadline.
	_ = conn.SetReadDeadline(time.Time{})

	id := "ws-" + uuid.NewString()
	ch := make(chan extract.Sample, s.cfg.WSBuffer)
	if err := s.bus.Subscribe(id, ch); err != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		return
	}
	defer func() { _ = s.bus.Unsubscribe(id) }()

	s.viewers.Add(1)
	defer s.viewers.Add(-1)
	s.log.Info("health: sample viewer connected", "viewer", id, "remote", r.RemoteAddr)

	// Reads only detect the viewer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-s.done:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		case <-gone:
			s.log.Info("health: sample viewer disconnected", "viewer", id)
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case smp := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(smp); err != nil {
				s.log.Debug("health: sample write failed", "viewer", id, "error", err)
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
