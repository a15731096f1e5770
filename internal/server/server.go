// Package server serves the compiled bundle together with a harness page
// for trying it in a browser. Connected pages reload over a WebSocket
// whenever a new bundle is published.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/markupc/internal/build"
	"github.com/conneroisu/markupc/internal/config"
	"github.com/conneroisu/markupc/internal/logging"
)

// Client represents a WebSocket client
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *PreviewServer
}

// PreviewServer serves the latest bundle with live reload capability
type PreviewServer struct {
	config     *config.Config
	logger     logging.Logger
	httpServer *http.Server
	// serverMutex protects httpServer
	serverMutex sync.RWMutex

	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn
	// hubDone is closed when the hub goroutine exits
	hubDone chan struct{}

	bundleMutex sync.RWMutex
	bundle      string
	exports     []string
	stats       build.Stats
	buildErr    error
	version     int
	builtAt     time.Time
	metrics     *build.Metrics
}

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Version   int       `json:"version,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Message types pushed over the WebSocket.
const (
	MessageHello  = "hello"
	MessageReload = "reload"
	MessageError  = "error"
)

// New creates a new preview server. A nil logger discards output.
func New(cfg *config.Config, logger logging.Logger) *PreviewServer {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &PreviewServer{
		config:     cfg,
		logger:     logger.WithComponent("server"),
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
		hubDone:    make(chan struct{}),
	}
}

// SetMetrics exposes a generator's build metrics on /health.
func (s *PreviewServer) SetMetrics(m *build.Metrics) {
	s.bundleMutex.Lock()
	defer s.bundleMutex.Unlock()
	s.metrics = m
}

// Publish installs a freshly built bundle and tells connected pages to
// reload.
func (s *PreviewServer) Publish(ctx context.Context, res *build.Result) {
	s.bundleMutex.Lock()
	s.bundle = res.Source
	s.exports = append([]string(nil), res.Exports...)
	s.stats = res.Stats
	s.buildErr = nil
	s.version++
	s.builtAt = time.Now()
	version := s.version
	s.bundleMutex.Unlock()

	s.logger.Info(ctx, "bundle published", "version", version, "size", res.Stats.Size)
	s.notify(ctx, UpdateMessage{Type: MessageReload, Version: version, Timestamp: time.Now()})
}

// PublishError records a failed build. The previous bundle keeps being
// served; pages are told about the failure.
func (s *PreviewServer) PublishError(ctx context.Context, err error) {
	s.bundleMutex.Lock()
	s.buildErr = err
	s.bundleMutex.Unlock()

	s.notify(ctx, UpdateMessage{Type: MessageError, Message: err.Error(), Timestamp: time.Now()})
}

func (s *PreviewServer) notify(ctx context.Context, msg UpdateMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error(ctx, err, "cannot encode update message")
		return
	}
	select {
	case s.broadcast <- data:
	default:
		s.logger.Warn(ctx, nil, "update dropped, broadcast queue full", "type", msg.Type)
	}
}

// snapshot returns the current bundle state.
func (s *PreviewServer) snapshot() (bundle string, exports []string, version int, buildErr error) {
	s.bundleMutex.RLock()
	defer s.bundleMutex.RUnlock()
	return s.bundle, s.exports, s.version, s.buildErr
}

// Handler returns the HTTP routes of the server.
func (s *PreviewServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/bundle.js", s.handleBundle)
	mux.HandleFunc("/", s.handleIndex)
	return mux
}

// Addr returns the listen address from the configuration.
func (s *PreviewServer) Addr() string {
	return net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port))
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *PreviewServer) Start(ctx context.Context) error {
	go s.runWebSocketHub(ctx)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "preview server listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully stops the HTTP server and closes client connections.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	s.serverMutex.RLock()
	server := s.httpServer
	s.serverMutex.RUnlock()

	s.clientsMutex.Lock()
	for conn, client := range s.clients {
		delete(s.clients, conn)
		close(client.send)
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	s.clientsMutex.Unlock()

	if server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// ClientCount returns the number of connected WebSocket clients.
func (s *PreviewServer) ClientCount() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}
