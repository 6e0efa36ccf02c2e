// Package websocket accepts browser and bot clients over WebSocket. Each
// text message carries one packet line in either direction.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/nosgate/internal/config"
)

// MaxMessageSize bounds one inbound message.
const MaxMessageSize = 4096

const writeTimeout = 10 * time.Second

// ErrBinaryMessage is returned by ReadLine when a client sends binary data.
var ErrBinaryMessage = errors.New("binary websocket message")

// Conn is an upgraded WebSocket connection read and written as text lines.
type Conn struct {
	ws *gws.Conn
	mu sync.Mutex
}

// ReadLine returns the next text message with trailing CR/LF removed.
func (c *Conn) ReadLine() (string, error) {
	kind, data, err := c.ws.ReadMessage()
	if err != nil {
		return "", err
	}
	if kind != gws.TextMessage {
		return "", ErrBinaryMessage
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// WriteLine sends text as one text message.
func (c *Conn) WriteLine(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(gws.TextMessage, []byte(text))
}

// RemoteAddr returns the client's network address.
func (c *Conn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

// Close closes the underlying connection without a close handshake.
func (c *Conn) Close() error { return c.ws.Close() }

// Handler serves one upgraded connection until the client leaves.
type Handler func(ctx context.Context, conn *Conn) error

// Server upgrades requests on the configured path and runs Handler for
// each connection.
type Server struct {
	cfg      config.WebSocketConfig
	handler  Handler
	logger   *zap.Logger
	upgrader gws.Upgrader

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	conns    map[*Conn]struct{}
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewServer creates a Server for cfg.
//
// Precondition: handler and logger must be non-nil.
func NewServer(cfg config.WebSocketConfig, handler Handler, logger *zap.Logger) *Server {
	if handler == nil || logger == nil {
		panic("websocket.NewServer: handler and logger must be non-nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		upgrader: gws.Upgrader{
			ReadBufferSize:  MaxMessageSize,
			WriteBufferSize: MaxMessageSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns:  make(map[*Conn]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ListenAndServe serves HTTP until Stop is called.
//
// Postcondition: Returns nil after Stop.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.serveUpgrade)

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = listener.Close()
		return nil
	}
	s.listener = listener
	s.http = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	srv := s.http
	s.mu.Unlock()

	s.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", s.cfg.Path),
	)
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket: %w", err)
	}
	return nil
}

func (s *Server) serveUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	ws.SetReadLimit(MaxMessageSize)
	conn := &Conn{ws: ws}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = ws.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
		s.wg.Done()
	}()

	start := time.Now()
	if err := s.handler(s.ctx, conn); err != nil {
		s.logger.Debug("websocket connection ended",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// Stop closes the listener and every open connection, then waits for the
// handlers to return.
func (s *Server) Stop() {
	s.mu.Lock()
	s.cancel()
	srv := s.http
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	s.wg.Wait()
	s.logger.Info("websocket acceptor stopped")
}

// Addr returns the listening address, or "" before ListenAndServe binds.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
