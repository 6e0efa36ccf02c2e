// Package telnet accepts line-oriented TCP clients for the world server.
package telnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/nosgate/internal/config"
)

// RejectLine is written to a client refused by a connection cap.
const RejectLine = "fail TOO_MANY_CONNECTIONS"

// SessionHandler serves one connected client until it leaves.
type SessionHandler interface {
	HandleSession(ctx context.Context, conn *Conn) error
}

// HandlerFunc adapts a function to SessionHandler.
type HandlerFunc func(ctx context.Context, conn *Conn) error

// HandleSession calls f.
func (f HandlerFunc) HandleSession(ctx context.Context, conn *Conn) error { return f(ctx, conn) }

// Acceptor listens on a TCP port and serves each admitted connection on its
// own goroutine. Connections over MaxConnections or MaxPerAddress are
// refused with RejectLine.
type Acceptor struct {
	cfg     config.TelnetConfig
	handler SessionHandler
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	listener net.Listener
	conns    map[*Conn]struct{}
	perHost  map[string]int
}

// NewAcceptor creates an acceptor for cfg.
//
// Precondition: handler and logger must be non-nil.
func NewAcceptor(cfg config.TelnetConfig, handler SessionHandler, logger *zap.Logger) *Acceptor {
	if handler == nil || logger == nil {
		panic("telnet.NewAcceptor: handler and logger must be non-nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[*Conn]struct{}),
		perHost: make(map[string]int),
	}
}

// ListenAndServe accepts connections until Stop is called.
//
// Postcondition: Returns nil after Stop, or the listen error.
func (a *Acceptor) ListenAndServe() error {
	lis, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}
	a.mu.Lock()
	if a.ctx.Err() != nil {
		a.mu.Unlock()
		_ = lis.Close()
		return nil
	}
	a.listener = lis
	a.mu.Unlock()
	a.logger.Info("line acceptor listening", zap.String("addr", lis.Addr().String()))

	for {
		raw, err := lis.Accept()
		switch {
		case a.ctx.Err() != nil:
			if raw != nil {
				_ = raw.Close()
			}
			return nil
		case errors.Is(err, net.ErrClosed):
			return nil
		case err != nil:
			a.logger.Warn("accepting connection", zap.Error(err))
			continue
		}

		conn := NewConn(raw, a.cfg.ReadTimeout, a.cfg.WriteTimeout)
		host := hostOf(raw.RemoteAddr())
		if !a.admit(conn, host) {
			a.logger.Info("connection refused by cap", zap.String("remote_addr", raw.RemoteAddr().String()))
			_ = conn.WriteLine(RejectLine)
			_ = conn.Close()
			continue
		}
		go a.serve(conn, host)
	}
}

// admit registers conn under the caps. A true result has done wg.Add(1).
func (a *Acceptor) admit(conn *Conn, host string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctx.Err() != nil {
		return false
	}
	if a.cfg.MaxConnections > 0 && len(a.conns) >= a.cfg.MaxConnections {
		return false
	}
	if a.cfg.MaxPerAddress > 0 && a.perHost[host] >= a.cfg.MaxPerAddress {
		return false
	}
	a.conns[conn] = struct{}{}
	a.perHost[host]++
	a.wg.Add(1)
	return true
}

func (a *Acceptor) release(conn *Conn, host string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.conns, conn)
	if a.perHost[host]--; a.perHost[host] <= 0 {
		delete(a.perHost, host)
	}
}

func (a *Acceptor) serve(conn *Conn, host string) {
	defer a.wg.Done()
	defer a.release(conn, host)
	defer conn.Close()

	began := time.Now()
	addr := conn.RemoteAddr().String()
	a.logger.Debug("client connected", zap.String("remote_addr", addr))

	err := a.handler.HandleSession(a.ctx, conn)
	a.logger.Debug("client disconnected",
		zap.String("remote_addr", addr),
		zap.Duration("duration", time.Since(began)),
		zap.NamedError("reason", err),
	)
}

// Stop closes the listener and every open connection, then waits for the
// handlers to return. It is safe to call more than once.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if a.ctx.Err() != nil {
		a.mu.Unlock()
		return
	}
	a.cancel()
	if a.listener != nil {
		_ = a.listener.Close()
	}
	// Closing unblocks handlers parked in ReadLine.
	for c := range a.conns {
		_ = c.Close()
	}
	a.mu.Unlock()

	a.wg.Wait()
	a.logger.Info("line acceptor stopped")
}

// Addr returns the listening address, or "" before ListenAndServe binds.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// IsRunning reports whether the acceptor is accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listener != nil && a.ctx.Err() == nil
}

// Open returns the number of admitted connections.
func (a *Acceptor) Open() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.conns)
}

func hostOf(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
