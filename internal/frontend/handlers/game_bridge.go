package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/nosgate/internal/game/command"
	"github.com/cory-johannsen/nosgate/internal/game/session"
	"github.com/cory-johannsen/nosgate/internal/storage/postgres"
)

// errSessionEnded stops the read loop once the server side closed the
// session (pulse violation, idle sweep, shutdown).
var errSessionEnded = errors.New("session ended")

// play attaches a session for acct, runs character selection, then feeds
// every packet line to the router until the client leaves.
//
// Postcondition: the session is disconnected and its outbox flushed when
// play returns.
func (g *Gateway) play(ctx context.Context, conn LineConn, acct postgres.Account) error {
	s := session.New(conn.RemoteAddr().String(), session.Account{
		ID:        acct.ID,
		Name:      acct.Username,
		Authority: acct.Authority,
	}, g.world.SessionOptions())
	if err := g.world.Attach(s); err != nil {
		return fmt.Errorf("attaching session: %w", err)
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		g.forward(s, conn)
	}()
	stop := context.AfterFunc(ctx, s.Disconnect)
	defer stop()

	err := g.run(ctx, conn, s)
	s.Disconnect()
	<-writerDone
	if errors.Is(err, errSessionEnded) {
		return nil
	}
	return err
}

func (g *Gateway) run(ctx context.Context, conn LineConn, s *session.Session) error {
	selected, err := g.selectCharacter(ctx, conn, s)
	if err != nil || !selected {
		return err
	}
	for {
		line, err := g.readLine(ctx, conn, s)
		if err != nil {
			return err
		}
		if err := g.router.Dispatch(s, line); errors.Is(err, command.ErrSessionClosed) {
			return errSessionEnded
		}
	}
}

// forward drains the session outbox onto the connection. When the outbox
// closes it closes the connection so a blocked reader returns.
func (g *Gateway) forward(s *session.Session, conn LineConn) {
	for line := range s.Outbound() {
		if err := conn.WriteLine(line); err != nil {
			g.logger.Debug("write failed, disconnecting",
				zap.String("session_id", s.ID()),
				zap.Error(err),
			)
			s.Disconnect()
			for range s.Outbound() {
			}
			break
		}
	}
	_ = conn.Close()
}

// readLine reads the next line and marks the session active.
func (g *Gateway) readLine(ctx context.Context, conn LineConn, s *session.Session) (string, error) {
	line, err := conn.ReadLine()
	if err != nil {
		if s.IsClosed() || ctx.Err() != nil {
			return "", errSessionEnded
		}
		return "", fmt.Errorf("reading packet: %w", err)
	}
	s.Touch()
	return line, nil
}

func (g *Gateway) readFields(ctx context.Context, conn LineConn, s *session.Session) ([]string, error) {
	line, err := g.readLine(ctx, conn, s)
	if err != nil {
		return nil, err
	}
	return strings.Fields(line), nil
}
