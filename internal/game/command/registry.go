// Package command routes inbound text packets to typed handlers.
//
// A Router is built once at startup from a fixed list of Bindings. Each
// Binding pairs a header with the Shape its body must match and the handler
// that receives the converted command.
package command

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/cory-johannsen/nosgate/internal/game/session"
)

var (
	// ErrUnknownHeader is returned by Dispatch for an unregistered header.
	ErrUnknownHeader = errors.New("unknown packet header")
	// ErrSessionClosed is returned by Dispatch once the session has disconnected.
	ErrSessionClosed = errors.New("session closed")
	// ErrHandlerPanic is returned by Dispatch when a handler panicked.
	ErrHandlerPanic = errors.New("packet handler panicked")
)

// Binding ties a header to a body shape and a handler.
type Binding struct {
	Header string
	Shape  Shape
	invoke func(*session.Session, Args)
}

// Bind builds a Binding whose handler receives a typed command. build runs
// only on Args that already matched shape, so it needs no error path.
func Bind[T any](header string, shape Shape, build func(Args) T, handle func(*session.Session, T)) Binding {
	return Binding{
		Header: header,
		Shape:  shape,
		invoke: func(s *session.Session, a Args) { handle(s, build(a)) },
	}
}

// Bare builds a Binding for a packet with no body.
func Bare(header string, handle func(*session.Session)) Binding {
	return Binding{
		Header: header,
		invoke: func(s *session.Session, _ Args) { handle(s) },
	}
}

// Router maps headers to bindings. Register all bindings before the first
// Dispatch; afterwards the table is read-only and Dispatch is safe for
// concurrent use across sessions.
type Router struct {
	bindings map[string]Binding
	logger   *zap.Logger
}

// NewRouter creates a Router populated with the given bindings.
//
// Precondition: No two bindings may share a header.
// Postcondition: Returns a Router, or an error on a duplicate header or invalid shape.
func NewRouter(logger *zap.Logger, bindings ...Binding) (*Router, error) {
	r := &Router{
		bindings: make(map[string]Binding, len(bindings)),
		logger:   logger,
	}
	for _, b := range bindings {
		if err := r.Register(b); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustRouter is NewRouter for startup code: a bad table is a programming error.
func MustRouter(logger *zap.Logger, bindings ...Binding) *Router {
	r, err := NewRouter(logger, bindings...)
	if err != nil {
		panic(fmt.Sprintf("building packet router: %v", err))
	}
	return r
}

// Register adds one binding.
//
// Postcondition: Returns an error if the header is empty, already bound, or
// the shape is invalid.
func (r *Router) Register(b Binding) error {
	if b.Header == "" {
		return errors.New("binding has an empty header")
	}
	if b.invoke == nil {
		return fmt.Errorf("binding %q has no handler", b.Header)
	}
	if _, exists := r.bindings[b.Header]; exists {
		return fmt.Errorf("duplicate packet header: %q", b.Header)
	}
	if err := b.Shape.Validate(); err != nil {
		return fmt.Errorf("packet %q: %w", b.Header, err)
	}
	r.bindings[b.Header] = b
	return nil
}

// Headers returns every registered header in sorted order.
func (r *Router) Headers() []string {
	out := make([]string, 0, len(r.bindings))
	for h := range r.bindings {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Dispatch parses one inbound line and runs its handler on the session's
// processing path. Unknown headers and malformed bodies are logged at debug
// level and dropped; the handler never sees them.
//
// Postcondition: Returns nil when the handler ran, ErrUnknownHeader, a
// *ParseError, ErrSessionClosed, or ErrHandlerPanic.
func (r *Router) Dispatch(s *session.Session, line string) error {
	pr := Parse(line)
	if pr.Header == "" {
		return nil
	}

	b, ok := r.bindings[pr.Header]
	if !ok {
		r.logger.Debug("dropping unknown packet",
			zap.String("session_id", s.ID()),
			zap.String("header", pr.Header),
		)
		return ErrUnknownHeader
	}

	args, err := b.Shape.Parse(pr.RawArgs)
	if err != nil {
		r.logger.Debug("dropping malformed packet",
			zap.String("session_id", s.ID()),
			zap.String("header", pr.Header),
			zap.Error(err),
		)
		return err
	}

	var result error
	served := s.Serve(func() { result = r.invoke(s, b, args) })
	if !served {
		return ErrSessionClosed
	}
	return result
}

func (r *Router) invoke(s *session.Session, b Binding, args Args) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("packet handler panicked",
				zap.String("session_id", s.ID()),
				zap.String("header", b.Header),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			err = ErrHandlerPanic
		}
	}()
	b.invoke(s, args)
	return nil
}
