package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/cory-johannsen/nosgate/internal/game/character"
)

// ErrCharacterActive is returned when selecting a character on a session that already has one.
var ErrCharacterActive = errors.New("a character is already active on this session")

// Account is the authenticated account that owns a session.
type Account struct {
	ID        int64
	Name      string
	Authority int
}

// Options tunes a new Session.
type Options struct {
	// SendBuffer is the outbound queue length.
	SendBuffer int
	// ChatRate is the sustained chat lines per second; 0 disables limiting.
	ChatRate float64
	// ChatBurst is the chat burst allowance.
	ChatBurst int
}

// Session is one logical player connection.
//
// Inbound lines are handled one at a time through Serve. Disconnect may be
// called from any goroutine, including from inside a handler. Disconnect
// hooks never run while a handler is in flight: they run when it returns.
type Session struct {
	id         string
	remoteAddr string
	account    Account
	outbox     *Outbox
	chat       *rate.Limiter

	// proc serializes handler execution for this session.
	proc      sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	lastSeen  atomic.Int64

	// hookMu guards hooks, serving and detachPending, and orders them with closed.
	hookMu        sync.Mutex
	hooks         []func(*Session)
	serving       bool
	detachPending bool

	mu    sync.RWMutex
	char  *character.Character
	mapID string
}

// New creates a Session for an authenticated account.
//
// Postcondition: Returns an open Session with a fresh random id.
func New(remoteAddr string, acct Account, opts Options) *Session {
	id := uuid.NewString()
	s := &Session{
		id:         id,
		remoteAddr: remoteAddr,
		account:    acct,
		outbox:     NewOutbox(id, opts.SendBuffer),
		chat:       rate.NewLimiter(rate.Inf, 0),
	}
	if opts.ChatRate > 0 {
		burst := opts.ChatBurst
		if burst < 1 {
			burst = 1
		}
		s.chat = rate.NewLimiter(rate.Limit(opts.ChatRate), burst)
	}
	s.Touch()
	return s
}

// ID returns the unique session id.
func (s *Session) ID() string { return s.id }

// RemoteAddr returns the peer address reported by the transport.
func (s *Session) RemoteAddr() string { return s.remoteAddr }

// Account returns the owning account.
func (s *Session) Account() Account { return s.account }

// AccountID returns the owning account id.
func (s *Session) AccountID() int64 { return s.account.ID }

// Character returns the active character, or nil before selection.
func (s *Session) Character() *character.Character {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.char
}

// CharacterID returns the active character id, or 0 before selection.
func (s *Session) CharacterID() int64 {
	if c := s.Character(); c != nil {
		return c.ID
	}
	return 0
}

// CharacterName returns the active character name, or "" before selection.
func (s *Session) CharacterName() string {
	if c := s.Character(); c != nil {
		return c.Name
	}
	return ""
}

// CurrentMap returns the map the session is placed on, or "".
func (s *Session) CurrentMap() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mapID
}

func (s *Session) setMap(id string) {
	s.mu.Lock()
	s.mapID = id
	s.mu.Unlock()
	if c := s.Character(); c != nil && id != "" {
		c.SetMapID(id)
	}
}

// SelectCharacter makes c the session's active character.
//
// Postcondition: Returns ErrCharacterActive if a character was already selected.
func (s *Session) SelectCharacter(c *character.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.char != nil {
		return ErrCharacterActive
	}
	s.char = c
	return nil
}

// SendLine enqueues text for delivery without blocking.
//
// Postcondition: Returns an error when the session is closed or its buffer is full.
func (s *Session) SendLine(text string) error {
	return s.outbox.Push(text)
}

// Outbound returns the queue drained by the transport writer. It is closed
// after Disconnect once pending lines are consumed.
func (s *Session) Outbound() <-chan string {
	return s.outbox.Lines()
}

// Serve runs fn on the session's processing path. Calls never overlap for a
// given session, and nothing runs once the session is disconnected. A
// Disconnect that lands while fn runs takes effect when fn returns.
//
// Postcondition: Returns false without calling fn if the session is closed.
func (s *Session) Serve(fn func()) bool {
	s.proc.Lock()
	defer s.proc.Unlock()

	s.hookMu.Lock()
	if s.closed.Load() {
		s.hookMu.Unlock()
		return false
	}
	s.serving = true
	s.hookMu.Unlock()

	defer func() {
		s.hookMu.Lock()
		s.serving = false
		detach := s.detachPending
		s.detachPending = false
		s.hookMu.Unlock()
		if detach {
			s.detach()
		}
	}()

	s.Touch()
	fn()
	return true
}

// OnDisconnect registers fn to run once when the session disconnects. If the
// session is already closed, fn runs immediately.
func (s *Session) OnDisconnect(fn func(*Session)) {
	s.hookMu.Lock()
	if !s.closed.Load() {
		s.hooks = append(s.hooks, fn)
		s.hookMu.Unlock()
		return
	}
	s.hookMu.Unlock()
	fn(s)
}

// Disconnect closes the session. Hooks run in registration order, then the
// outbox is closed so the writer can flush what is queued. If a handler is
// running in Serve, both happen when it returns. Safe to call repeatedly and
// concurrently.
func (s *Session) Disconnect() {
	s.closeOnce.Do(func() {
		s.hookMu.Lock()
		s.closed.Store(true)
		if s.serving {
			s.detachPending = true
			s.hookMu.Unlock()
			return
		}
		s.hookMu.Unlock()
		s.detach()
	})
}

func (s *Session) detach() {
	s.hookMu.Lock()
	hooks := s.hooks
	s.hooks = nil
	s.hookMu.Unlock()

	for _, fn := range hooks {
		fn(s)
	}
	s.outbox.Close()
}

// IsClosed reports whether Disconnect has been called.
func (s *Session) IsClosed() bool { return s.closed.Load() }

// AllowChat consumes one token from the chat limiter.
func (s *Session) AllowChat() bool { return s.chat.Allow() }

// Touch records inbound activity.
func (s *Session) Touch() { s.lastSeen.Store(time.Now().UnixNano()) }

// IdleFor returns how long the session has been silent as of now.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}
