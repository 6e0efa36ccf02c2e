// Package gameserver wires the shared world state to the packet handlers
// and owns the session lifecycle hooks.
package gameserver

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/nosgate/internal/config"
	"github.com/cory-johannsen/nosgate/internal/game/bazaar"
	"github.com/cory-johannsen/nosgate/internal/game/broadcast"
	"github.com/cory-johannsen/nosgate/internal/game/character"
	"github.com/cory-johannsen/nosgate/internal/game/group"
	"github.com/cory-johannsen/nosgate/internal/game/message"
	"github.com/cory-johannsen/nosgate/internal/game/session"
	"github.com/cory-johannsen/nosgate/internal/game/world"
	"github.com/cory-johannsen/nosgate/internal/observability"
	"github.com/cory-johannsen/nosgate/internal/relay"
	"github.com/cory-johannsen/nosgate/internal/scripting"
	"github.com/cory-johannsen/nosgate/internal/storage/postgres"
)

// saveTimeout bounds the character save run when a session disconnects.
const saveTimeout = 5 * time.Second

// storeTimeout bounds store calls made from a packet handler.
const storeTimeout = 2 * time.Second

// CharacterStore loads and persists characters.
type CharacterStore interface {
	GetByID(ctx context.Context, id int64) (character.Record, error)
	SaveState(ctx context.Context, rec character.Record) error
}

// RelationStore persists friend and block edges.
type RelationStore interface {
	Upsert(ctx context.Context, edges ...postgres.Edge) error
	Delete(ctx context.Context, edges ...postgres.Edge) error
}

// LogStore appends general log rows.
type LogStore interface {
	Write(ctx context.Context, e postgres.GeneralLogEntry) error
	Count(ctx context.Context, accountID int64, logType string) (int, error)
}

// Relay delivers a line to a character hosted on another channel.
type Relay interface {
	Deliver(ctx context.Context, d relay.Delivery) error
}

// Deps are the collaborators of a World. Sessions, Groups, Maps and Logger
// are required; a nil store, relay, bazaar, or script manager disables the
// features that depend on it.
type Deps struct {
	Config     config.WorldConfig
	Sessions   *session.Manager
	Groups     *group.Registry
	Maps       *world.Manager
	Messages   *message.Catalog
	Bazaar     *bazaar.Store
	Scripts    *scripting.Manager
	Characters CharacterStore
	Relations  RelationStore
	Logs       LogStore
	Relay      Relay
	Logger     *zap.Logger
}

// World is the shared context every packet handler runs against.
type World struct {
	cfg        config.WorldConfig
	sessions   *session.Manager
	groups     *group.Registry
	broadcast  *broadcast.Broadcaster
	maps       *world.Manager
	messages   *message.Catalog
	bazaar     *bazaar.Store
	scripts    *scripting.Manager
	characters CharacterStore
	relations  RelationStore
	logs       LogStore
	relay      Relay
	logger     *zap.Logger

	// names caches character id → name for list packets.
	names sync.Map
}

// NewWorld creates a World and installs the engine callbacks on the script
// manager, if any.
//
// Precondition: d.Sessions, d.Groups, d.Maps and d.Logger must be non-nil.
// Postcondition: Returns a World ready to serve sessions.
func NewWorld(d Deps) *World {
	if d.Sessions == nil || d.Groups == nil || d.Maps == nil || d.Logger == nil {
		panic("gameserver.NewWorld: sessions, groups, maps and logger must be non-nil")
	}
	w := &World{
		cfg:        d.Config,
		sessions:   d.Sessions,
		groups:     d.Groups,
		broadcast:  broadcast.New(d.Sessions, d.Groups, d.Logger),
		maps:       d.Maps,
		messages:   d.Messages,
		bazaar:     d.Bazaar,
		scripts:    d.Scripts,
		characters: d.Characters,
		relations:  d.Relations,
		logs:       d.Logs,
		relay:      d.Relay,
		logger:     d.Logger,
	}
	if w.scripts != nil {
		w.scripts.MapName = func(id string) string {
			if m, ok := w.maps.Map(id); ok {
				return m.Name
			}
			return ""
		}
		w.scripts.IsFactionMap = w.maps.IsFactionMap
		w.scripts.CharacterName = w.characterName
		w.scripts.Notify = func(charID int64, text string) {
			w.broadcast.ToCharacter(charID, infoLine(text))
		}
	}
	return w
}

// Sessions returns the session manager.
func (w *World) Sessions() *session.Manager { return w.sessions }

// Broadcaster returns the broadcaster bound to this world.
func (w *World) Broadcaster() *broadcast.Broadcaster { return w.broadcast }

// SessionOptions returns the per-session settings for new connections.
func (w *World) SessionOptions() session.Options {
	return session.Options{
		SendBuffer: w.cfg.SendBuffer,
		ChatRate:   w.cfg.ChatRate,
		ChatBurst:  w.cfg.ChatBurst,
	}
}

// Attach registers an authenticated session and installs the disconnect hook.
//
// Postcondition: On success the session is indexed and will be cleaned up by
// Disconnect; on error nothing was registered.
func (w *World) Attach(s *session.Session) error {
	if err := w.sessions.Add(s); err != nil {
		return err
	}
	s.OnDisconnect(w.detach)
	w.writeLog(s, postgres.LogConnection, "login")
	return nil
}

// detach runs once per session, in order: group leave, map exit, index
// removal, state save, audit row.
func (w *World) detach(s *session.Session) {
	logger := w.sessionLogger(s)
	c := s.Character()

	if c != nil {
		w.leaveGroup(c)
		c.GroupRequests.Clear()
		c.FriendRequests.Clear()
		if mapID := s.CurrentMap(); mapID != "" {
			w.broadcast.Broadcast(s, outLine(c.ID), broadcast.AllExceptSender, broadcast.Target{})
		}
	}

	w.sessions.Remove(s.ID())

	if c != nil {
		w.notifyFriends(c)
		if w.characters != nil {
			ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
			if err := w.characters.SaveState(ctx, c.Snapshot()); err != nil {
				logger.Error("saving character on disconnect", zap.Error(err))
			}
			cancel()
		}
	}
	w.writeLog(s, postgres.LogConnection, "logout")
	logger.Info("session detached")
}

// SweepIdle disconnects every session silent for longer than the configured
// idle timeout.
//
// Postcondition: Returns the number of sessions disconnected.
func (w *World) SweepIdle(now time.Time) int {
	if w.cfg.IdleTimeout <= 0 {
		return 0
	}
	n := 0
	for _, s := range w.sessions.All() {
		if s.IdleFor(now) > w.cfg.IdleTimeout {
			w.sessionLogger(s).Info("disconnecting idle session", zap.Duration("idle", s.IdleFor(now)))
			s.Disconnect()
			n++
		}
	}
	return n
}

// DeliverLocal hands a relayed line to a character on this channel. It
// applies the recipient's own blocks, since the sender's channel cannot see
// them.
//
// Postcondition: Returns true only when the line was queued.
func (w *World) DeliverLocal(d relay.Delivery) bool {
	var (
		s  *session.Session
		ok bool
	)
	if d.ToID != 0 {
		s, ok = w.sessions.ByCharacterID(d.ToID)
	} else {
		s, ok = w.sessions.ByCharacterName(d.ToName)
	}
	if !ok {
		return false
	}
	c := s.Character()
	if c == nil || c.IsBlocking(d.FromID) {
		return false
	}
	switch d.Kind {
	case relay.KindWhisper:
		if c.Option(character.OptionWhisperBlocked) {
			return false
		}
	case relay.KindFriendTalk:
		if !c.IsFriend(d.FromID) {
			return false
		}
	}
	return s.SendLine(d.Line) == nil
}

func (w *World) text(id string) string { return w.messages.Get(id) }

func (w *World) format(id string, args ...any) string { return w.messages.Format(id, args...) }

// reply queues line for s, logging a full or closed outbox at debug level.
func (w *World) reply(s *session.Session, line string) {
	if err := s.SendLine(line); err != nil {
		w.logger.Debug("reply dropped", zap.String("session_id", s.ID()), zap.Error(err))
	}
}

func (w *World) sessionLogger(s *session.Session) *zap.Logger {
	return w.logger.With(observability.SessionFields(s.ID(), s.AccountID(), s.CharacterID())...)
}

// characterName resolves a display name for id from live sessions, the
// cache, then the character store.
func (w *World) characterName(id int64) string {
	if s, ok := w.sessions.ByCharacterID(id); ok {
		name := s.CharacterName()
		w.names.Store(id, name)
		return name
	}
	if v, ok := w.names.Load(id); ok {
		return v.(string)
	}
	if w.characters == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	rec, err := w.characters.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, postgres.ErrCharacterNotFound) {
			w.logger.Warn("resolving character name", zap.Int64("character_id", id), zap.Error(err))
		}
		return ""
	}
	w.names.Store(id, rec.Name)
	return rec.Name
}

// writeLog appends an audit row. Failures are logged and swallowed.
func (w *World) writeLog(s *session.Session, logType, text string) {
	if w.logs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	err := w.logs.Write(ctx, postgres.GeneralLogEntry{
		AccountID:   s.AccountID(),
		CharacterID: s.CharacterID(),
		Type:        logType,
		IP:          s.RemoteAddr(),
		Message:     text,
	})
	if err != nil {
		w.sessionLogger(s).Warn("writing general log", zap.String("type", logType), zap.Error(err))
	}
}

// persistRelations applies relation edge changes to the store. Failures are
// logged; the in-memory change stands.
func (w *World) persistRelations(upsert, remove []postgres.Edge) {
	if w.relations == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if len(remove) > 0 {
		if err := w.relations.Delete(ctx, remove...); err != nil {
			w.logger.Error("deleting relations", zap.Int("edges", len(remove)), zap.Error(err))
		}
	}
	if len(upsert) > 0 {
		if err := w.relations.Upsert(ctx, upsert...); err != nil {
			w.logger.Error("storing relations", zap.Int("edges", len(upsert)), zap.Error(err))
		}
	}
}
