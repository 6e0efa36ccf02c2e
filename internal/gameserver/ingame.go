package gameserver

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/nosgate/internal/game/broadcast"
	"github.com/cory-johannsen/nosgate/internal/game/character"
	"github.com/cory-johannsen/nosgate/internal/game/gate"
	"github.com/cory-johannsen/nosgate/internal/game/message"
	"github.com/cory-johannsen/nosgate/internal/game/session"
	"github.com/cory-johannsen/nosgate/internal/storage/postgres"
)

// firstLoginScene is sent on an account's first ever game start.
const firstLoginScene = "scene 40"

// handlePulse checks the client heartbeat. Ticks must advance by exactly
// character.PulseInterval; anything else ends the session.
func (w *World) handlePulse(s *session.Session, cmd pulseCmd) {
	c := s.Character()
	if c == nil {
		return
	}
	if !c.AdvancePulse(cmd.Tick) {
		w.sessionLogger(s).Warn("pulse out of sequence",
			zap.Int64("tick", cmd.Tick),
			zap.Int64("expected", c.LastPulse()+character.PulseInterval),
		)
		s.Disconnect()
	}
}

// handleBazaarList sends one page of bazaar listings once no refresh is in
// progress.
func (w *World) handleBazaarList(s *session.Session, cmd bazaarListCmd) {
	if w.bazaar == nil {
		w.reply(s, msgLine(msgCenter, w.text(message.ServiceUnavailable)))
		return
	}
	size := w.cfg.BazaarPageSize
	if size <= 0 {
		size = 50
	}
	page := cmd.Page
	if page < 0 {
		page = 0
	}
	listings, _, err := w.bazaar.Page(context.Background(), page, size)
	switch {
	case errors.Is(err, gate.ErrTimeout):
		w.reply(s, msgLine(msgCenter, w.text(message.MarketRefreshing)))
		return
	case err != nil:
		w.sessionLogger(s).Warn("reading bazaar page", zap.Int("page", page), zap.Error(err))
		w.reply(s, msgLine(msgCenter, w.text(message.ServiceUnavailable)))
		return
	}
	w.reply(s, rcBlistLine(page, listings, time.Now()))
}

// handleGameStart places the selected character in the world.
func (w *World) handleGameStart(s *session.Session) {
	c := s.Character()
	if c == nil {
		w.reply(s, infoLine(w.text(message.NoCharacterSelected)))
		return
	}
	if s.CurrentMap() != "" {
		w.reply(s, infoLine(w.text(message.AlreadyInGame)))
		return
	}
	if err := w.sessions.BindCharacter(s); err != nil {
		w.sessionLogger(s).Info("game start refused", zap.Error(err))
		w.reply(s, infoLine(w.text(message.AlreadyInGame)))
		return
	}
	w.names.Store(c.ID, c.Name)

	mapID := c.MapID()
	if _, ok := w.maps.Map(mapID); !ok {
		mapID = w.cfg.StartMap
	}
	if w.firstLogin(s) {
		w.reply(s, firstLoginScene)
	}
	w.enterMap(s, c, mapID)

	w.sendFinit(s)
	w.sendBlinit(s)
	if g, ok := w.groups.Of(c.ID); ok {
		w.sendPinit(g)
	}
	w.notifyFriends(c)
	w.sessionLogger(s).Info("character entered world", zap.String("map_id", mapID))
}

// handleTeleport moves the acting game master to another map.
func (w *World) handleTeleport(s *session.Session, cmd teleportCmd) {
	c, ok := inGame(s)
	if !ok {
		return
	}
	if s.Account().Authority < character.AuthorityGameMaster {
		w.reply(s, infoLine(w.text(message.InsufficientAuthority)))
		return
	}
	m, ok := w.maps.Map(cmd.MapID)
	if !ok {
		w.reply(s, infoLine(w.format(message.UnknownMap, cmd.MapID)))
		return
	}
	w.broadcast.Broadcast(s, outLine(c.ID), broadcast.AllExceptSender, broadcast.Target{})
	w.enterMap(s, c, m.ID)
	w.reply(s, infoLine(w.format(message.Teleported, m.Name)))
	w.writeLog(s, postgres.LogAdmin, "teleport "+m.ID)
}

// enterMap places s on mapID, announces it to the map, and shows the map's
// other occupants to s.
func (w *World) enterMap(s *session.Session, c *character.Character, mapID string) {
	if _, err := w.sessions.MoveToMap(s.ID(), mapID); err != nil {
		w.sessionLogger(s).Error("placing session on map", zap.String("map_id", mapID), zap.Error(err))
		return
	}
	if m, ok := w.maps.Map(mapID); ok {
		c.Place(m.SpawnX, m.SpawnY, time.Now())
	}
	w.broadcast.Broadcast(s, inLine(c), broadcast.AllExceptSender, broadcast.Target{})
	for _, other := range w.sessions.OnMap(mapID) {
		if other == s {
			continue
		}
		if oc := other.Character(); oc != nil {
			w.reply(s, inLine(oc))
		}
	}
}

func (w *World) firstLogin(s *session.Session) bool {
	if w.logs == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	n, err := w.logs.Count(ctx, s.AccountID(), postgres.LogConnection)
	if err != nil {
		w.sessionLogger(s).Warn("counting connection logs", zap.Error(err))
		return false
	}
	return n == 1
}
