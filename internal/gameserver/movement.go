package gameserver

import (
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/nosgate/internal/game/broadcast"
	"github.com/cory-johannsen/nosgate/internal/game/session"
)

// handleWalk moves the character and tells the map. Targets outside the map
// are ignored; a step the character could not have made ends the session.
func (w *World) handleWalk(s *session.Session, cmd walkCmd) {
	c, ok := inGame(s)
	if !ok {
		return
	}
	m, ok := w.maps.Map(s.CurrentMap())
	if !ok || !m.Contains(cmd.X, cmd.Y) {
		return
	}
	fromX, fromY := c.Position()
	if !c.Walk(cmd.X, cmd.Y, cmd.Speed, time.Now()) {
		w.sessionLogger(s).Warn("impossible walk",
			zap.Int("from_x", fromX), zap.Int("from_y", fromY),
			zap.Int("x", cmd.X), zap.Int("y", cmd.Y),
			zap.Int("speed", cmd.Speed), zap.Int("max_speed", c.Speed),
		)
		s.Disconnect()
		return
	}
	w.broadcast.Broadcast(s, mvLine(c.ID, cmd.X, cmd.Y, c.Speed), broadcast.AllOnMap, broadcast.Target{})
	w.reply(s, condLine(c))
}

// handleRest toggles sitting and tells the map.
func (w *World) handleRest(s *session.Session, _ restCmd) {
	c, ok := inGame(s)
	if !ok {
		return
	}
	w.broadcast.Broadcast(s, restLine(c.ID, c.ToggleRest()), broadcast.AllOnMap, broadcast.Target{})
}
