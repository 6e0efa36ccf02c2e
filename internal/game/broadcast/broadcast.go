// Package broadcast resolves audiences and fans one outbound line out to them.
package broadcast

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/nosgate/internal/game/character"
	"github.com/cory-johannsen/nosgate/internal/game/group"
	"github.com/cory-johannsen/nosgate/internal/game/session"
)

// Selector names an audience relative to a sending session.
type Selector int

const (
	// AllOnMap is every character on the sender's map, sender included.
	AllOnMap Selector = iota
	// AllExceptSender is AllOnMap without the sender.
	AllExceptSender
	// Group is every online member of the sender's group.
	Group
	// Faction is everyone on the sender's map sharing its faction.
	Faction
	// FactionExceptSender is Faction without the sender.
	FactionExceptSender
	// Someone is the single character named by the Target.
	Someone
	// AllExceptFactionAndSender is everyone on the map of a different faction.
	AllExceptFactionAndSender
	// AllOnMapNoEmoticonBlocked is AllOnMap minus characters blocking emoticons.
	AllOnMapNoEmoticonBlocked
	// Everyone is every in-game character on the server.
	Everyone
	// EveryoneNoHeroBlocked is Everyone minus characters blocking hero chat.
	EveryoneNoHeroBlocked
)

var selectorNames = [...]string{
	"all_on_map",
	"all_except_sender",
	"group",
	"faction",
	"faction_except_sender",
	"someone",
	"all_except_faction_and_sender",
	"all_on_map_no_emoticon_blocked",
	"everyone",
	"everyone_no_hero_blocked",
}

func (s Selector) String() string {
	if s < 0 || int(s) >= len(selectorNames) {
		return "unknown"
	}
	return selectorNames[s]
}

// Target identifies the recipient for Someone. CharacterID wins over Name.
type Target struct {
	CharacterID int64
	Name        string
}

// Broadcaster delivers lines to audiences resolved from the session manager
// and the group registry.
type Broadcaster struct {
	sessions *session.Manager
	groups   *group.Registry
	logger   *zap.Logger
}

// New creates a Broadcaster.
//
// Precondition: sessions and groups must be non-nil.
func New(sessions *session.Manager, groups *group.Registry, logger *zap.Logger) *Broadcaster {
	if sessions == nil || groups == nil {
		panic("broadcast.New: sessions and groups must be non-nil")
	}
	return &Broadcaster{sessions: sessions, groups: groups, logger: logger}
}

// Broadcast sends line to the audience of sel relative to src.
// The audience is resolved once; each delivery then succeeds or fails on its
// own, and a failed send never stops the others.
//
// Postcondition: Returns the number of sessions the line was queued for.
func (b *Broadcaster) Broadcast(src *session.Session, line string, sel Selector, target Target) int {
	return b.deliver(b.Audience(src, sel, target), line, sel)
}

// ToMap sends a system line to every character on mapID.
func (b *Broadcaster) ToMap(mapID, line string) int {
	return b.deliver(b.sessions.OnMap(mapID), line, AllOnMap)
}

// ToCharacter sends line to one character if it is online on this server.
//
// Postcondition: Returns true only when the line was queued.
func (b *Broadcaster) ToCharacter(charID int64, line string) bool {
	s, ok := b.sessions.ByCharacterID(charID)
	if !ok {
		return false
	}
	return b.deliver([]*session.Session{s}, line, Someone) == 1
}

func (b *Broadcaster) deliver(audience []*session.Session, line string, sel Selector) int {
	delivered := 0
	for _, s := range audience {
		if err := s.SendLine(line); err != nil {
			b.logger.Debug("broadcast delivery skipped",
				zap.String("session_id", s.ID()),
				zap.Stringer("selector", sel),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}

// Audience resolves the sessions sel addresses relative to src, as a snapshot.
//
// Postcondition: Returns a slice with no duplicates; empty when src has no
// character or the selector cannot be resolved.
func (b *Broadcaster) Audience(src *session.Session, sel Selector, target Target) []*session.Session {
	switch sel {
	case Someone:
		return b.someone(target)
	case Everyone:
		return b.sessions.InGame()
	case EveryoneNoHeroBlocked:
		return filter(b.sessions.InGame(), func(s *session.Session, c *character.Character) bool {
			return !c.Option(character.OptionHeroChatBlocked)
		})
	}

	if src == nil {
		return nil
	}
	me := src.Character()
	if me == nil {
		return nil
	}

	if sel == Group {
		return b.groupMembers(me.ID)
	}

	onMap := b.sessions.OnMap(src.CurrentMap())
	switch sel {
	case AllOnMap:
		return onMap
	case AllExceptSender:
		return filter(onMap, func(s *session.Session, _ *character.Character) bool { return s != src })
	case Faction:
		return filter(onMap, func(_ *session.Session, c *character.Character) bool { return c.Faction == me.Faction })
	case FactionExceptSender:
		return filter(onMap, func(s *session.Session, c *character.Character) bool {
			return s != src && c.Faction == me.Faction
		})
	case AllExceptFactionAndSender:
		return filter(onMap, func(s *session.Session, c *character.Character) bool {
			return s != src && c.Faction != me.Faction
		})
	case AllOnMapNoEmoticonBlocked:
		return filter(onMap, func(_ *session.Session, c *character.Character) bool {
			return !c.Option(character.OptionEmoticonsBlocked)
		})
	}
	return nil
}

func (b *Broadcaster) someone(target Target) []*session.Session {
	var (
		s  *session.Session
		ok bool
	)
	if target.CharacterID != 0 {
		s, ok = b.sessions.ByCharacterID(target.CharacterID)
	} else if target.Name != "" {
		s, ok = b.sessions.ByCharacterName(target.Name)
	}
	if !ok {
		return nil
	}
	return []*session.Session{s}
}

func (b *Broadcaster) groupMembers(charID int64) []*session.Session {
	g, ok := b.groups.Of(charID)
	if !ok {
		return nil
	}
	members := g.Members()
	out := make([]*session.Session, 0, len(members))
	for _, id := range members {
		if s, ok := b.sessions.ByCharacterID(id); ok {
			out = append(out, s)
		}
	}
	return out
}

func filter(in []*session.Session, keep func(*session.Session, *character.Character) bool) []*session.Session {
	out := in[:0:0]
	for _, s := range in {
		c := s.Character()
		if c == nil {
			continue
		}
		if keep(s, c) {
			out = append(out, s)
		}
	}
	return out
}
