package gameserver

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/nosgate/internal/game/broadcast"
	"github.com/cory-johannsen/nosgate/internal/game/character"
	"github.com/cory-johannsen/nosgate/internal/game/message"
	"github.com/cory-johannsen/nosgate/internal/game/session"
	"github.com/cory-johannsen/nosgate/internal/relay"
	"github.com/cory-johannsen/nosgate/internal/storage/postgres"
)

// inGame returns the session's character when it is placed on a map.
func inGame(s *session.Session) (*character.Character, bool) {
	c := s.Character()
	if c == nil || s.CurrentMap() == "" {
		return nil, false
	}
	return c, true
}

// allowChat applies the session's chat limiter, telling the sender when a
// line is dropped.
func (w *World) allowChat(s *session.Session) bool {
	if s.AllowChat() {
		return true
	}
	w.reply(s, infoLine(w.text(message.ChatThrottled)))
	return false
}

func (w *World) handleDirection(s *session.Session, cmd directionCmd) {
	c, ok := inGame(s)
	if !ok || cmd.CharacterID != c.ID {
		return
	}
	c.SetDirection(cmd.Direction)
	w.broadcast.Broadcast(s, dirLine(c.ID, cmd.Direction), broadcast.AllOnMap, broadcast.Target{})
}

// handleSay delivers map speech. On faction maps the opposing faction only
// hears garbled speech.
func (w *World) handleSay(s *session.Session, cmd textCmd) {
	c, ok := inGame(s)
	if !ok {
		return
	}
	text := strings.TrimSpace(cmd.Message)
	if text == "" || !w.allowChat(s) {
		return
	}
	mapID := s.CurrentMap()
	if w.scripts != nil {
		filtered, allowed := w.scripts.FilterSay(c.ID, mapID, text)
		if !allowed {
			return
		}
		text = filtered
	}

	if w.maps.IsFactionMap(mapID) {
		w.broadcast.Broadcast(s, sayLine(c.ID, speechGarbled, garbledSpeech), broadcast.AllExceptFactionAndSender, broadcast.Target{})
		w.broadcast.Broadcast(s, sayLine(c.ID, speechNormal, text), broadcast.FactionExceptSender, broadcast.Target{})
		return
	}
	w.broadcast.Broadcast(s, sayLine(c.ID, speechNormal, text), broadcast.AllExceptSender, broadcast.Target{})
}

// handleWhisper sends a private line by character name. "GM <name>" only
// reaches administrators.
func (w *World) handleWhisper(s *session.Session, cmd whisperCmd) {
	c, ok := inGame(s)
	if !ok || !w.allowChat(s) {
		return
	}
	name, body := cmd.Target, cmd.Message
	gmOnly := false
	if name == "GM" {
		gmOnly = true
		name, body, _ = strings.Cut(body, " ")
	}
	text := strings.TrimSpace(truncateRunes(body, maxTalkLength))
	if name == "" || text == "" {
		return
	}

	speech := speechWhisper
	if s.Account().Authority >= character.AuthorityAdmin {
		speech = speechGM
	}
	line := spkLine(c.ID, speech, c.Name, text)
	echo := spkLine(c.ID, speechWhisper, c.Name, text)

	target, online := w.sessions.ByCharacterName(name)
	if !online {
		if w.deliverRemote(relay.Delivery{Kind: relay.KindWhisper, FromID: c.ID, FromName: c.Name, ToName: name, Line: line}) {
			w.reply(s, echo)
			w.reply(s, sayLine(c.ID, speechNotice, w.format(message.MessageSent, name)))
			return
		}
		w.reply(s, infoLine(w.text(message.UserNotConnected)))
		return
	}

	tc := target.Character()
	if tc == nil {
		w.reply(s, infoLine(w.text(message.UserNotConnected)))
		return
	}
	if tc.IsBlocking(c.ID) {
		w.reply(s, infoLine(w.text(message.BlacklistBlocked)))
		return
	}
	if gmOnly && target.Account().Authority < character.AuthorityAdmin {
		w.reply(s, sayLine(c.ID, speechSystem, w.format(message.UserNotAdmin, tc.Name)))
		return
	}
	if tc.Option(character.OptionWhisperBlocked) {
		w.reply(s, msgLine(msgCenter, w.text(message.UserWhisperBlocked)))
		return
	}
	w.reply(s, echo)
	w.broadcast.Broadcast(s, line, broadcast.Someone, broadcast.Target{CharacterID: tc.ID})
}

func (w *World) handleGroupTalk(s *session.Session, cmd textCmd) {
	c, ok := inGame(s)
	if !ok {
		return
	}
	if !w.groups.IsGrouped(c.ID) {
		w.reply(s, infoLine(w.text(message.NotInGroup)))
		return
	}
	text := strings.TrimSpace(cmd.Message)
	if text == "" || !w.allowChat(s) {
		return
	}
	w.broadcast.Broadcast(s, spkLine(c.ID, speechGroup, c.Name, text), broadcast.Group, broadcast.Target{})
}

// handleFriendTalk sends a line to a friend on this channel or, failing
// that, through the relay.
func (w *World) handleFriendTalk(s *session.Session, cmd friendTalkCmd) {
	c, ok := inGame(s)
	if !ok || !c.IsFriend(cmd.CharacterID) {
		return
	}
	text := strings.TrimSpace(truncateRunes(cmd.Message, maxTalkLength))
	if text == "" || !w.allowChat(s) {
		return
	}
	line := talkLine(c.ID, text)
	if target, ok := w.sessions.ByCharacterID(cmd.CharacterID); ok {
		if tc := target.Character(); tc != nil && !tc.IsBlocking(c.ID) && target.SendLine(line) == nil {
			return
		}
	} else if w.deliverRemote(relay.Delivery{Kind: relay.KindFriendTalk, FromID: c.ID, FromName: c.Name, ToID: cmd.CharacterID, Line: line}) {
		return
	}
	w.reply(s, infoLine(w.text(message.FriendOffline)))
}

// handleHeroChat shouts server-wide. Only characters at or above the hero
// reputation threshold may use it.
func (w *World) handleHeroChat(s *session.Session, cmd textCmd) {
	c, ok := inGame(s)
	if !ok {
		return
	}
	m, known := w.maps.Map(s.CurrentMap())
	if c.Reputation < w.cfg.HeroReputation || (known && !m.ShoutAllowed) {
		w.reply(s, sayLine(c.ID, speechNotice, w.text(message.HeroChatDenied)))
		return
	}
	text := strings.TrimSpace(cmd.Message)
	if text == "" || !w.allowChat(s) {
		return
	}
	w.broadcast.Broadcast(s, msgLine(msgHero, "["+c.Name+"]:"+text), broadcast.EveryoneNoHeroBlocked, broadcast.Target{})
	w.writeLog(s, postgres.LogChat, "hero: "+text)
}

func (w *World) handleGuri(s *session.Session, cmd guriCmd) {
	c, ok := inGame(s)
	if !ok {
		return
	}
	if cmd.Type != guriEmoticon {
		w.logger.Debug("ignoring guri", zap.Int64("type", cmd.Type), zap.String("session_id", s.ID()))
		return
	}
	if cmd.Value < emoticonFirst || cmd.Value > emoticonLast {
		return
	}
	if c.Option(character.OptionEmoticonsBlocked) {
		return
	}
	w.broadcast.Broadcast(s, effLine(c.ID, cmd.Value+emoticonOffset), broadcast.AllOnMapNoEmoticonBlocked, broadcast.Target{})
}

// deliverRemote hands d to the relay. It reports false when no relay is
// configured or no peer accepted the line.
func (w *World) deliverRemote(d relay.Delivery) bool {
	if w.relay == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := w.relay.Deliver(ctx, d); err != nil {
		w.logger.Debug("relay delivery failed", zap.String("kind", string(d.Kind)), zap.Error(err))
		return false
	}
	return true
}
