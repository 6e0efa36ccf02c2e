package gameserver

import (
	"github.com/cory-johannsen/nosgate/internal/game/character"
	"github.com/cory-johannsen/nosgate/internal/game/command"
	"github.com/cory-johannsen/nosgate/internal/game/message"
	"github.com/cory-johannsen/nosgate/internal/game/relation"
	"github.com/cory-johannsen/nosgate/internal/game/session"
	"github.com/cory-johannsen/nosgate/internal/storage/postgres"
)

// handleFriendRequest asks another character for friendship.
func (w *World) handleFriendRequest(s *session.Session, cmd characterCmd) {
	c := s.Character()
	if c == nil || cmd.CharacterID == 0 || cmd.CharacterID == c.ID {
		return
	}
	if w.friendListFull(c) {
		w.reply(s, infoLine(w.text(message.FriendFull)))
		return
	}
	if c.IsFriend(cmd.CharacterID) {
		w.reply(s, infoLine(w.text(message.AlreadyFriend)))
		return
	}
	target, online := w.sessions.ByCharacterID(cmd.CharacterID)
	var tc *character.Character
	if online {
		tc = target.Character()
	}
	if tc != nil && tc.IsBlocking(c.ID) {
		w.reply(s, infoLine(w.text(message.BlacklistBlocked)))
		return
	}
	if c.IsBlocking(cmd.CharacterID) {
		w.reply(s, infoLine(w.text(message.BlacklistBlocking)))
		return
	}
	if tc == nil {
		w.reply(s, infoLine(w.text(message.UserNotConnected)))
		return
	}
	if tc.Option(character.OptionFriendRequestBlocked) {
		w.reply(s, infoLine(w.text(message.FriendRequestBlocked)))
		return
	}

	c.FriendRequests.Add(tc.ID)
	w.reply(s, infoLine(w.format(message.FriendRequestSent, tc.Name)))
	w.reply(target, dlgLine(
		dialogAnswer(command.HeaderFriendAnswer, friendAccept, c.ID),
		dialogAnswer(command.HeaderFriendAnswer, friendReject, c.ID),
		w.format(message.FriendAdd, c.Name),
	))
}

// handleFriendAnswer settles a friend request dialog. A retry after the
// friendship exists is dropped, so crossed requests leave one entry per side.
func (w *World) handleFriendAnswer(s *session.Session, cmd friendAnswerCmd) {
	c := s.Character()
	if c == nil || cmd.CharacterID == 0 || cmd.CharacterID == c.ID {
		return
	}
	if c.IsFriend(cmd.CharacterID) || c.IsBlocking(cmd.CharacterID) {
		return
	}
	requester, ok := w.sessions.ByCharacterID(cmd.CharacterID)
	if !ok {
		return
	}
	rc := requester.Character()
	if rc == nil || rc.IsBlocking(c.ID) || !rc.FriendRequests.Take(c.ID) {
		return
	}

	if cmd.Answer == friendReject {
		w.reply(requester, infoLine(w.format(message.FriendRejected, c.Name)))
		return
	}
	if w.friendListFull(c) || w.friendListFull(rc) {
		w.reply(s, infoLine(w.text(message.FriendFull)))
		w.reply(requester, infoLine(w.text(message.FriendFull)))
		return
	}

	c.Relations.Add(rc.ID, relation.Friend)
	rc.Relations.Add(c.ID, relation.Friend)
	c.FriendRequests.Take(rc.ID)
	w.persistRelations(postgres.Friendship(c.ID, rc.ID), nil)

	w.sendFinit(s)
	w.sendFinit(requester)
	w.reply(s, infoLine(w.text(message.FriendAdded)))
	w.reply(requester, infoLine(w.text(message.FriendAdded)))
}

// handleFriendDelete ends a friendship on both sides.
func (w *World) handleFriendDelete(s *session.Session, cmd characterCmd) {
	c := s.Character()
	if c == nil || !c.Relations.DeleteIf(cmd.CharacterID, relation.Friend) {
		return
	}
	if other, ok := w.sessions.ByCharacterID(cmd.CharacterID); ok {
		if oc := other.Character(); oc != nil {
			oc.Relations.DeleteIf(c.ID, relation.Friend)
			w.sendFinit(other)
		}
	}
	w.persistRelations(nil, postgres.Friendship(c.ID, cmd.CharacterID))

	w.sendFinit(s)
	w.reply(s, infoLine(w.text(message.FriendDeleted)))
}

// handleBlockAdd blacklists a character, ending any friendship first.
func (w *World) handleBlockAdd(s *session.Session, cmd characterCmd) {
	c := s.Character()
	if c == nil || cmd.CharacterID == 0 || cmd.CharacterID == c.ID {
		return
	}
	var remove []postgres.Edge
	if c.IsFriend(cmd.CharacterID) {
		remove = postgres.Friendship(c.ID, cmd.CharacterID)
		if other, ok := w.sessions.ByCharacterID(cmd.CharacterID); ok {
			if oc := other.Character(); oc != nil {
				oc.Relations.DeleteIf(c.ID, relation.Friend)
				w.sendFinit(other)
			}
		}
	}
	c.Relations.Add(cmd.CharacterID, relation.Blocked)
	w.persistRelations([]postgres.Edge{{CharacterID: c.ID, TargetID: cmd.CharacterID, Type: relation.Blocked}}, remove)

	if remove != nil {
		w.sendFinit(s)
	}
	w.sendBlinit(s)
	w.reply(s, infoLine(w.text(message.BlacklistAdded)))
}

func (w *World) handleBlockDelete(s *session.Session, cmd characterCmd) {
	c := s.Character()
	if c == nil || !c.Relations.DeleteIf(cmd.CharacterID, relation.Blocked) {
		return
	}
	w.persistRelations(nil, []postgres.Edge{{CharacterID: c.ID, TargetID: cmd.CharacterID, Type: relation.Blocked}})
	w.sendBlinit(s)
	w.reply(s, infoLine(w.text(message.BlacklistDeleted)))
}

func (w *World) friendListFull(c *character.Character) bool {
	return w.cfg.FriendCapacity > 0 && c.Relations.Count(relation.Friend) >= w.cfg.FriendCapacity
}

func (w *World) sendFinit(s *session.Session) {
	c := s.Character()
	if c == nil {
		return
	}
	ids := c.Relations.List(relation.Friend)
	friends := make([]friendEntry, 0, len(ids))
	for _, id := range ids {
		_, online := w.sessions.ByCharacterID(id)
		friends = append(friends, friendEntry{ID: id, Online: online, Name: w.characterName(id)})
	}
	w.reply(s, finitLine(friends))
}

func (w *World) sendBlinit(s *session.Session) {
	c := s.Character()
	if c == nil {
		return
	}
	ids := c.Relations.List(relation.Blocked)
	blocked := make([]friendEntry, 0, len(ids))
	for _, id := range ids {
		blocked = append(blocked, friendEntry{ID: id, Name: w.characterName(id)})
	}
	w.reply(s, blinitLine(blocked))
}

// notifyFriends refreshes the friend list of every online friend of c, so
// they see c's online state change.
func (w *World) notifyFriends(c *character.Character) {
	for _, id := range c.Relations.List(relation.Friend) {
		if other, ok := w.sessions.ByCharacterID(id); ok {
			w.sendFinit(other)
		}
	}
}
