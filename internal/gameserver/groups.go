package gameserver

import (
	"errors"

	"go.uber.org/zap"

	"github.com/cory-johannsen/nosgate/internal/game/broadcast"
	"github.com/cory-johannsen/nosgate/internal/game/character"
	"github.com/cory-johannsen/nosgate/internal/game/command"
	"github.com/cory-johannsen/nosgate/internal/game/group"
	"github.com/cory-johannsen/nosgate/internal/game/message"
	"github.com/cory-johannsen/nosgate/internal/game/session"
)

// handleGroupRequest sends a group invitation, or asks the other members to
// switch to shared drops.
//
// Checks run in a fixed order and the first failing one answers the sender.
func (w *World) handleGroupRequest(s *session.Session, cmd groupCmd) {
	c, ok := inGame(s)
	if !ok {
		return
	}
	if cmd.RequestType == groupSharing {
		w.requestSharing(s, c)
		return
	}

	if cmd.CharacterID == 0 || cmd.CharacterID == c.ID {
		return
	}
	if w.groups.IsFull(cmd.CharacterID) {
		w.reply(s, infoLine(w.text(message.GroupFull)))
		return
	}
	if w.groups.IsGrouped(cmd.CharacterID) && w.groups.IsGrouped(c.ID) {
		w.reply(s, infoLine(w.text(message.AlreadyInGroup)))
		return
	}
	target, ok := w.sessions.ByCharacterID(cmd.CharacterID)
	if !ok {
		return
	}
	tc := target.Character()
	if tc == nil {
		return
	}
	if tc.IsBlocking(c.ID) {
		w.reply(s, infoLine(w.text(message.BlacklistBlocked)))
		return
	}
	if tc.Option(character.OptionGroupRequestBlocked) {
		w.reply(s, msgLine(msgCenter, w.text(message.GroupBlocked)))
		return
	}

	c.GroupRequests.Add(tc.ID)
	w.reply(s, infoLine(w.format(message.GroupRequestSent, tc.Name)))
	w.reply(target, dlgLine(
		dialogAnswer(command.HeaderGroupAnswer, groupAccepted, c.ID),
		dialogAnswer(command.HeaderGroupAnswer, groupDeclined, c.ID),
		w.format(message.GroupInvite, c.Name),
	))
}

func (w *World) requestSharing(s *session.Session, c *character.Character) {
	g, ok := w.groups.Of(c.ID)
	if !ok {
		return
	}
	w.reply(s, infoLine(w.text(message.SharingInfo)))
	for _, id := range g.Members() {
		if id == c.ID {
			continue
		}
		member, ok := w.sessions.ByCharacterID(id)
		if !ok {
			continue
		}
		c.GroupRequests.Add(id)
		w.reply(member, dlgLine(
			dialogAnswer(command.HeaderGroupAnswer, groupSharingAccept, c.ID),
			dialogAnswer(command.HeaderGroupAnswer, groupSharingRefuse, c.ID),
			w.format(message.SharingInvite, c.Name),
		))
	}
}

// handleGroupAnswer processes a dialog answer. The inviter must still hold a
// pending request for the acceptor; it is consumed whatever the answer.
func (w *World) handleGroupAnswer(s *session.Session, cmd groupCmd) {
	c, ok := inGame(s)
	if !ok || cmd.CharacterID == 0 {
		return
	}
	inviter, ok := w.sessions.ByCharacterID(cmd.CharacterID)
	if !ok {
		return
	}
	ic := inviter.Character()
	if ic == nil || !ic.GroupRequests.Take(c.ID) {
		return
	}

	switch cmd.RequestType {
	case groupAccepted:
		w.acceptGroup(s, c, inviter, ic)
	case groupDeclined:
		w.reply(inviter, sayLine(ic.ID, speechSystem, w.format(message.GroupRefused, c.Name)))
	case groupSharingAccept:
		w.reply(s, msgLine(msgCenter, w.text(message.SharingAccepted)))
		if g, ok := w.groups.Of(c.ID); ok && g.Contains(ic.ID) {
			w.reply(inviter, msgLine(msgCenter, w.format(message.SharingChanged, c.Name)))
		}
	case groupSharingRefuse:
		w.reply(s, msgLine(msgCenter, w.text(message.SharingRefused)))
	}
}

func (w *World) acceptGroup(s *session.Session, c *character.Character, inviter *session.Session, ic *character.Character) {
	res, err := w.groups.Pair(ic.ID, c.ID)
	switch {
	case errors.Is(err, group.ErrAlreadyGrouped), errors.Is(err, group.ErrSelfPair):
		return
	case errors.Is(err, group.ErrGroupFull):
		w.reply(s, infoLine(w.text(message.GroupFull)))
		w.reply(inviter, infoLine(w.text(message.GroupFull)))
		return
	case err != nil:
		w.logger.Error("pairing characters", zap.Int64("inviter", ic.ID), zap.Int64("acceptor", c.ID), zap.Error(err))
		return
	}
	// Either side may have disconnected after its group hook already ran.
	if s.IsClosed() || inviter.IsClosed() {
		if s.IsClosed() {
			w.leaveGroup(c)
		}
		if inviter.IsClosed() {
			w.leaveGroup(ic)
		}
		return
	}

	switch {
	case res.Created:
		w.reply(s, msgLine(msgInfoChat, w.format(message.GroupJoin, ic.Name)))
		w.reply(inviter, infoLine(w.text(message.GroupAdmin)))
	case res.Joined == ic.ID:
		w.reply(inviter, msgLine(msgInfoChat, w.text(message.GroupJoined)))
	}
	w.sendPinit(res.Group)
}

func (w *World) handleGroupLeave(s *session.Session) {
	c := s.Character()
	if c == nil {
		return
	}
	if !w.groups.IsGrouped(c.ID) {
		w.reply(s, infoLine(w.text(message.NotInGroup)))
		return
	}
	w.leaveGroup(c)
}

// leaveGroup removes c from its group and tells everyone affected. The
// leaver's own client gets an empty member list.
func (w *World) leaveGroup(c *character.Character) {
	var wasLeader bool
	if g, ok := w.groups.Of(c.ID); ok {
		wasLeader = g.Leader() == c.ID
	}
	res, err := w.groups.Leave(c.ID)
	if err != nil {
		return
	}
	w.broadcast.ToCharacter(c.ID, msgLine(msgInfoChat, w.text(message.GroupLeft)))
	w.broadcast.ToCharacter(c.ID, pinitLine(nil))

	if res.Dissolved {
		for _, id := range res.Released {
			w.broadcast.ToCharacter(id, infoLine(w.text(message.GroupClosed)))
			w.broadcast.ToCharacter(id, pinitLine(nil))
		}
		return
	}
	w.sendPinit(res.Group)
	if wasLeader && len(res.Remaining) > 0 {
		w.broadcast.ToCharacter(res.Remaining[0], infoLine(w.text(message.GroupNewLeader)))
	}
}

// sendPinit refreshes the member list of every online member of g.
func (w *World) sendPinit(g *group.Group) {
	if g == nil {
		return
	}
	leader := g.Leader()
	ids := g.Members()
	members := make([]memberEntry, 0, len(ids))
	for _, id := range ids {
		members = append(members, memberEntry{ID: id, Name: w.characterName(id), Leader: id == leader})
	}
	line := pinitLine(members)
	for _, id := range ids {
		w.broadcast.ToCharacter(id, line)
	}
}

// handleOption toggles a character option. Group sharing is a group-wide
// setting only the leader may change.
func (w *World) handleOption(s *session.Session, cmd optionCmd) {
	c := s.Character()
	if c == nil {
		return
	}
	if cmd.Option == character.OptionGroupSharing {
		mode := group.SharingByOrder
		text := message.SharingByOrder
		if cmd.On {
			mode = group.SharingEveryone
			text = message.Sharing
		}
		_, err := w.groups.SetSharing(c.ID, mode)
		switch {
		case errors.Is(err, group.ErrNotGrouped):
			w.reply(s, infoLine(w.text(message.NotInGroup)))
		case errors.Is(err, group.ErrNotLeader):
			w.reply(s, infoLine(w.text(message.NotMaster)))
		case err == nil:
			w.broadcast.Broadcast(s, msgLine(msgCenter, w.text(text)), broadcast.Group, broadcast.Target{})
		}
		return
	}

	c.SetOption(cmd.Option, cmd.On)
	if texts, ok := optionMessages[cmd.Option]; ok {
		id := texts.unlocked
		if cmd.On {
			id = texts.blocked
		}
		w.reply(s, msgLine(msgCenter, w.text(id)))
	}
}

type optionText struct {
	blocked  string
	unlocked string
}

var optionMessages = map[character.Option]optionText{
	character.OptionBuffBlocked:           {"BUFF_BLOCKED", "BUFF_UNLOCKED"},
	character.OptionEmoticonsBlocked:      {"EMO_BLOCKED", "EMO_UNLOCKED"},
	character.OptionExchangeBlocked:       {"EXCHANGE_BLOCKED", "EXCHANGE_UNLOCKED"},
	character.OptionFriendRequestBlocked:  {"FRIEND_REQ_BLOCKED", "FRIEND_REQ_UNLOCKED"},
	character.OptionGroupRequestBlocked:   {"GROUP_REQ_BLOCKED", "GROUP_REQ_UNLOCKED"},
	character.OptionHeroChatBlocked:       {"HERO_CHAT_BLOCKED", "HERO_CHAT_UNLOCKED"},
	character.OptionHPBlocked:             {"HP_BLOCKED", "HP_UNLOCKED"},
	character.OptionMinilandInviteBlocked: {"MINI_INV_BLOCKED", "MINI_INV_UNLOCKED"},
	character.OptionMouseAimLock:          {"MOUSE_LOCKED", "MOUSE_UNLOCKED"},
	character.OptionQuickGetUp:            {"QUICK_GET_UP_ENABLED", "QUICK_GET_UP_DISABLED"},
	character.OptionWhisperBlocked:        {"WHISPER_BLOCKED", "WHISPER_UNLOCKED"},
	character.OptionFamilyRequestBlocked:  {"FAMILY_REQ_LOCKED", "FAMILY_REQ_UNLOCKED"},
}
