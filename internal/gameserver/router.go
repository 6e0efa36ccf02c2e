package gameserver

import (
	"github.com/cory-johannsen/nosgate/internal/game/character"
	"github.com/cory-johannsen/nosgate/internal/game/command"
)

// Group request types carried by pjoin and #pjoin.
const (
	groupRequested     = 0
	groupInvited       = 1
	groupAccepted      = 3
	groupDeclined      = 4
	groupSharing       = 5
	groupSharingAccept = 6
	groupSharingRefuse = 7
)

// Friend dialog answers carried by #fins.
const (
	friendAccept = -1
	friendReject = -99
)

// guriEmoticon is the guri type for emoticons.
const guriEmoticon = 10

type directionCmd struct {
	CharacterID int64
	Direction   int
}

type textCmd struct {
	Message string
}

type whisperCmd struct {
	Target  string
	Message string
}

type friendTalkCmd struct {
	CharacterID int64
	Message     string
}

type guriCmd struct {
	Type        int64
	Arg         int64
	CharacterID int64
	Value       int64
}

type groupCmd struct {
	RequestType int64
	CharacterID int64
}

type optionCmd struct {
	Option character.Option
	On     bool
}

type characterCmd struct {
	CharacterID int64
}

type friendAnswerCmd struct {
	Answer      int64
	CharacterID int64
}

type pulseCmd struct {
	Tick int64
}

type bazaarListCmd struct {
	Page int
}

type teleportCmd struct {
	MapID string
}

type walkCmd struct {
	X, Y     int
	Checksum int
	Speed    int
}

type restCmd struct{}

func textOf(a command.Args) textCmd { return textCmd{Message: a.Str(0)} }

func characterOf(a command.Args) characterCmd { return characterCmd{CharacterID: a.Int(0)} }

func groupOf(a command.Args) groupCmd {
	return groupCmd{RequestType: a.Int(0), CharacterID: a.Int(1)}
}

// Bindings returns the packet table served by this world.
func (w *World) Bindings() []command.Binding {
	optionValues := make([]int64, 0, int(character.OptionGroupSharing))
	for o := character.OptionBuffBlocked; o <= character.OptionGroupSharing; o++ {
		optionValues = append(optionValues, int64(o))
	}

	return []command.Binding{
		command.Bind(command.HeaderDirection,
			command.Shape{command.Int("character_id"), command.Int("direction")},
			func(a command.Args) directionCmd {
				return directionCmd{CharacterID: a.Int(0), Direction: int(a.Int(1))}
			},
			w.handleDirection),
		command.Bind(command.HeaderSay, command.Shape{command.Text("message")}, textOf, w.handleSay),
		command.Bind(command.HeaderWhisper,
			command.Shape{command.String("target"), command.Text("message")},
			func(a command.Args) whisperCmd { return whisperCmd{Target: a.Str(0), Message: a.Str(1)} },
			w.handleWhisper),
		command.Bind(command.HeaderGroupTalk, command.Shape{command.Text("message")}, textOf, w.handleGroupTalk),
		command.Bind(command.HeaderFriendTalk,
			command.Shape{command.Int("character_id"), command.Text("message")},
			func(a command.Args) friendTalkCmd {
				return friendTalkCmd{CharacterID: a.Int(0), Message: a.Str(1)}
			},
			w.handleFriendTalk),
		command.Bind(command.HeaderHeroChat, command.Shape{command.Text("message")}, textOf, w.handleHeroChat),
		command.Bind(command.HeaderEmoticon,
			command.Shape{command.Int("type"), command.Int("arg"), command.Int("character_id"), command.Int("value")},
			func(a command.Args) guriCmd {
				return guriCmd{Type: a.Int(0), Arg: a.Int(1), CharacterID: a.Int(2), Value: a.Int(3)}
			},
			w.handleGuri),
		command.Bind(command.HeaderGroupRequest,
			command.Shape{command.Enum("request_type", groupRequested, groupInvited, groupSharing), command.Int("character_id")},
			groupOf, w.handleGroupRequest),
		command.Bind(command.HeaderGroupAnswer,
			command.Shape{
				command.Enum("request_type", groupAccepted, groupDeclined, groupSharingAccept, groupSharingRefuse),
				command.Int("character_id"),
			},
			groupOf, w.handleGroupAnswer),
		command.Bare(command.HeaderGroupLeave, w.handleGroupLeave),
		command.Bind(command.HeaderOption,
			command.Shape{command.Enum("option", optionValues...), command.Enum("value", 0, 1)},
			func(a command.Args) optionCmd {
				return optionCmd{Option: character.Option(a.Int(0)), On: a.Int(1) == 1}
			},
			w.handleOption),
		command.Bind(command.HeaderFriendRequest,
			command.Shape{command.Int("type"), command.Int("character_id")},
			func(a command.Args) characterCmd { return characterCmd{CharacterID: a.Int(1)} },
			w.handleFriendRequest),
		command.Bind(command.HeaderFriendAnswer,
			command.Shape{command.Enum("answer", friendAccept, friendReject), command.Int("character_id")},
			func(a command.Args) friendAnswerCmd {
				return friendAnswerCmd{Answer: a.Int(0), CharacterID: a.Int(1)}
			},
			w.handleFriendAnswer),
		command.Bind(command.HeaderFriendDelete, command.Shape{command.Int("character_id")}, characterOf, w.handleFriendDelete),
		command.Bind(command.HeaderBlockAdd, command.Shape{command.Int("character_id")}, characterOf, w.handleBlockAdd),
		command.Bind(command.HeaderBlockDelete, command.Shape{command.Int("character_id")}, characterOf, w.handleBlockDelete),
		command.Bind(command.HeaderPulse,
			command.Shape{command.Int("tick"), command.Text("rest").Opt()},
			func(a command.Args) pulseCmd { return pulseCmd{Tick: a.Int(0)} },
			w.handlePulse),
		command.Bind(command.HeaderBazaarList,
			command.Shape{command.Int("page"), command.Text("filters").Opt()},
			func(a command.Args) bazaarListCmd { return bazaarListCmd{Page: int(a.Int(0))} },
			w.handleBazaarList),
		command.Bare(command.HeaderGameStart, w.handleGameStart),
		command.Bind(command.HeaderTeleport,
			command.Shape{command.String("map_id")},
			func(a command.Args) teleportCmd { return teleportCmd{MapID: a.Str(0)} },
			w.handleTeleport),
		command.Bind(command.HeaderWalk,
			command.Shape{command.Int("x"), command.Int("y"), command.Int("checksum"), command.Int("speed")},
			func(a command.Args) walkCmd {
				return walkCmd{X: int(a.Int(0)), Y: int(a.Int(1)), Checksum: int(a.Int(2)), Speed: int(a.Int(3))}
			},
			w.handleWalk),
		command.Bind(command.HeaderRest,
			command.Shape{command.Text("targets").Opt()},
			func(command.Args) restCmd { return restCmd{} },
			w.handleRest),
	}
}

// Router builds the packet router for this world.
//
// Postcondition: Returns a Router holding every binding from Bindings.
func (w *World) Router() *command.Router {
	return command.MustRouter(w.logger, w.Bindings()...)
}
