package command

// Inbound packet headers.
const (
	HeaderDirection     = "dir"
	HeaderSay           = "say"
	HeaderWhisper       = "/"
	HeaderGroupTalk     = ";"
	HeaderFriendTalk    = "btk"
	HeaderHeroChat      = "hero"
	HeaderEmoticon      = "guri"
	HeaderGroupRequest  = "pjoin"
	HeaderGroupAnswer   = "#pjoin"
	HeaderGroupLeave    = "pleave"
	HeaderOption        = "gop"
	HeaderFriendRequest = "fins"
	HeaderFriendAnswer  = "#fins"
	HeaderFriendDelete  = "fdel"
	HeaderBlockAdd      = "blins"
	HeaderBlockDelete   = "bldel"
	HeaderPulse         = "pulse"
	HeaderBazaarList    = "c_blist"
	HeaderGameStart     = "game_start"
	HeaderTeleport      = "$teleport"
	HeaderWalk          = "walk"
	HeaderRest          = "rest"
)
