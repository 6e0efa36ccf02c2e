// Package character defines the live character model shared between a
// session and the rest of the world.
package character

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cory-johannsen/nosgate/internal/game/relation"
)

// Faction is the side a character fights for on faction maps.
type Faction int

const (
	FactionNone  Faction = 0
	FactionAngel Faction = 1
	FactionDemon Faction = 2
)

// Option is a client-toggleable character preference.
type Option int

const (
	OptionBuffBlocked           Option = 1
	OptionEmoticonsBlocked      Option = 2
	OptionExchangeBlocked       Option = 3
	OptionFriendRequestBlocked  Option = 4
	OptionGroupRequestBlocked   Option = 5
	OptionHeroChatBlocked       Option = 6
	OptionHPBlocked             Option = 7
	OptionMinilandInviteBlocked Option = 8
	OptionMouseAimLock          Option = 9
	OptionQuickGetUp            Option = 10
	OptionWhisperBlocked        Option = 11
	OptionFamilyRequestBlocked  Option = 12
	// OptionGroupSharing is not a stored flag; it toggles the group's sharing mode.
	OptionGroupSharing Option = 13
)

// PulseInterval is the tick increment the client reports on every heartbeat.
const PulseInterval int64 = 60

// Movement limits. A walk longer than MaxStep cells is only accepted within
// ArrivalGrace of being placed on a map.
const (
	DefaultSpeed = 11
	MaxStep      = 60
	ArrivalGrace = 10 * time.Second
)

// Record is the persisted state of a character.
type Record struct {
	ID         int64
	AccountID  int64
	Name       string
	Level      int
	Faction    Faction
	Reputation int64
	// Authority is the account privilege level copied at load time.
	Authority int
	MapID     string
	Direction int
	// Speed is the walk speed; zero means DefaultSpeed.
	Speed   int
	Options []Option
}

// Character is a character in play. Identity fields are immutable; mutable
// state is either atomic or guarded, because other sessions read it while
// the owning session mutates it.
type Character struct {
	ID         int64
	AccountID  int64
	Name       string
	Level      int
	Faction    Faction
	Reputation int64
	Authority  int

	// Relations holds this character's friends and blocked characters.
	Relations *relation.Set
	// FriendRequests are characters this one has sent a friend request to.
	FriendRequests *relation.Pending
	// GroupRequests are characters this one has invited to a group.
	GroupRequests *relation.Pending

	// Speed is the highest walk speed the client may report.
	Speed int

	direction atomic.Int32
	lastPulse atomic.Int64
	mapID     atomic.Value

	posMu    sync.Mutex
	x, y     int
	sitting  bool
	placedAt time.Time

	mu      sync.RWMutex
	options map[Option]bool
}

// New builds a live Character from its record and persisted relations.
//
// Postcondition: Returns a Character with empty pending-request sets.
func New(rec Record, relations ...relation.Entry) *Character {
	c := &Character{
		ID:             rec.ID,
		AccountID:      rec.AccountID,
		Name:           rec.Name,
		Level:          rec.Level,
		Faction:        rec.Faction,
		Reputation:     rec.Reputation,
		Authority:      rec.Authority,
		Speed:          rec.Speed,
		Relations:      relation.NewSet(relations...),
		FriendRequests: relation.NewPending(),
		GroupRequests:  relation.NewPending(),
		options:        make(map[Option]bool, len(rec.Options)),
	}
	if c.Speed <= 0 {
		c.Speed = DefaultSpeed
	}
	c.direction.Store(int32(rec.Direction))
	c.mapID.Store(rec.MapID)
	for _, o := range rec.Options {
		c.options[o] = true
	}
	return c
}

// Direction returns the facing direction.
func (c *Character) Direction() int { return int(c.direction.Load()) }

// SetDirection sets the facing direction.
func (c *Character) SetDirection(d int) { c.direction.Store(int32(d)) }

// MapID returns the last map the character was placed on.
func (c *Character) MapID() string {
	s, _ := c.mapID.Load().(string)
	return s
}

// SetMapID records the map the character is on.
func (c *Character) SetMapID(id string) { c.mapID.Store(id) }

// Position returns the current cell.
func (c *Character) Position() (x, y int) {
	c.posMu.Lock()
	defer c.posMu.Unlock()
	return c.x, c.y
}

// Place puts the character at (x, y) on arrival at a map. It stands the
// character up and restarts the arrival grace period.
func (c *Character) Place(x, y int, now time.Time) {
	c.posMu.Lock()
	defer c.posMu.Unlock()
	c.x, c.y = x, y
	c.sitting = false
	c.placedAt = now
}

// Walk moves the character to (x, y) at the reported speed.
//
// Postcondition: Returns false and leaves the position unchanged when speed
// exceeds Speed, or when the step is longer than MaxStep after ArrivalGrace.
func (c *Character) Walk(x, y, speed int, now time.Time) bool {
	c.posMu.Lock()
	defer c.posMu.Unlock()
	if speed > c.Speed {
		return false
	}
	if max(abs(x-c.x), abs(y-c.y)) > MaxStep && now.Sub(c.placedAt) > ArrivalGrace {
		return false
	}
	c.x, c.y = x, y
	return true
}

// ToggleRest flips between sitting and standing and returns the new state.
func (c *Character) ToggleRest() bool {
	c.posMu.Lock()
	defer c.posMu.Unlock()
	c.sitting = !c.sitting
	return c.sitting
}

// Sitting reports whether the character is resting.
func (c *Character) Sitting() bool {
	c.posMu.Lock()
	defer c.posMu.Unlock()
	return c.sitting
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// AdvancePulse checks a heartbeat tick against the expected sequence.
//
// Postcondition: Returns true and records tick when it equals the previous
// tick plus PulseInterval; returns false and leaves state untouched otherwise.
func (c *Character) AdvancePulse(tick int64) bool {
	expected := c.lastPulse.Load() + PulseInterval
	if tick != expected {
		return false
	}
	return c.lastPulse.CompareAndSwap(expected-PulseInterval, tick)
}

// LastPulse returns the last accepted heartbeat tick.
func (c *Character) LastPulse() int64 { return c.lastPulse.Load() }

// Option reports whether option o is enabled.
func (c *Character) Option(o Option) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.options[o]
}

// SetOption enables or disables option o.
func (c *Character) SetOption(o Option, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.options[o] = true
		return
	}
	delete(c.options, o)
}

// IsFriend reports whether other is on this character's friend list.
func (c *Character) IsFriend(other int64) bool {
	return c.Relations.Has(other, relation.Friend)
}

// IsBlocking reports whether this character has blacklisted other.
func (c *Character) IsBlocking(other int64) bool {
	return c.Relations.Has(other, relation.Blocked)
}

// IsGameMaster reports whether the character carries game master authority.
func (c *Character) IsGameMaster() bool { return c.Authority >= AuthorityGameMaster }

// Authority levels.
const (
	AuthorityUser       = 0
	AuthorityModerator  = 1
	AuthorityGameMaster = 2
	AuthorityAdmin      = 3
)

// ValidAuthority reports whether a is a known authority level.
func ValidAuthority(a int) bool { return a >= AuthorityUser && a <= AuthorityAdmin }

// Snapshot returns the persistable state of the character.
func (c *Character) Snapshot() Record {
	c.mu.RLock()
	opts := make([]Option, 0, len(c.options))
	for o := OptionBuffBlocked; o < OptionGroupSharing; o++ {
		if c.options[o] {
			opts = append(opts, o)
		}
	}
	c.mu.RUnlock()

	return Record{
		ID:         c.ID,
		AccountID:  c.AccountID,
		Name:       c.Name,
		Level:      c.Level,
		Faction:    c.Faction,
		Reputation: c.Reputation,
		Authority:  c.Authority,
		MapID:      c.MapID(),
		Direction:  c.Direction(),
		Speed:      c.Speed,
		Options:    opts,
	}
}

// Valid reports whether o is a known option.
func (o Option) Valid() bool {
	return o >= OptionBuffBlocked && o <= OptionGroupSharing
}
