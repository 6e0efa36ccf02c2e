// Package group implements player parties: bounded, ordered member lists
// whose first member is the leader.
package group

import (
	"errors"
	"sync"
)

var (
	// ErrAlreadyGrouped is returned when both characters already belong to a group.
	ErrAlreadyGrouped = errors.New("both characters are already grouped")
	// ErrGroupFull is returned when the group that would be joined is at capacity.
	ErrGroupFull = errors.New("group is full")
	// ErrNotGrouped is returned when the character belongs to no group.
	ErrNotGrouped = errors.New("character is not in a group")
	// ErrNotLeader is returned when a non-leader attempts a leader-only action.
	ErrNotLeader = errors.New("character is not the group leader")
	// ErrSelfPair is returned when a character is paired with itself.
	ErrSelfPair = errors.New("cannot group a character with itself")
)

// SharingMode controls how drops are distributed within a group.
type SharingMode int

const (
	// SharingByOrder hands drops to members in turn.
	SharingByOrder SharingMode = 0
	// SharingEveryone lets every member pick up every drop.
	SharingEveryone SharingMode = 1
)

// Group is an active party. Membership is only changed by the Registry; all
// exported methods are read-only snapshots safe for concurrent use.
type Group struct {
	id       int64
	capacity int

	mu      sync.RWMutex
	members []int64
	sharing SharingMode
}

// ID returns the registry-assigned group id.
func (g *Group) ID() int64 { return g.id }

// Capacity returns the maximum member count.
func (g *Group) Capacity() int { return g.capacity }

// Members returns the member ids in join order.
func (g *Group) Members() []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]int64, len(g.members))
	copy(out, g.members)
	return out
}

// Leader returns the earliest-joined remaining member, or 0 for an empty group.
func (g *Group) Leader() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.members) == 0 {
		return 0
	}
	return g.members[0]
}

// Size returns the current member count.
func (g *Group) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

// IsFull reports whether the group is at capacity.
func (g *Group) IsFull() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members) >= g.capacity
}

// Contains reports whether charID is a member.
func (g *Group) Contains(charID int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return indexOf(g.members, charID) >= 0
}

// Sharing returns the current sharing mode.
func (g *Group) Sharing() SharingMode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sharing
}

func (g *Group) add(charID int64) {
	g.mu.Lock()
	g.members = append(g.members, charID)
	g.mu.Unlock()
}

func (g *Group) remove(charID int64) []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i := indexOf(g.members, charID); i >= 0 {
		g.members = append(g.members[:i:i], g.members[i+1:]...)
	}
	out := make([]int64, len(g.members))
	copy(out, g.members)
	return out
}

func (g *Group) clear() {
	g.mu.Lock()
	g.members = nil
	g.mu.Unlock()
}

func indexOf(ids []int64, id int64) int {
	for i, m := range ids {
		if m == id {
			return i
		}
	}
	return -1
}
