package group

import "sync"

// PairResult describes the outcome of a successful Pair.
type PairResult struct {
	Group *Group
	// Created is true when a new group was formed by the pairing.
	Created bool
	// Joined is the character that was added to the group.
	Joined int64
}

// LeaveResult describes the outcome of a successful Leave.
type LeaveResult struct {
	Group *Group
	// Remaining are the members still in the group, leader first.
	Remaining []int64
	// Dissolved is true when the group no longer exists.
	Dissolved bool
	// Released are the members removed because the group dissolved,
	// excluding the character that left.
	Released []int64
}

// Registry owns every active group and the character → group index.
// Membership changes are serialized by the registry lock, which covers
// group state only.
type Registry struct {
	capacity int

	mu     sync.Mutex
	nextID int64
	groups map[int64]*Group
	byChar map[int64]*Group
}

// NewRegistry creates an empty Registry whose groups hold at most capacity members.
//
// Precondition: capacity >= 2.
func NewRegistry(capacity int) *Registry {
	if capacity < 2 {
		capacity = 2
	}
	return &Registry{
		capacity: capacity,
		groups:   make(map[int64]*Group),
		byChar:   make(map[int64]*Group),
	}
}

// Capacity returns the configured maximum group size.
func (r *Registry) Capacity() int { return r.capacity }

// Of returns the group charID belongs to.
func (r *Registry) Of(charID int64) (*Group, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.byChar[charID]
	return g, ok
}

// IsGrouped reports whether charID belongs to any group.
func (r *Registry) IsGrouped(charID int64) bool {
	_, ok := r.Of(charID)
	return ok
}

// IsFull reports whether charID belongs to a group that is at capacity.
func (r *Registry) IsFull(charID int64) bool {
	g, ok := r.Of(charID)
	return ok && g.IsFull()
}

// Pair joins acceptor and inviter into one group after an accepted request.
// If exactly one side is grouped the other joins that group; if neither is,
// a new group is formed with the inviter as leader.
//
// Postcondition: On error nothing changed. ErrAlreadyGrouped when both are
// grouped, ErrGroupFull when the group to join is at capacity.
func (r *Registry) Pair(inviter, acceptor int64) (PairResult, error) {
	if inviter == acceptor {
		return PairResult{}, ErrSelfPair
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	gi, inviterGrouped := r.byChar[inviter]
	ga, acceptorGrouped := r.byChar[acceptor]

	switch {
	case inviterGrouped && acceptorGrouped:
		return PairResult{}, ErrAlreadyGrouped
	case inviterGrouped && gi.IsFull(), acceptorGrouped && ga.IsFull():
		return PairResult{}, ErrGroupFull
	case inviterGrouped:
		gi.add(acceptor)
		r.byChar[acceptor] = gi
		return PairResult{Group: gi, Joined: acceptor}, nil
	case acceptorGrouped:
		ga.add(inviter)
		r.byChar[inviter] = ga
		return PairResult{Group: ga, Joined: inviter}, nil
	}

	r.nextID++
	g := &Group{
		id:       r.nextID,
		capacity: r.capacity,
		members:  []int64{inviter, acceptor},
	}
	r.groups[g.id] = g
	r.byChar[inviter] = g
	r.byChar[acceptor] = g
	return PairResult{Group: g, Created: true, Joined: acceptor}, nil
}

// Leave removes charID from its group. A group left with a single member
// releases that member too and is dissolved.
//
// Postcondition: Returns ErrNotGrouped if charID was in no group.
func (r *Registry) Leave(charID int64) (LeaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.byChar[charID]
	if !ok {
		return LeaveResult{}, ErrNotGrouped
	}
	delete(r.byChar, charID)
	remaining := g.remove(charID)

	if len(remaining) >= 2 {
		return LeaveResult{Group: g, Remaining: remaining}, nil
	}

	for _, id := range remaining {
		delete(r.byChar, id)
	}
	g.clear()
	delete(r.groups, g.id)
	return LeaveResult{Group: g, Dissolved: true, Released: remaining}, nil
}

// SetSharing changes the sharing mode of charID's group.
//
// Postcondition: Returns ErrNotGrouped or ErrNotLeader without changes when
// charID may not toggle the mode.
func (r *Registry) SetSharing(charID int64, mode SharingMode) (*Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.byChar[charID]
	if !ok {
		return nil, ErrNotGrouped
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.members) == 0 || g.members[0] != charID {
		return nil, ErrNotLeader
	}
	g.sharing = mode
	return g, nil
}

// Count returns the number of active groups.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}
