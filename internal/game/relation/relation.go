// Package relation tracks per-character friend and block lists and the
// pending friend and group requests between characters.
//
// Each character owns its own Set. Mutating one side never locks the other
// side; handlers that relate two characters mutate each Set independently.
package relation

import (
	"sort"
	"sync"
)

// Type is the kind of relationship one character holds toward another.
type Type int

const (
	// Friend marks a mutual friendship entry.
	Friend Type = 1
	// Blocked marks a character the owner has blacklisted.
	Blocked Type = 2
)

// String returns the persisted name of the relation type.
func (t Type) String() string {
	switch t {
	case Friend:
		return "friend"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// ParseType converts a persisted name back into a Type.
//
// Postcondition: Returns (type, true) for a known name, or (0, false).
func ParseType(s string) (Type, bool) {
	switch s {
	case "friend":
		return Friend, true
	case "blocked":
		return Blocked, true
	}
	return 0, false
}

// Entry is one (target, type) pair.
type Entry struct {
	TargetID int64
	Type     Type
}

// Set is the relationship list of one character. It is safe for concurrent
// use: the owner mutates it while other sessions read it.
type Set struct {
	mu      sync.RWMutex
	entries map[int64]Type
}

// NewSet creates a Set seeded with entries. Later duplicates overwrite earlier ones.
func NewSet(entries ...Entry) *Set {
	s := &Set{entries: make(map[int64]Type, len(entries))}
	for _, e := range entries {
		s.entries[e.TargetID] = e.Type
	}
	return s
}

// Add records target with the given type, replacing any previous relation to target.
//
// Postcondition: Returns false when target already held exactly this type.
func (s *Set) Add(target int64, t Type) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[target]; ok && cur == t {
		return false
	}
	s.entries[target] = t
	return true
}

// Delete removes any relation to target.
//
// Postcondition: Returns the removed type, or (0, false) if none existed.
func (s *Set) Delete(target int64) (Type, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.entries[target]
	if ok {
		delete(s.entries, target)
	}
	return t, ok
}

// DeleteIf removes the relation to target only if it has type t.
func (s *Set) DeleteIf(target int64, t Type) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[target]; ok && cur == t {
		delete(s.entries, target)
		return true
	}
	return false
}

// Has reports whether target is held with type t.
func (s *Set) Has(target int64, t Type) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur, ok := s.entries[target]
	return ok && cur == t
}

// Count returns how many targets are held with type t.
func (s *Set) Count(t Type) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, cur := range s.entries {
		if cur == t {
			n++
		}
	}
	return n
}

// List returns the targets held with type t in ascending id order.
func (s *Set) List(t Type) []int64 {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.entries))
	for id, cur := range s.entries {
		if cur == t {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot returns every entry in ascending target order.
func (s *Set) Snapshot() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for id, t := range s.entries {
		out = append(out, Entry{TargetID: id, Type: t})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out
}

// Pending is a concurrency-safe set of character ids with an outstanding
// request from the owner (friend requests sent, group invitations sent).
type Pending struct {
	mu  sync.Mutex
	ids map[int64]struct{}
}

// NewPending creates an empty Pending set.
func NewPending() *Pending {
	return &Pending{ids: make(map[int64]struct{})}
}

// Add records id. Returns false if it was already pending.
func (p *Pending) Add(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.ids[id]; ok {
		return false
	}
	p.ids[id] = struct{}{}
	return true
}

// Contains reports whether id is pending.
func (p *Pending) Contains(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.ids[id]
	return ok
}

// Take removes id and reports whether it was pending. Exactly one of several
// concurrent Take calls for the same id returns true.
func (p *Pending) Take(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.ids[id]; !ok {
		return false
	}
	delete(p.ids, id)
	return true
}

// Clear drops every pending id.
func (p *Pending) Clear() {
	p.mu.Lock()
	p.ids = make(map[int64]struct{})
	p.mu.Unlock()
}

// Len returns the number of pending ids.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}
