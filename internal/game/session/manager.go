package session

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrSessionNotFound is returned when a session id is not registered.
	ErrSessionNotFound = errors.New("session not found")
	// ErrCharacterOnline is returned when a character is already bound to another session.
	ErrCharacterOnline = errors.New("character already online")
	// ErrNoCharacter is returned when binding a session that has no selected character.
	ErrNoCharacter = errors.New("session has no character")
)

// Manager tracks all live sessions and indexes them by character and map.
// All methods are safe for concurrent use. Query methods return snapshots.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session            // session id → session
	byChar   map[int64]*Session             // character id → session
	byName   map[string]*Session            // character name → session
	maps     map[string]map[string]*Session // map id → session id → session
}

// NewManager creates an empty session Manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		byChar:   make(map[int64]*Session),
		byName:   make(map[string]*Session),
		maps:     make(map[string]map[string]*Session),
	}
}

// Add registers a session.
//
// Postcondition: Returns an error if the session id is already registered.
func (m *Manager) Add(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID()]; exists {
		return fmt.Errorf("session %q already registered", s.ID())
	}
	m.sessions[s.ID()] = s
	return nil
}

// BindCharacter indexes a registered session under its selected character.
//
// Precondition: s must have a selected character.
// Postcondition: Returns ErrSessionNotFound, ErrNoCharacter, or ErrCharacterOnline on failure.
func (m *Manager) BindCharacter(s *Session) error {
	c := s.Character()
	if c == nil {
		return ErrNoCharacter
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID()]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, s.ID())
	}
	if other, ok := m.byChar[c.ID]; ok && other != s {
		return fmt.Errorf("%w: %s", ErrCharacterOnline, c.Name)
	}
	m.byChar[c.ID] = s
	m.byName[c.Name] = s
	return nil
}

// Remove unregisters a session from every index.
//
// Postcondition: Returns the removed session, or (nil, false) if it was not registered.
func (m *Manager) Remove(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	delete(m.sessions, id)
	if c := s.Character(); c != nil {
		if m.byChar[c.ID] == s {
			delete(m.byChar, c.ID)
		}
		if m.byName[c.Name] == s {
			delete(m.byName, c.Name)
		}
	}
	m.leaveMapLocked(s)
	return s, true
}

// MoveToMap places a session on mapID, leaving its previous map.
//
// Postcondition: Returns the previous map id (possibly ""), or ErrSessionNotFound.
func (m *Manager) MoveToMap(id, mapID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	old := m.leaveMapLocked(s)

	if m.maps[mapID] == nil {
		m.maps[mapID] = make(map[string]*Session)
	}
	m.maps[mapID][id] = s
	s.setMap(mapID)
	return old, nil
}

func (m *Manager) leaveMapLocked(s *Session) string {
	old := s.CurrentMap()
	if old == "" {
		return ""
	}
	if set, ok := m.maps[old]; ok {
		delete(set, s.ID())
		if len(set) == 0 {
			delete(m.maps, old)
		}
	}
	s.setMap("")
	return old
}

// OnMap returns the sessions currently placed on mapID.
func (m *Manager) OnMap(mapID string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := m.maps[mapID]
	out := make([]*Session, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	return out
}

// ByID returns the session with the given id.
func (m *Manager) ByID(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// ByCharacterID returns the session playing the given character.
func (m *Manager) ByCharacterID(charID int64) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byChar[charID]
	return s, ok
}

// ByCharacterName returns the session playing the character with this exact name.
func (m *Manager) ByCharacterName(name string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byName[name]
	return s, ok
}

// All returns every registered session.
func (m *Manager) All() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// InGame returns every session that has a bound character.
func (m *Manager) InGame() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.byChar))
	for _, s := range m.byChar {
		out = append(out, s)
	}
	return out
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
