package world

import (
	"fmt"
	"sort"
)

// Manager is the read-only map catalog. It is immutable after construction
// and therefore safe for concurrent use without locking.
type Manager struct {
	maps map[string]*Map
}

// NewManager indexes maps by ID.
//
// Postcondition: Returns a Manager or an error on duplicate map IDs.
func NewManager(maps []*Map) (*Manager, error) {
	m := &Manager{maps: make(map[string]*Map, len(maps))}
	for _, mp := range maps {
		if _, exists := m.maps[mp.ID]; exists {
			return nil, fmt.Errorf("duplicate map ID: %q", mp.ID)
		}
		m.maps[mp.ID] = mp
	}
	return m, nil
}

// Map returns the map with the given ID.
func (m *Manager) Map(id string) (*Map, bool) {
	mp, ok := m.maps[id]
	return mp, ok
}

// IsFactionMap reports whether id names a faction map. Unknown maps are not.
func (m *Manager) IsFactionMap(id string) bool {
	mp, ok := m.maps[id]
	return ok && mp.FactionMap
}

// Count returns the number of known maps.
func (m *Manager) Count() int { return len(m.maps) }

// IDs returns every map ID in sorted order.
func (m *Manager) IDs() []string {
	ids := make([]string, 0, len(m.maps))
	for id := range m.maps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
