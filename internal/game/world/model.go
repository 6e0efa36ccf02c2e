// Package world provides the static map catalog the session registry indexes
// players against.
package world

import "fmt"

// Map is a static map definition. Players currently on a map are tracked by
// the session manager, not here.
type Map struct {
	// ID uniquely identifies the map.
	ID string
	// Name is the display name of the map.
	Name string
	// FactionMap marks maps where speech is garbled for the opposing faction.
	FactionMap bool
	// ShoutAllowed permits server-wide hero chat to be sent from this map.
	ShoutAllowed bool
	// Width and Height bound walkable cells; zero leaves that axis unbounded.
	Width, Height int
	// SpawnX and SpawnY are where arriving characters are placed.
	SpawnX, SpawnY int
}

// Contains reports whether (x, y) is a cell of the map.
func (m *Map) Contains(x, y int) bool {
	if x < 0 || y < 0 {
		return false
	}
	return (m.Width == 0 || x < m.Width) && (m.Height == 0 || y < m.Height)
}

// Validate checks map invariants.
//
// Postcondition: Returns nil if valid, or an error describing the first violation.
func (m *Map) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("map ID must not be empty")
	}
	if m.Name == "" {
		return fmt.Errorf("map %q: name must not be empty", m.ID)
	}
	if m.Width < 0 || m.Height < 0 {
		return fmt.Errorf("map %q: size must not be negative", m.ID)
	}
	if !m.Contains(m.SpawnX, m.SpawnY) {
		return fmt.Errorf("map %q: spawn (%d,%d) is outside the map", m.ID, m.SpawnX, m.SpawnY)
	}
	return nil
}
