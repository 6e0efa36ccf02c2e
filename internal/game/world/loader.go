package world

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type yamlMapFile struct {
	Maps []yamlMap `yaml:"maps"`
}

type yamlMap struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	FactionMap   bool   `yaml:"faction_map"`
	ShoutAllowed *bool  `yaml:"shout_allowed"`
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	Spawn        [2]int `yaml:"spawn"`
}

// LoadMapsFromFile reads and validates a map catalog YAML file.
//
// Precondition: path must point to a readable YAML file.
// Postcondition: Returns the validated maps or a non-nil error.
func LoadMapsFromFile(path string) ([]*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading map file %s: %w", path, err)
	}
	return LoadMapsFromBytes(data)
}

// LoadMapsFromBytes parses and validates a map catalog from YAML bytes.
//
// Postcondition: Returns at least one validated map or a non-nil error.
func LoadMapsFromBytes(data []byte) ([]*Map, error) {
	var file yamlMapFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing map YAML: %w", err)
	}
	if len(file.Maps) == 0 {
		return nil, fmt.Errorf("map catalog defines no maps")
	}

	maps := make([]*Map, 0, len(file.Maps))
	for _, ym := range file.Maps {
		m := &Map{
			ID:           ym.ID,
			Name:         ym.Name,
			FactionMap:   ym.FactionMap,
			ShoutAllowed: ym.ShoutAllowed == nil || *ym.ShoutAllowed,
			Width:        ym.Width,
			Height:       ym.Height,
			SpawnX:       ym.Spawn[0],
			SpawnY:       ym.Spawn[1],
		}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("validating map: %w", err)
		}
		maps = append(maps, m)
	}
	return maps, nil
}
