package world

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validMapsYAML = `
maps:
  - id: "1"
    name: NosVille
  - id: "145"
    name: Port Alveus
    shout_allowed: false
  - id: "130"
    name: Act4 Citadel
    faction_map: true
`

func TestLoadMapsFromBytes_Valid(t *testing.T) {
	maps, err := LoadMapsFromBytes([]byte(validMapsYAML))
	require.NoError(t, err)
	require.Len(t, maps, 3)

	assert.Equal(t, "NosVille", maps[0].Name)
	assert.True(t, maps[0].ShoutAllowed, "shout defaults to allowed")
	assert.False(t, maps[1].ShoutAllowed)
	assert.True(t, maps[2].FactionMap)
}

func TestLoadMapsFromBytes_BoundsAndSpawn(t *testing.T) {
	maps, err := LoadMapsFromBytes([]byte(`
maps:
  - id: "1"
    name: NosVille
    width: 160
    height: 120
    spawn: [79, 116]
`))
	require.NoError(t, err)
	m := maps[0]
	assert.Equal(t, 79, m.SpawnX)
	assert.Equal(t, 116, m.SpawnY)
	assert.True(t, m.Contains(159, 119))
	assert.False(t, m.Contains(160, 0))
	assert.False(t, m.Contains(0, 120))
	assert.False(t, m.Contains(-1, 3))

	_, err = LoadMapsFromBytes([]byte("maps:\n  - id: \"1\"\n    name: X\n    width: 10\n    spawn: [10, 0]\n"))
	assert.ErrorContains(t, err, "outside the map")
}

func TestMap_ContainsUnbounded(t *testing.T) {
	m := &Map{ID: "1", Name: "NosVille"}
	assert.True(t, m.Contains(5000, 5000))
	assert.False(t, m.Contains(0, -1))
}

func TestLoadMapsFromBytes_Invalid(t *testing.T) {
	_, err := LoadMapsFromBytes([]byte("maps: []"))
	assert.Error(t, err)

	_, err = LoadMapsFromBytes([]byte("maps:\n  - id: \"1\"\n"))
	assert.Error(t, err, "name is required")

	_, err = LoadMapsFromBytes([]byte(":::"))
	assert.Error(t, err)
}

func TestLoadMapsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maps.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validMapsYAML), 0644))

	maps, err := LoadMapsFromFile(path)
	require.NoError(t, err)
	assert.Len(t, maps, 3)

	_, err = LoadMapsFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestManager_Lookup(t *testing.T) {
	maps, err := LoadMapsFromBytes([]byte(validMapsYAML))
	require.NoError(t, err)
	mgr, err := NewManager(maps)
	require.NoError(t, err)

	assert.Equal(t, 3, mgr.Count())
	assert.Equal(t, []string{"1", "130", "145"}, mgr.IDs())
	assert.True(t, mgr.IsFactionMap("130"))
	assert.False(t, mgr.IsFactionMap("1"))
	assert.False(t, mgr.IsFactionMap("unknown"))

	mp, ok := mgr.Map("145")
	require.True(t, ok)
	assert.Equal(t, "Port Alveus", mp.Name)
}

func TestManager_DuplicateID(t *testing.T) {
	_, err := NewManager([]*Map{{ID: "1", Name: "a"}, {ID: "1", Name: "b"}})
	assert.Error(t, err)
}
