package scripting_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/nosgate/internal/scripting"
)

func TestNewSandboxedState_UnsafeLibsNil(t *testing.T) {
	L := scripting.NewSandboxedState()
	require.NotNil(t, L)
	defer L.Close()
	for _, name := range []string{"os", "io", "debug"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandboxedState_DangerousGlobalsNil(t *testing.T) {
	L := scripting.NewSandboxedState()
	defer L.Close()
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "collectgarbage", "require"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestRunSandboxed_SafeLibsAvailable(t *testing.T) {
	assert.NoError(t, scripting.RunSandboxed(`
		local x = math.sqrt(4)
		assert(x == 2.0, "math.sqrt failed")
		local s = string.upper("hello")
		assert(s == "HELLO", "string.upper failed")
	`, 0))
}

func TestRunSandboxed_InstructionLimitExceeded(t *testing.T) {
	assert.ErrorIs(t, scripting.RunSandboxed(`while true do end`, 10), scripting.ErrInstructionLimit)
}

func TestRunSandboxed_ScriptErrorIsNotALimit(t *testing.T) {
	err := scripting.RunSandboxed(`error("bad hook")`, 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, scripting.ErrInstructionLimit)
}

func TestRunSandboxed_PropertyInfiniteLoopHitsLimit(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		limit := rapid.IntRange(1, 500).Draw(rt, "limit")
		if err := scripting.RunSandboxed(`while true do end`, limit); !errors.Is(err, scripting.ErrInstructionLimit) {
			rt.Fatalf("limit=%d: got %v", limit, err)
		}
	})
}
