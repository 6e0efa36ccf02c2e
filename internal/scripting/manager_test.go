package scripting_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/nosgate/internal/scripting"
)

func newTestManager(t testing.TB) (*scripting.Manager, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return scripting.NewManager(zap.New(core)), logs
}

func writeTempLua(t testing.TB, filename, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(src), 0644))
	return dir
}

func hasLevel(logs *observer.ObservedLogs, level zapcore.Level) bool {
	for _, e := range logs.All() {
		if e.Level == level {
			return true
		}
	}
	return false
}

func TestManager_LoadMap_CallsHook(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "hooks.lua", `
		function test_hook(a, b)
			return a + b
		end
	`)
	require.NoError(t, mgr.LoadMap("1", dir, 0))
	ret, err := mgr.CallHook("1", "test_hook", lua.LNumber(3), lua.LNumber(4))
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(7), ret)
}

func TestManager_LoadMap_EmptyIDRejected(t *testing.T) {
	mgr, _ := newTestManager(t)
	assert.Error(t, mgr.LoadMap("", t.TempDir(), 0))
}

func TestManager_CallHook_MissingHook_NoOp(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "empty.lua", `-- no functions`)
	require.NoError(t, mgr.LoadMap("1", dir, 0))
	ret, err := mgr.CallHook("1", "nonexistent_hook")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
}

func TestManager_CallHook_NoVM_ReturnsNil(t *testing.T) {
	mgr, logs := newTestManager(t)
	ret, err := mgr.CallHook("145", "some_hook")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
	assert.True(t, hasLevel(logs, zap.DebugLevel))
}

func TestManager_CallHook_RuntimeError_WarnLogNoPanic(t *testing.T) {
	mgr, logs := newTestManager(t)
	dir := writeTempLua(t, "bad.lua", `
		function bad_hook()
			error("intentional error")
		end
	`)
	require.NoError(t, mgr.LoadMap("1", dir, 0))
	ret, err := mgr.CallHook("1", "bad_hook")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
	assert.True(t, hasLevel(logs, zap.WarnLevel))
}

func TestManager_CallHook_BudgetIsPerCall(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "loop.lua", `
		function spin() while true do end end
		function add(a, b) return a + b end
	`)
	require.NoError(t, mgr.LoadMap("1", dir, 200))

	ret, err := mgr.CallHook("1", "spin")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)

	for i := 0; i < 5; i++ {
		ret, err = mgr.CallHook("1", "add", lua.LNumber(1), lua.LNumber(1))
		require.NoError(t, err)
		assert.Equal(t, lua.LNumber(2), ret, "VM must stay usable after a budget overrun")
	}
}

func TestManager_LoadGlobal_Fallback(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "global.lua", `function global_hook() return 42 end`)
	require.NoError(t, mgr.LoadGlobal(dir, 0))
	ret, err := mgr.CallHook("unknown", "global_hook")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(42), ret)
}

func TestManager_LoadTree(t *testing.T) {
	mgr, _ := newTestManager(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "chat.lua"), []byte(`function where() return "global" end`), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "maps", "130"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "maps", "130", "act4.lua"), []byte(`function where() return "act4" end`), 0644))

	require.NoError(t, mgr.LoadTree(root, 0))
	assert.Equal(t, []string{"130", scripting.GlobalScope}, mgr.Scopes())

	ret, _ := mgr.CallHook("130", "where")
	assert.Equal(t, lua.LString("act4"), ret)
	ret, _ = mgr.CallHook("1", "where")
	assert.Equal(t, lua.LString("global"), ret)
}

func TestManager_LoadTree_NoMapsDir(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadTree(t.TempDir(), 0))
	assert.Equal(t, []string{scripting.GlobalScope}, mgr.Scopes())
}

func TestManager_LoadMap_InvalidLua_ReturnsError(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "bad.lua", `this is not valid lua @@@@`)
	assert.Error(t, mgr.LoadMap("bad", dir, 0))
	assert.Empty(t, mgr.Scopes())
}

func TestManager_LoadMap_MissingDir_ReturnsError(t *testing.T) {
	mgr, _ := newTestManager(t)
	assert.Error(t, mgr.LoadMap("1", filepath.Join(t.TempDir(), "absent"), 0))
}

func TestManager_LoadMap_MultipleFiles_OrderedByName(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.lua"), []byte(`base_val = 10`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.lua"), []byte(`function get_val() return base_val end`), 0644))
	require.NoError(t, mgr.LoadMap("ordered", dir, 0))
	ret, err := mgr.CallHook("ordered", "get_val")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(10), ret)
}

func TestManager_Reload_ReplacesVM(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadMap("1", writeTempLua(t, "v.lua", `function v() return 1 end`), 0))
	require.NoError(t, mgr.LoadMap("1", writeTempLua(t, "v.lua", `function v() return 2 end`), 0))
	ret, _ := mgr.CallHook("1", "v")
	assert.Equal(t, lua.LNumber(2), ret)
}

func TestNewManager_PanicsOnNilLogger(t *testing.T) {
	assert.Panics(t, func() { scripting.NewManager(nil) })
}

func TestManager_Close_ReleasesVMs(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadMap("1", writeTempLua(t, "init.lua", `function get_x() return 1 end`), 0))
	mgr.Close()
	ret, err := mgr.CallHook("1", "get_x")
	assert.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
}

func TestManager_CallHook_ConcurrentSameVM(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadMap("1", writeTempLua(t, "hooks.lua", `
		function concurrent_hook(a, b) return a + b end
	`), 0))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				ret, err := mgr.CallHook("1", "concurrent_hook", lua.LNumber(1), lua.LNumber(2))
				assert.NoError(t, err)
				assert.Equal(t, lua.LNumber(3), ret)
			}
		}()
	}
	wg.Wait()
}

func TestProperty_CallHookMissingVMNeverPanics(t *testing.T) {
	mgr, _ := newTestManager(t)
	rapid.Check(t, func(rt *rapid.T) {
		mapID := rapid.StringMatching(`[0-9]{1,4}`).Draw(rt, "map")
		hook := rapid.StringMatching(`[a-z]{1,10}`).Draw(rt, "hook")
		ret, err := mgr.CallHook(mapID, hook)
		if err != nil || ret != lua.LNil {
			rt.Fatalf("CallHook(%q, %q) = %v, %v", mapID, hook, ret, err)
		}
	})
}
