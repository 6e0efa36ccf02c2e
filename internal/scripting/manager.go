package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// GlobalScope is the key of the shared VM. CallHook falls back to it when a
// map has no VM of its own.
const GlobalScope = "__global__"

// mapsDir is the subdirectory of a script root holding per-map script dirs.
const mapsDir = "maps"

type vm struct {
	mu    sync.Mutex
	L     *lua.LState
	limit int
}

// Manager owns one sandboxed LState per map plus a global one and dispatches
// hook calls to them.
//
// Each LState is single-threaded; calls into the same VM are serialized by
// that VM's mutex while different VMs run concurrently.
type Manager struct {
	mu     sync.RWMutex
	vms    map[string]*vm
	logger *zap.Logger

	// Injected after construction. nil means the engine.* function is a no-op.
	MapName       func(mapID string) string
	IsFactionMap  func(mapID string) bool
	CharacterName func(charID int64) string
	Notify        func(charID int64, text string)
}

// NewManager creates a Manager.
//
// Precondition: logger must be non-nil.
// Postcondition: Returns a non-nil Manager with no VMs.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		panic("scripting.NewManager: logger must be non-nil")
	}
	return &Manager{
		vms:    make(map[string]*vm),
		logger: logger,
	}
}

// LoadMap creates a sandboxed VM for mapID and executes every *.lua file in
// scriptDir in lexicographic order.
//
// Precondition: mapID must be non-empty; scriptDir must be a readable directory.
// Postcondition: The VM replaces any previous VM for mapID; returns an error on
// a Lua load failure.
func (m *Manager) LoadMap(mapID, scriptDir string, instLimit int) error {
	if mapID == "" {
		return errors.New("scripting: map id must be non-empty")
	}
	return m.loadInto(mapID, scriptDir, instLimit)
}

// LoadGlobal creates the shared VM from scriptDir.
func (m *Manager) LoadGlobal(scriptDir string, instLimit int) error {
	return m.loadInto(GlobalScope, scriptDir, instLimit)
}

// LoadTree loads root's own *.lua files into the global VM and every
// root/maps/<id> directory into the VM for map <id>. A missing maps
// directory is not an error.
func (m *Manager) LoadTree(root string, instLimit int) error {
	if err := m.LoadGlobal(root, instLimit); err != nil {
		return err
	}
	entries, err := os.ReadDir(filepath.Join(root, mapsDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("scripting: reading map script dirs: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := m.LoadMap(e.Name(), filepath.Join(root, mapsDir, e.Name()), instLimit); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) loadInto(key, scriptDir string, instLimit int) error {
	L := NewSandboxedState()
	m.RegisterModules(L)

	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		L.Close()
		return fmt.Errorf("scripting: reading script dir %q for %q: %w", scriptDir, key, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	for _, path := range luaFiles {
		if err := withBudget(L, instLimit, func() error { return L.DoFile(path) }); err != nil {
			L.Close()
			return fmt.Errorf("scripting: loading %q for %q: %w", path, key, err)
		}
	}

	m.mu.Lock()
	old := m.vms[key]
	m.vms[key] = &vm{L: L, limit: instLimit}
	m.mu.Unlock()

	if old != nil {
		old.mu.Lock()
		old.L.Close()
		old.mu.Unlock()
	}
	m.logger.Info("scripts loaded",
		zap.String("scope", key),
		zap.Int("files", len(luaFiles)),
	)
	return nil
}

// Scopes returns the keys of every loaded VM, sorted.
func (m *Manager) Scopes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.vms))
	for k := range m.vms {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CallHook calls the named Lua global function in mapID's VM, falling back to
// the global VM. Returns (LNil, nil) if the hook is not defined or no VM
// exists. Lua runtime errors, including an exhausted instruction budget, are
// logged at Warn level and never propagated.
//
// Precondition: args must be valid lua.LValue instances.
// Postcondition: Returns the first return value of the hook, or LNil.
func (m *Manager) CallHook(mapID, hook string, args ...lua.LValue) (lua.LValue, error) {
	m.mu.RLock()
	v, ok := m.vms[mapID]
	if !ok {
		v = m.vms[GlobalScope]
	}
	m.mu.RUnlock()

	if v == nil {
		m.logger.Debug("scripting: no VM for map",
			zap.String("map", mapID),
			zap.String("hook", hook),
		)
		return lua.LNil, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	fn := v.L.GetGlobal(hook)
	if fn == lua.LNil {
		return lua.LNil, nil
	}

	err := withBudget(v.L, v.limit, func() error {
		return v.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...)
	})
	if err != nil {
		msg := "scripting: Lua runtime error"
		if errors.Is(err, ErrInstructionLimit) {
			msg = "scripting: hook exceeded instruction limit"
		}
		m.logger.Warn(msg,
			zap.String("map", mapID),
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil, nil
	}

	ret := v.L.Get(-1)
	v.L.Pop(1)
	return ret, nil
}

// Close releases every VM.
func (m *Manager) Close() {
	m.mu.Lock()
	vms := m.vms
	m.vms = make(map[string]*vm)
	m.mu.Unlock()

	for _, v := range vms {
		v.mu.Lock()
		v.L.Close()
		v.mu.Unlock()
	}
}
