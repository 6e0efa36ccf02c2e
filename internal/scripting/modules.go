package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules registers the engine.* Lua tables into L:
//
//	engine.log.debug|info|warn|error(msg)
//	engine.world.map_name(map_id)        -> string
//	engine.world.is_faction_map(map_id)  -> bool
//	engine.player.name(char_id)          -> string
//	engine.player.notify(char_id, text)
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: engine global is defined in L.
func (m *Manager) RegisterModules(L *lua.LState) {
	engine := L.NewTable()
	L.SetField(engine, "log", m.logModule(L))
	L.SetField(engine, "world", m.worldModule(L))
	L.SetField(engine, "player", m.playerModule(L))
	L.SetGlobal("engine", engine)
}

func (m *Manager) logModule(L *lua.LState) *lua.LTable {
	levels := map[string]func(string, ...zap.Field){
		"debug": m.logger.Debug,
		"info":  m.logger.Info,
		"warn":  m.logger.Warn,
		"error": m.logger.Error,
	}
	tbl := L.NewTable()
	for name, fn := range levels {
		fn := fn
		L.SetField(tbl, name, L.NewFunction(func(L *lua.LState) int {
			fn("lua", zap.String("msg", L.CheckString(1)))
			return 0
		}))
	}
	return tbl
}

func (m *Manager) worldModule(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "map_name", L.NewFunction(func(L *lua.LState) int {
		id := L.CheckString(1)
		if m.MapName == nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(m.MapName(id)))
		return 1
	}))
	L.SetField(tbl, "is_faction_map", L.NewFunction(func(L *lua.LState) int {
		id := L.CheckString(1)
		L.Push(lua.LBool(m.IsFactionMap != nil && m.IsFactionMap(id)))
		return 1
	}))
	return tbl
}

func (m *Manager) playerModule(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "name", L.NewFunction(func(L *lua.LState) int {
		id := L.CheckInt64(1)
		if m.CharacterName == nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(m.CharacterName(id)))
		return 1
	}))
	L.SetField(tbl, "notify", L.NewFunction(func(L *lua.LState) int {
		id := L.CheckInt64(1)
		text := L.CheckString(2)
		if m.Notify != nil {
			m.Notify(id, text)
		}
		return 0
	}))
	return tbl
}
