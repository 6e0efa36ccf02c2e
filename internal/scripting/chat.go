package scripting

import lua "github.com/yuin/gopher-lua"

// HookOnSay is the Lua global consulted for every map chat line:
//
//	function on_say(char_id, map_id, message) ... end
//
// Returning a string replaces the message, returning false suppresses it,
// and anything else leaves it unchanged.
const HookOnSay = "on_say"

// FilterSay runs the on_say hook for a chat line.
//
// Postcondition: Returns the line to deliver and whether it may be delivered.
// A script failure leaves the line unchanged and allowed.
func (m *Manager) FilterSay(charID int64, mapID, message string) (string, bool) {
	ret, _ := m.CallHook(mapID, HookOnSay, lua.LNumber(charID), lua.LString(mapID), lua.LString(message))
	switch v := ret.(type) {
	case lua.LString:
		return string(v), true
	case lua.LBool:
		return message, bool(v)
	}
	return message, true
}
