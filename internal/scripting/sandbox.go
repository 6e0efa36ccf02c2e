// Package scripting provides a sandboxed GopherLua environment for chat and
// map hooks. It has no dependency on game domain packages; world interactions
// are injected through Manager callback fields.
package scripting

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the maximum number of Lua opcodes one load or
// hook call may execute when no override is configured.
const DefaultInstructionLimit = 100_000

// ErrInstructionLimit is wrapped into the error of a run that used up its
// opcode budget.
var ErrInstructionLimit = errors.New("scripting: instruction limit exceeded")

// unsafeGlobals are left behind by OpenBase and give scripts file or module access.
var unsafeGlobals = []string{"dofile", "loadfile", "load", "loadstring", "collectgarbage", "require"}

// opBudget is a context that cancels itself once Done has been polled
// more times than it has opcodes left. The VM polls Done once per opcode.
type opBudget struct {
	context.Context
	cancel    context.CancelFunc
	left      atomic.Int64
	exhausted atomic.Bool
}

func newOpBudget(limit int) *opBudget {
	if limit <= 0 {
		limit = DefaultInstructionLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &opBudget{Context: ctx, cancel: cancel}
	b.left.Store(int64(limit))
	return b
}

func (b *opBudget) Done() <-chan struct{} {
	if b.left.Add(-1) < 0 && !b.exhausted.Swap(true) {
		b.cancel()
	}
	return b.Context.Done()
}

// NewSandboxedState returns an LState with only base, table, string and math
// opened, and with unsafeGlobals cleared.
//
// Postcondition: The caller must call L.Close().
func NewSandboxedState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, open := range []lua.LGFunction{lua.OpenBase, lua.OpenTable, lua.OpenString, lua.OpenMath} {
		open(L)
	}
	for _, name := range unsafeGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// withBudget runs fn while L may execute at most limit opcodes.
// limit <= 0 uses DefaultInstructionLimit.
//
// Postcondition: an exhausted budget yields an error wrapping ErrInstructionLimit.
func withBudget(L *lua.LState, limit int, fn func() error) error {
	b := newOpBudget(limit)
	defer b.cancel()
	L.SetContext(b)
	defer L.RemoveContext()

	err := fn()
	if b.exhausted.Load() {
		return fmt.Errorf("%w: %v", ErrInstructionLimit, err)
	}
	return err
}

// RunSandboxed executes src in a fresh sandbox limited to limit opcodes.
func RunSandboxed(src string, limit int) error {
	L := NewSandboxedState()
	defer L.Close()
	return withBudget(L, limit, func() error { return L.DoString(src) })
}
