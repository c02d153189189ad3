// Package rules hosts sandboxed rule modules: per-game Lua code that decides
// round outcomes through a narrow capability surface. Module code never
// touches the state document directly; every read and write crosses the Host
// interface, where the session enforces bounds, ownership, and turn rules.
package rules

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/Shopify/go-lua"
)

// Module is one game's rule code, loaded once per game type and shared by
// every session of that game. A Lua state is not safe for concurrent use,
// so invocations are serialized by the module's mutex.
type Module struct {
	gameID string
	hooks  map[string]struct{}

	mu   sync.Mutex
	l    *lua.State
	host Host
}

// Load compiles and runs module source in a fresh sandboxed interpreter.
// Only the base, table, string, and math libraries are opened; no io, os,
// or load facilities are reachable from module code. hooks lists the entry
// points the module declares.
func Load(gameID string, source []byte, hooks []string) (*Module, error) {
	m := &Module{
		gameID: gameID,
		hooks:  make(map[string]struct{}, len(hooks)),
	}
	for _, hook := range hooks {
		m.hooks[hook] = struct{}{}
	}

	l := lua.NewState()
	openSandboxLibraries(l)

	l.NewTable()
	lua.SetFunctions(l, m.hostFunctions(), 0)
	l.SetGlobal("host")

	if err := l.Load(bytes.NewReader(source), "@"+gameID, ""); err != nil {
		return nil, fmt.Errorf("failed to load module %s: %v", gameID, err)
	}
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		l.SetTop(0)
		return nil, fmt.Errorf("failed to run module %s: %v", gameID, err)
	}

	m.l = l
	return m, nil
}

func openSandboxLibraries(l *lua.State) {
	libraries := []struct {
		name string
		open lua.Function
	}{
		{"_G", lua.BaseOpen},
		{"table", lua.TableOpen},
		{"string", lua.StringOpen},
		{"math", lua.MathOpen},
	}
	for _, library := range libraries {
		lua.Require(l, library.name, library.open, true)
		l.Pop(1)
	}
}

// GameID returns the game type this module is bound to.
func (m *Module) GameID() string {
	return m.gameID
}

// HasHook reports whether the module declares the named entry point.
func (m *Module) HasHook(hook string) bool {
	_, ok := m.hooks[hook]
	return ok
}

// Hooks returns the declared entry point names.
func (m *Module) Hooks() []string {
	hooks := make([]string, 0, len(m.hooks))
	for hook := range m.hooks {
		hooks = append(hooks, hook)
	}
	return hooks
}

// Invoke calls a named hook with the given host bound for the duration of
// the call. payload is the encoded command the hook may inspect or ignore.
// A missing hook is a no-op. A fault inside module code (Lua error or a
// panic crossing the boundary) is returned as an error and never crashes
// the process; the caller treats it as "verb rejected".
func (m *Module) Invoke(hook string, host Host, payload []byte) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			m.l.SetTop(0)
			err = fmt.Errorf("module %s hook %s panicked: %v", m.gameID, hook, r)
		}
	}()

	m.host = host
	defer func() { m.host = nil }()

	m.l.SetTop(0)
	m.l.Global(hook)
	if !m.l.IsFunction(-1) {
		m.l.Pop(1)
		return nil
	}
	m.l.PushString(string(payload))
	if err := m.l.ProtectedCall(1, 0, 0); err != nil {
		m.l.SetTop(0)
		return fmt.Errorf("module %s hook %s: %v", m.gameID, hook, err)
	}
	return nil
}

// hostFunctions exposes the capability surface to module code as the global
// `host` table. String arguments are copied out of the Lua state eagerly
// and results are copied in, so no host memory is ever aliased by module
// code across a call boundary.
func (m *Module) hostFunctions() []lua.RegistryFunction {
	return []lua.RegistryFunction{
		{Name: "emit", Function: func(l *lua.State) int {
			value := lua.CheckString(l, 1)
			if h := m.host; h != nil {
				h.Emit([]byte(value))
			}
			return 0
		}},
		{Name: "zone_len", Function: func(l *lua.State) int {
			zoneID := lua.CheckString(l, 1)
			count := 0
			if h := m.host; h != nil {
				count = h.ZoneLen(zoneID)
			}
			l.PushInteger(count)
			return 1
		}},
		{Name: "owner_of", Function: func(l *lua.State) int {
			entityID := lua.CheckString(l, 1)
			h := m.host
			if h == nil {
				l.PushNil()
				return 1
			}
			owner, ok := h.OwnerOf(entityID)
			if !ok {
				l.PushNil()
				return 1
			}
			// PushString copies the scratch buffer before the next call
			// can clobber it.
			l.PushString(string(owner))
			return 1
		}},
		{Name: "grid", Function: func(l *lua.State) int {
			zoneID := lua.CheckString(l, 1)
			h := m.host
			if h == nil {
				l.NewTable()
				return 1
			}
			grid := h.Grid(zoneID)
			l.CreateTable(len(grid), 0)
			for i, row := range grid {
				l.CreateTable(len(row), 0)
				for j, cell := range row {
					if cell == nil {
						continue
					}
					l.PushString(*cell)
					l.RawSetInt(-2, j+1)
				}
				l.RawSetInt(-2, i+1)
			}
			return 1
		}},
		{Name: "advance_turn", Function: func(l *lua.State) int {
			if h := m.host; h != nil {
				h.AdvanceTurn()
			}
			return 0
		}},
		{Name: "round_end", Function: func(l *lua.State) int {
			outcome := lua.CheckString(l, 1)
			if h := m.host; h != nil {
				h.RoundEnd(outcome)
			}
			return 0
		}},
	}
}
