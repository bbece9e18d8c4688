// Package mapscript loads Lua map generator scripts. A script defines
//
//	function generate(width, height, seed)
//
// and returns a table of row strings built from the block type codes,
// row 1 being the surface. Scripts run with io/os/debug stripped, same
// as every embedded script in this server.
package mapscript

import (
	"fmt"
	"log/slog"

	lua "github.com/Shopify/go-lua"

	"github.com/buddlerjoe/buddlerd/internal/gamemap"
)

type Generator struct {
	path   string
	logger *slog.Logger
}

// Load parses and executes the script once so definition errors
// surface at startup rather than on the first lobby start.
func Load(path string, logger *slog.Logger) (*Generator, error) {
	state := newState()
	if err := lua.DoFile(state, path); err != nil {
		return nil, fmt.Errorf("failed to load map script %s: %w", path, err)
	}
	state.Global("generate")
	if !state.IsFunction(-1) {
		return nil, fmt.Errorf("map script %s does not define generate(width, height, seed)", path)
	}
	return &Generator{path: path, logger: logger}, nil
}

func newState() *lua.State {
	state := lua.NewState()
	lua.OpenLibraries(state)

	state.PushNil()
	state.SetGlobal("io")

	state.PushNil()
	state.SetGlobal("os")

	state.PushNil()
	state.SetGlobal("debug")

	return state
}

// Generate runs the script on a fresh state. Each lobby start gets an
// isolated interpreter, so a script cannot leak state between maps.
func (g *Generator) Generate(width, height int, seed int64) ([][]gamemap.BlockType, error) {
	state := newState()
	if err := lua.DoFile(state, g.path); err != nil {
		return nil, fmt.Errorf("failed to reload map script: %w", err)
	}

	state.Global("generate")
	state.PushInteger(width)
	state.PushInteger(height)
	state.PushInteger(int(seed))
	if err := state.ProtectedCall(3, 1, 0); err != nil {
		return nil, fmt.Errorf("generate() failed: %w", err)
	}

	if !state.IsTable(-1) {
		return nil, fmt.Errorf("generate() returned %s, want table of row strings", lua.TypeNameOf(state, -1))
	}

	rows := make([]string, 0, height)
	for i := 1; i <= height; i++ {
		state.RawGetInt(-1, i)
		row, ok := state.ToString(-1)
		state.Pop(1)
		if !ok {
			return nil, fmt.Errorf("generate() row %d is not a string", i)
		}
		rows = append(rows, row)
	}
	state.Pop(1)

	grid, err := gamemap.GridFromRows(rows)
	if err != nil {
		return nil, fmt.Errorf("generate() produced a bad grid: %w", err)
	}
	if len(grid) != width || len(grid[0]) != height {
		return nil, fmt.Errorf("generate() produced %dx%d grid, want %dx%d", len(grid), len(grid[0]), width, height)
	}

	if g.logger != nil {
		g.logger.Debug("map script generated grid", "script", g.path, "width", width, "height", height, "seed", seed)
	}
	return grid, nil
}
