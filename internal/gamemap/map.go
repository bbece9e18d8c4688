// Package gamemap holds the authoritative 2D block grid of a running
// lobby: generation, hardness accounting, gravity settling, and the
// wire serializations clients reconstruct the world from.
package gamemap

import (
	"fmt"
	"strings"

	"github.com/buddlerjoe/buddlerd/internal/protocol"
)

// Map is the world grid. x grows to the right, y grows downward, y=0
// is the surface row. Invariant after every mutation: no STONE cell
// has an AIR cell directly below it.
type Map struct {
	Width    int
	Height   int
	Seed     int64
	Dim      int
	SurfaceZ int

	blocks [][]Block
}

// New generates a map with gen and settles it. Dim is the world-space
// edge length of one block, SurfaceZ the world-space depth items spawn
// at; both only scale drop positions.
func New(width, height int, seed int64, dim, surfaceZ int, gen Generator) (*Map, error) {
	grid, err := gen.Generate(width, height, seed)
	if err != nil {
		return nil, fmt.Errorf("map generation failed: %w", err)
	}
	return FromGrid(grid, seed, dim, surfaceZ)
}

// FromGrid builds a map over an existing type grid (indexed [x][y])
// and settles it.
func FromGrid(grid [][]BlockType, seed int64, dim, surfaceZ int) (*Map, error) {
	width := len(grid)
	if width == 0 || len(grid[0]) == 0 {
		return nil, fmt.Errorf("empty grid")
	}
	height := len(grid[0])

	m := &Map{
		Width:    width,
		Height:   height,
		Seed:     seed,
		Dim:      dim,
		SurfaceZ: surfaceZ,
		blocks:   make([][]Block, width),
	}
	for x := 0; x < width; x++ {
		if len(grid[x]) != height {
			return nil, fmt.Errorf("column %d has %d cells, want %d", x, len(grid[x]), height)
		}
		m.blocks[x] = make([]Block, height)
		for y := 0; y < height; y++ {
			m.blocks[x][y] = newBlock(grid[x][y], x, y)
		}
	}
	m.Settle()
	return m, nil
}

func (m *Map) InBounds(x, y int) bool {
	return x >= 0 && x < m.Width && y >= 0 && y < m.Height
}

func (m *Map) Block(x, y int) Block {
	return m.blocks[x][y]
}

// Settle drops STONE blocks into AIR cells below them until the grid
// reaches the fixed point. A falling block keeps its accumulated
// damage. Returns the number of single-row moves performed; each pass
// either moves at least one block or terminates, so the loop is
// bounded by width*height per pass and height passes per block.
func (m *Map) Settle() int {
	moves := 0
	for {
		moved := false
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				if m.blocks[x][y].Type != BlockStone {
					continue
				}
				if y+1 >= m.Height || m.blocks[x][y+1].Type != BlockAir {
					continue
				}
				m.blocks[x][y+1] = Block{
					Type:     BlockStone,
					GridX:    x,
					GridY:    y + 1,
					Hardness: m.blocks[x][y].Hardness,
				}
				m.blocks[x][y] = newBlock(BlockAir, x, y)
				moved = true
				moves++
			}
		}
		if !moved {
			return moves
		}
	}
}

// DamageResult reports the outcome of one Damage call.
type DamageResult struct {
	Changed   bool
	Destroyed bool

	// Set when a QMARK block was destroyed: an item spawns at the
	// world-space position below.
	DroppedItem bool
	DropX       int
	DropY       int
	DropZ       int
}

// Damage subtracts amount from the hardness of (x, y). A block whose
// hardness reaches zero becomes AIR; a destroyed QMARK reports an item
// drop. The grid is settled before returning. Damaging AIR is a no-op.
func (m *Map) Damage(x, y, amount int) (DamageResult, error) {
	var res DamageResult
	if !m.InBounds(x, y) {
		return res, fmt.Errorf("block (%d,%d) outside %dx%d map", x, y, m.Width, m.Height)
	}
	if amount <= 0 {
		return res, fmt.Errorf("damage amount must be positive, got %d", amount)
	}

	b := &m.blocks[x][y]
	if b.Type == BlockAir {
		return res, nil
	}

	res.Changed = true
	b.Hardness -= amount
	if b.Hardness > 0 {
		return res, nil
	}

	res.Destroyed = true
	if b.Type == BlockQmark {
		res.DroppedItem = true
		res.DropX = x * m.Dim
		res.DropY = y * m.Dim
		res.DropZ = m.SurfaceZ
	}
	b.Type = BlockAir
	b.Hardness = 0

	m.Settle()
	return res, nil
}

// PacketString serializes the grid for a BRMAP broadcast: one type
// code per cell, row-major, rows joined by the field delimiter.
func (m *Map) PacketString() string {
	var sb strings.Builder
	sb.Grow(m.Width*m.Height + (m.Height-1)*len(protocol.Delimiter))
	for y := 0; y < m.Height; y++ {
		if y > 0 {
			sb.WriteString(protocol.Delimiter)
		}
		for x := 0; x < m.Width; x++ {
			sb.WriteByte(m.blocks[x][y].Type.Code())
		}
	}
	return sb.String()
}

// DamageEntry is one accumulated-damage record for map reconciliation.
type DamageEntry struct {
	X      int
	Y      int
	Amount int
}

// DamagePackets lists (x, y, base−current) for every block with
// nonzero accumulated damage. A freshly generated map yields none.
func (m *Map) DamagePackets() []DamageEntry {
	var entries []DamageEntry
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			b := m.blocks[x][y]
			if d := BaseHardness(b.Type) - b.Hardness; d > 0 {
				entries = append(entries, DamageEntry{X: x, Y: y, Amount: d})
			}
		}
	}
	return entries
}
