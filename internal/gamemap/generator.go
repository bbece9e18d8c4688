package gamemap

import (
	"fmt"

	"github.com/buddlerjoe/buddlerd/pkg/noise"
)

// Generator produces the initial block type grid, indexed [x][y] with
// y growing downward from the surface. Implementations must be fully
// deterministic in the seed: clients rebuild the same map from
// (width, height, seed) alone.
type Generator interface {
	Generate(width, height int, seed int64) ([][]BlockType, error)
}

// NoiseGenerator thresholds fractal value noise into terrain and rolls
// per-cell ore chances off the same deterministic stream.
type NoiseGenerator struct {
	StoneThreshold float64
	DirtThreshold  float64
	GoldChance     float64
	QmarkChance    float64
	Octaves        int
	Scale          float64
}

func DefaultNoiseGenerator() *NoiseGenerator {
	return &NoiseGenerator{
		StoneThreshold: 0.35,
		DirtThreshold:  0.65,
		GoldChance:     0.02,
		QmarkChance:    0.01,
		Octaves:        4,
		Scale:          12.0,
	}
}

func (g *NoiseGenerator) Generate(width, height int, seed int64) ([][]BlockType, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid map dimensions %dx%d", width, height)
	}

	src := noise.NewSource(seed)
	field := noise.New2D(src)

	grid := make([][]BlockType, width)
	for x := range grid {
		grid[x] = make([]BlockType, height)
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := field.Fractal(float64(x)/g.Scale, float64(y)/g.Scale, g.Octaves)
			switch {
			case v < g.StoneThreshold:
				grid[x][y] = BlockStone
			case src.Float() < g.GoldChance:
				grid[x][y] = BlockGold
			case src.Float() < g.QmarkChance:
				grid[x][y] = BlockQmark
			case v < g.DirtThreshold:
				grid[x][y] = BlockDirt
			default:
				grid[x][y] = BlockAir
			}
		}
	}
	return grid, nil
}

// GridFromRows rebuilds a type grid from row strings of wire codes,
// row 0 being the surface. All rows must have equal length.
func GridFromRows(rows []string) ([][]BlockType, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("empty grid")
	}
	width, height := len(rows[0]), len(rows)

	grid := make([][]BlockType, width)
	for x := range grid {
		grid[x] = make([]BlockType, height)
	}
	for y, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d cells, want %d", y, len(row), width)
		}
		for x := 0; x < width; x++ {
			t, ok := TypeFromCode(row[x])
			if !ok {
				return nil, fmt.Errorf("unknown block code %q at (%d,%d)", row[x], x, y)
			}
			grid[x][y] = t
		}
	}
	return grid, nil
}
