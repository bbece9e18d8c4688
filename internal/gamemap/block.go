package gamemap

// BlockType enumerates the cell types of the world grid. The wire code
// is a single character so a whole map row serializes as one field.
type BlockType uint8

const (
	BlockAir BlockType = iota
	BlockDirt
	BlockStone
	BlockGold
	BlockQmark
)

func (t BlockType) Code() byte {
	switch t {
	case BlockDirt:
		return '1'
	case BlockStone:
		return '2'
	case BlockGold:
		return '3'
	case BlockQmark:
		return '4'
	default:
		return '0'
	}
}

func TypeFromCode(c byte) (BlockType, bool) {
	switch c {
	case '0':
		return BlockAir, true
	case '1':
		return BlockDirt, true
	case '2':
		return BlockStone, true
	case '3':
		return BlockGold, true
	case '4':
		return BlockQmark, true
	}
	return BlockAir, false
}

func (t BlockType) String() string {
	switch t {
	case BlockDirt:
		return "DIRT"
	case BlockStone:
		return "STONE"
	case BlockGold:
		return "GOLD"
	case BlockQmark:
		return "QMARK"
	default:
		return "AIR"
	}
}

// BaseHardness is the digging effort for a freshly generated block of
// the given type. AIR is always zero.
func BaseHardness(t BlockType) int {
	switch t {
	case BlockDirt:
		return 1
	case BlockQmark:
		return 2
	case BlockStone:
		return 3
	case BlockGold:
		return 4
	default:
		return 0
	}
}

// Block is one grid cell. Hardness counts down from BaseHardness(Type)
// to zero, at which point the cell turns to AIR.
type Block struct {
	Type     BlockType
	GridX    int
	GridY    int
	Hardness int
}

func newBlock(t BlockType, x, y int) Block {
	return Block{Type: t, GridX: x, GridY: y, Hardness: BaseHardness(t)}
}
