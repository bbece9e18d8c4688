// Deterministic random source and 2D fractal value noise for map
// generation. Clients rebuild the map from the seed alone, so every
// operation here must produce identical results on every platform and
// Go version; math/rand gives no such guarantee across releases.
package noise

// Source is a small linear congruential generator. The constants match
// the classic MSVC rand() so a seed always unrolls into the same stream.
type Source struct {
	state uint32
}

func NewSource(seed int64) *Source {
	return &Source{state: uint32(seed)}
}

// Uint15 returns the next value in [0, 0x7FFF].
func (s *Source) Uint15() uint32 {
	s.state = s.state*214013 + 2531011
	return (s.state >> 16) & 0x7FFF
}

// Float returns the next value in [0, 1).
func (s *Source) Float() float64 {
	return float64(s.Uint15()) / 32768.0
}

// Intn returns the next value in [0, n). n must be in (0, 0x7FFF].
func (s *Source) Intn(n int) int {
	return int((s.Uint15() * uint32(n)) >> 15)
}

// Noise2D is seeded fractal value noise over a 256-point permutation
// lattice.
type Noise2D struct {
	perm [512]uint8
	vals [256]float64
}

func New2D(src *Source) *Noise2D {
	n := &Noise2D{}
	for i := 0; i < 256; i++ {
		n.perm[i] = uint8(i)
	}
	for i := 255; i > 0; i-- {
		j := src.Intn(i + 1)
		n.perm[i], n.perm[j] = n.perm[j], n.perm[i]
	}
	for i := 0; i < 256; i++ {
		n.perm[i+256] = n.perm[i]
	}
	for i := 0; i < 256; i++ {
		n.vals[i] = src.Float()
	}
	return n
}

func (n *Noise2D) lattice(x, y int) float64 {
	return n.vals[n.perm[int(n.perm[x&255])+(y&255)]]
}

func smooth(t float64) float64 {
	return t * t * (3 - 2*t)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// At samples single-octave value noise at (x, y), in [0, 1].
func (n *Noise2D) At(x, y float64) float64 {
	xi, yi := floor(x), floor(y)
	tx, ty := smooth(x-float64(xi)), smooth(y-float64(yi))

	v00 := n.lattice(xi, yi)
	v10 := n.lattice(xi+1, yi)
	v01 := n.lattice(xi, yi+1)
	v11 := n.lattice(xi+1, yi+1)

	return lerp(lerp(v00, v10, tx), lerp(v01, v11, tx), ty)
}

// Fractal sums octaves of At with halving amplitude and doubling
// frequency, renormalized to [0, 1].
func (n *Noise2D) Fractal(x, y float64, octaves int) float64 {
	sum, amp, norm := 0.0, 1.0, 0.0
	for o := 0; o < octaves; o++ {
		sum += n.At(x, y) * amp
		norm += amp
		amp *= 0.5
		x *= 2
		y *= 2
	}
	return sum / norm
}

func floor(f float64) int {
	i := int(f)
	if f < float64(i) {
		i--
	}
	return i
}
