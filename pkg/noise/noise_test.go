package noise

import (
	"testing"
)

func TestSourceStreamIsDeterministic(t *testing.T) {
	a := NewSource(42)
	b := NewSource(42)
	for i := 0; i < 1000; i++ {
		if a.Uint15() != b.Uint15() {
			t.Fatalf("same seed diverged at step %d", i)
		}
	}
}

func TestUint15Range(t *testing.T) {
	s := NewSource(7)
	for i := 0; i < 10000; i++ {
		if v := s.Uint15(); v > 0x7FFF {
			t.Fatalf("value %d out of range", v)
		}
	}
}

func TestFloatRange(t *testing.T) {
	s := NewSource(7)
	for i := 0; i < 10000; i++ {
		if v := s.Float(); v < 0 || v >= 1 {
			t.Fatalf("value %f out of range", v)
		}
	}
}

func TestIntnRange(t *testing.T) {
	s := NewSource(7)
	seen := make(map[int]bool)
	for i := 0; i < 10000; i++ {
		v := s.Intn(4)
		if v < 0 || v >= 4 {
			t.Fatalf("value %d out of range", v)
		}
		seen[v] = true
	}
	for v := 0; v < 4; v++ {
		if !seen[v] {
			t.Fatalf("value %d never produced", v)
		}
	}
}

func TestNoiseDeterministic(t *testing.T) {
	a := New2D(NewSource(99))
	b := New2D(NewSource(99))
	for i := 0; i < 100; i++ {
		x, y := float64(i)*0.37, float64(i)*0.53
		if a.At(x, y) != b.At(x, y) {
			t.Fatalf("same seed diverged at sample %d", i)
		}
	}
}

func TestNoiseRange(t *testing.T) {
	n := New2D(NewSource(3))
	for i := 0; i < 500; i++ {
		x, y := float64(i)*0.11, float64(i%37)*0.29
		if v := n.At(x, y); v < 0 || v > 1 {
			t.Fatalf("At(%f,%f) = %f out of range", x, y, v)
		}
		if v := n.Fractal(x, y, 4); v < 0 || v > 1 {
			t.Fatalf("Fractal(%f,%f) = %f out of range", x, y, v)
		}
	}
}

func TestNoiseNegativeCoordinates(t *testing.T) {
	n := New2D(NewSource(3))
	if v := n.At(-5.5, -2.25); v < 0 || v > 1 {
		t.Fatalf("negative coordinate sample %f out of range", v)
	}
}

func TestNoiseVaries(t *testing.T) {
	n := New2D(NewSource(1))
	first := n.At(0.5, 0.5)
	same := true
	for i := 1; i < 50; i++ {
		if n.At(float64(i)+0.5, 0.5) != first {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("noise field is constant")
	}
}
