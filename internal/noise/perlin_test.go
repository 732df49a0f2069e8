package noise

import (
	"math"
	"math/rand"
	"testing"
)

func TestNoiseRange(t *testing.T) {
	p := NewPerlin(rand.New(rand.NewSource(1)))
	for i := 0; i < 20_000; i++ {
		x := float64(i)*0.037 - 300
		v := p.Noise(x)
		if v < -1 || v > 1 {
			t.Fatalf("noise(%f)=%f outside [-1,1]", x, v)
		}
	}
}

func TestNoiseZeroAtLattice(t *testing.T) {
	p := NewPerlin(rand.New(rand.NewSource(2)))
	for _, x := range []float64{0, 1, 17, 255, 256, -3} {
		if v := p.Noise(x); v != 0 {
			t.Fatalf("noise(%f)=%f want 0", x, v)
		}
	}
}

func TestNoiseIsSmooth(t *testing.T) {
	p := NewPerlin(rand.New(rand.NewSource(3)))
	const step = 1e-4
	for i := 0; i < 5_000; i++ {
		x := float64(i) * 0.0713
		d := math.Abs(p.Noise(x+step) - p.Noise(x))
		// The slope of the field is bounded, so tiny steps give tiny deltas.
		if d > 0.01 {
			t.Fatalf("jump of %f between %f and %f", d, x, x+step)
		}
	}
}

func TestSameSeedSameField(t *testing.T) {
	a := NewPerlin(rand.New(rand.NewSource(42)))
	b := NewPerlin(rand.New(rand.NewSource(42)))
	for i := 0; i < 100; i++ {
		x := float64(i) * 0.31
		if a.Fractal(x, 4, 0.5, 2) != b.Fractal(x, 4, 0.5, 2) {
			t.Fatalf("fields diverge at %f", x)
		}
	}
}

func TestFractalRange(t *testing.T) {
	p := NewPerlin(rand.New(rand.NewSource(4)))
	tests := []struct {
		octaves     int
		persistence float64
	}{
		{octaves: 1, persistence: 0.5},
		{octaves: 2, persistence: 0.5},
		{octaves: 6, persistence: 0.9},
		{octaves: 0, persistence: 0.5},
	}
	for _, tc := range tests {
		for i := 0; i < 5_000; i++ {
			v := p.Fractal(float64(i)*0.013, tc.octaves, tc.persistence, 2)
			if v < -1 || v > 1 {
				t.Fatalf("octaves=%d fractal=%f outside [-1,1]", tc.octaves, v)
			}
		}
	}
}

func TestDriftOffsetsDecorrelate(t *testing.T) {
	p := NewPerlin(rand.New(rand.NewSource(5)))
	dp := DefaultDrift()
	same := 0
	for tick := int64(1); tick <= 200; tick++ {
		if p.Drift(tick, 12.34, dp) == p.Drift(tick, 567.89, dp) {
			same++
		}
	}
	if same > 20 {
		t.Fatalf("offsets produced %d identical samples", same)
	}
}
