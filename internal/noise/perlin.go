// Package noise provides smooth pseudo-random scalar fields for price drift.
package noise

import (
	"math"
	"math/rand"
)

const tableSize = 256

// Perlin is a one-dimensional gradient noise generator. It is read-only after
// construction, so a single instance can drive every asset.
type Perlin struct {
	perm [tableSize * 2]int
}

// NewPerlin shuffles the permutation table with rng. Two generators built from
// identically seeded sources produce identical fields.
func NewPerlin(rng *rand.Rand) *Perlin {
	p := &Perlin{}
	var base [tableSize]int
	for i := range base {
		base[i] = i
	}
	for i := tableSize - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		base[i], base[j] = base[j], base[i]
	}
	for i := range p.perm {
		p.perm[i] = base[i&(tableSize-1)]
	}
	return p
}

// Noise returns the base field at x, in [-1, 1]. Integer coordinates always
// evaluate to zero.
func (p *Perlin) Noise(x float64) float64 {
	fl := math.Floor(x)
	xi := int(fl) & (tableSize - 1)
	t := x - fl

	g0 := gradient(p.perm[xi])
	g1 := gradient(p.perm[xi+1])
	n := lerp(fade(t), g0*t, g1*(t-1))
	return clamp(2 * n)
}

// Fractal sums octaves of the base field at increasing frequency and
// decreasing amplitude, normalised by the total amplitude so the result stays
// in [-1, 1].
func (p *Perlin) Fractal(x float64, octaves int, persistence, lacunarity float64) float64 {
	if octaves < 1 {
		octaves = 1
	}
	var total, maxAmp float64
	freq, amp := 1.0, 1.0
	for i := 0; i < octaves; i++ {
		total += p.Noise(x*freq) * amp
		maxAmp += amp
		amp *= persistence
		freq *= lacunarity
	}
	if maxAmp == 0 {
		return 0
	}
	return clamp(total / maxAmp)
}

// DriftParams controls how tick counts are mapped onto the noise field.
type DriftParams struct {
	Speed       float64
	Octaves     int
	Persistence float64
	Lacunarity  float64
}

// DefaultDrift matches the slow sentiment shifts of the market engine.
func DefaultDrift() DriftParams {
	return DriftParams{Speed: 0.1, Octaves: 2, Persistence: 0.5, Lacunarity: 2}
}

// Drift evaluates the drift signal for one asset at a tick. offset is the
// asset's fixed phase offset.
func (p *Perlin) Drift(tick int64, offset float64, dp DriftParams) float64 {
	return p.Fractal(float64(tick)*dp.Speed+offset, dp.Octaves, dp.Persistence, dp.Lacunarity)
}

func gradient(hash int) float64 {
	// 16 evenly spaced slopes in [-1, 1].
	return float64(hash&15)/7.5 - 1
}

func fade(t float64) float64 {
	return t * t * t * (t*(t*6-15) + 10)
}

func lerp(t, a, b float64) float64 {
	return a + t*(b-a)
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
