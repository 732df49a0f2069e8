package game

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"glitchex/internal/glitchgen"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateRunsToCompletion(t *testing.T) {
	gen := glitchgen.NewLocal(glitchgen.LocalConfig{}, 4, nil)
	s, err := NewSession(DefaultConfig(), gen, rand.New(rand.NewSource(4)), nil, nil)
	require.NoError(t, err)

	opts := DefaultSimOptions()
	opts.MaxTicks = 600
	rep, err := Simulate(context.Background(), s, rand.New(rand.NewSource(4)), opts)
	require.NoError(t, err)

	assert.Positive(t, rep.Ticks)
	assert.LessOrEqual(t, rep.Ticks, int64(opts.MaxTicks))
	assert.LessOrEqual(t, rep.PeakActive, 12)
	if rep.Reason.Terminal() {
		assert.True(t, s.engine.Stopped())
	} else {
		assert.Equal(t, int64(opts.MaxTicks), rep.Ticks)
	}
	assert.GreaterOrEqual(t, rep.Elapsed, time.Duration(rep.Ticks)*opts.TickEvery)
}

func TestSimulateNoSpawnsDuringGrace(t *testing.T) {
	gen := glitchgen.NewLocal(glitchgen.LocalConfig{}, 4, nil)
	s, err := NewSession(DefaultConfig(), gen, rand.New(rand.NewSource(4)), nil, nil)
	require.NoError(t, err)

	opts := DefaultSimOptions()
	opts.MaxTicks = 7 // 14s of virtual time, inside the 15s grace period
	rep, err := Simulate(context.Background(), s, rand.New(rand.NewSource(1)), opts)
	require.NoError(t, err)
	assert.Zero(t, rep.Spawned)
	assert.Zero(t, rep.PeakActive)
}
