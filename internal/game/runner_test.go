package game

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"glitchex/internal/anomaly"
	"glitchex/internal/glitchgen"
	"glitchex/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerServesCommandsAndBroadcasts(t *testing.T) {
	gen := glitchgen.NewLocal(glitchgen.LocalConfig{}, 1, nil)
	s, err := NewSession(DefaultConfig(), gen, rand.New(rand.NewSource(8)), nil, nil)
	require.NoError(t, err)
	r := NewRunner(s, 10*time.Millisecond, nil)

	updates, unsubscribe := r.Subscribe(4)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case snap := <-updates:
		assert.True(t, snap.InGrace)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot broadcast")
	}

	require.NoError(t, r.Select(ctx, "eth"))
	res, err := r.Buy(ctx, "ETH", 1)
	require.NoError(t, err)
	assert.Equal(t, market.SideBuy, res.Transaction.Side)

	_, err = r.Sell(ctx, "ETH", 5)
	require.ErrorIs(t, err, market.ErrInsufficientHoldings)

	pr, err := r.Purge(ctx, "chart")
	require.NoError(t, err)
	assert.False(t, pr.OK)
	assert.Equal(t, "ETH", pr.Symbol)

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ETH", snap.Selected)
	assert.Equal(t, int64(1), snap.Assets[1].Holdings)

	require.Eventually(t, func() bool {
		snap, err := r.Snapshot(ctx)
		return err == nil && snap.Tick >= 3
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, r.Restart(ctx))
	snap, err = r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.Assets[1].Holdings)
	assert.Equal(t, "BTC", snap.Selected)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
	_, err = r.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrRunnerStopped)
}

func TestRunnerResolvesGenerationResults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Director.GracePeriod = 0
	gen := glitchgen.NewLocal(glitchgen.LocalConfig{Latency: 5 * time.Millisecond}, 2, nil)
	s, err := NewSession(cfg, gen, rand.New(rand.NewSource(8)), nil, nil)
	require.NoError(t, err)
	r := NewRunner(s, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	require.Eventually(t, func() bool {
		snap, err := r.Snapshot(ctx)
		return err == nil && snap.ActiveAnomalies == 1 && snap.RequestPhase == anomaly.PhaseCooldown
	}, 2*time.Second, 10*time.Millisecond)
}
