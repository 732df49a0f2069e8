package glitchgen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"glitchex/internal/anomaly"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentName(t *testing.T) {
	tests := []struct {
		slot    anomaly.Slot
		variant anomaly.Variant
		want    string
	}{
		{anomaly.SlotBuy, anomaly.VariantRed, "GlitchBuyButton_Red"},
		{anomaly.SlotSell, anomaly.VariantReverse, "GlitchSellButton_Reverse"},
		{anomaly.SlotChart, anomaly.VariantNoAxis, "GlitchChart_NoAxis"},
	}
	for _, tc := range tests {
		if got := ComponentName(tc.slot, tc.variant); got != tc.want {
			t.Fatalf("got %q want %q", got, tc.want)
		}
	}
}

func TestLocalEchoesRequest(t *testing.T) {
	g := NewLocal(LocalConfig{}, 1, nil)
	req := anomaly.Request{Token: 3, Symbol: "ETH", Slot: anomaly.SlotBuy, Variant: anomaly.VariantTypo, Severity: anomaly.SeverityMild}

	d, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ETH", d.Symbol())
	assert.Equal(t, anomaly.SlotBuy, d.Slot())
	assert.Equal(t, anomaly.VariantTypo, d.Variant())

	c := d.(Control)
	assert.NotEqual(t, "Buy", c.Label)
	assert.Equal(t, "GlitchBuyButton_Typo", c.Component)
}

func TestLocalRejectsUnknownVariant(t *testing.T) {
	g := NewLocal(LocalConfig{}, 1, nil)
	_, err := g.Generate(context.Background(), anomaly.Request{Symbol: "BTC", Slot: anomaly.SlotSell, Variant: anomaly.VariantNeon})
	require.ErrorIs(t, err, anomaly.ErrUnknownVariant)
}

func TestLocalFailRate(t *testing.T) {
	g := NewLocal(LocalConfig{FailRate: 1}, 1, nil)
	_, err := g.Generate(context.Background(), anomaly.Request{Symbol: "BTC", Slot: anomaly.SlotBuy, Variant: anomaly.VariantRed})
	require.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestLocalHonoursCancellation(t *testing.T) {
	g := NewLocal(LocalConfig{Latency: time.Hour}, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := g.Generate(ctx, anomaly.Request{Symbol: "BTC", Slot: anomaly.SlotBuy, Variant: anomaly.VariantRed})
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		require.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("generate ignored cancellation")
	}
}

func TestRemoteGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/controls", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var in controlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.NotEmpty(t, in.RequestID)
		_ = json.NewEncoder(w).Encode(Control{ID: "c1", Asset: in.Symbol, Target: in.Slot, Kind: in.Variant, Label: "Buy"})
	}))
	defer srv.Close()

	g := NewRemote(srv.URL+"/", "secret", time.Second)
	d, err := g.Generate(context.Background(), anomaly.Request{Symbol: "SOL", Slot: anomaly.SlotChart, Variant: anomaly.VariantNeon, Severity: anomaly.SeverityMedium})
	require.NoError(t, err)
	assert.Equal(t, "SOL", d.Symbol())
	assert.Equal(t, anomaly.SlotChart, d.Slot())
	assert.Equal(t, "GlitchChart_Neon", d.(Control).Component)
}

func TestRemoteStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := NewRemote(srv.URL, "", time.Second)
	_, err := g.Generate(context.Background(), anomaly.Request{Symbol: "SOL", Slot: anomaly.SlotBuy, Variant: anomaly.VariantRed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generator status 429")
}
