package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"glitchex/internal/anomaly"
	"glitchex/internal/game"
	"glitchex/internal/market"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ game.Metrics = (*Metrics)(nil)

func value(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var pb dto.Metric
	require.NoError(t, (<-ch).Write(&pb))
	if pb.Counter != nil {
		return pb.Counter.GetValue()
	}
	return pb.Gauge.GetValue()
}

func TestMetricsRecordGameplay(t *testing.T) {
	m := NewMetrics("")

	m.ObserveTick(12_500*market.MicrosPerUnit, 2)
	m.ObserveTrade(market.SideSell, true, nil)
	m.ObserveTrade(market.SideBuy, false, market.ErrInsufficientFunds)
	m.ObserveTrade(market.SideBuy, false, errors.New("boom"))
	m.ObserveSpawn(anomaly.SlotChart, anomaly.SeveritySevere, nil)
	m.ObserveSpawn("", 0, anomaly.ErrGeneration)
	m.ObservePurge(anomaly.CategoryButton, false)
	m.ObserveGameOver(game.ReasonOverload)

	assert.Equal(t, 1.0, value(t, m.Ticks))
	assert.Equal(t, 12_500.0, value(t, m.BalanceUnits))
	assert.Equal(t, 3.0, value(t, m.ActiveAnomalies))
	assert.Equal(t, 1.0, value(t, m.Trades.WithLabelValues("SELL", "true")))
	assert.Equal(t, 1.0, value(t, m.TradeRejected.WithLabelValues("insufficient_funds")))
	assert.Equal(t, 1.0, value(t, m.TradeRejected.WithLabelValues("other")))
	assert.Equal(t, 1.0, value(t, m.Spawns.WithLabelValues("chart", "severe")))
	assert.Equal(t, 1.0, value(t, m.SpawnFailures))
	assert.Equal(t, 1.0, value(t, m.Purges.WithLabelValues("button", "miss")))
	assert.Equal(t, 1.0, value(t, m.GamesEnded.WithLabelValues("anomaly_overload")))
}

func TestMetricsHandlerExposesRegistry(t *testing.T) {
	m := NewMetrics("test")
	m.ObserveTick(0, 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_market_ticks_total 1"))
}
