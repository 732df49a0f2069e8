package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"glitchex/internal/market"
)

func TestClientPlaceOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/orders" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var in map[string]any
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode: %v", err)
		}
		if in["side"] != "BUY" || in["quantity"] != float64(3) {
			t.Errorf("unexpected body: %v", in)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"requested": "BUY",
			"reversed":  true,
			"transaction": map[string]any{
				"side": "SELL", "symbol": "ETH", "quantity": 3, "total_micros": 6_000_000_000,
			},
		})
	}))
	defer srv.Close()

	out, err := NewClient(srv.URL+"/").PlaceOrder(context.Background(), "ETH", market.SideBuy, 3)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if !out.Reversed || out.Transaction.Side != market.SideSell || out.Transaction.TotalMicros != 6_000_000_000 {
		t.Fatalf("unexpected trade: %+v", out)
	}
}

func TestClientDecodesState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"tick":7,"selected":"BTC","request_phase":"cooldown",
			"assets":[{"symbol":"BTC","price_micros":1000000000,
			"anomalies":[{"slot":"chart","variant":"neon","severity":"medium","descriptor":{"component":"GlitchChart_Neon"}}]}]}`))
	}))
	defer srv.Close()

	st, err := NewClient(srv.URL).State(context.Background())
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.Tick != 7 || st.RequestPhase != "cooldown" || len(st.Assets) != 1 {
		t.Fatalf("unexpected state: %+v", st)
	}
	if got := st.Assets[0].Anomalies[0]; got.Variant != "neon" || got.Severity != "medium" {
		t.Fatalf("unexpected anomaly: %+v", got)
	}
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"game is over"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Purge(context.Background(), "chart")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Message != "game is over" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}
