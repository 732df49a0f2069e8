package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"glitchex/internal/market"
)

// AnomalyState is the client view of one active anomaly.
type AnomalyState struct {
	ID       string `json:"id"`
	Slot     string `json:"slot"`
	Category string `json:"category"`
	Variant  string `json:"variant"`
	Severity string `json:"severity"`
}

type AssetState struct {
	Symbol           string         `json:"symbol"`
	PriceMicros      int64          `json:"price_micros"`
	Holdings         int64          `json:"holdings"`
	AvgCostMicros    int64          `json:"avg_cost_micros"`
	UnrealizedMicros int64          `json:"unrealized_micros"`
	Anomalies        []AnomalyState `json:"anomalies"`
}

type State struct {
	Tick               int64                `json:"tick"`
	BalanceMicros      int64                `json:"balance_micros"`
	StartBalanceMicros int64                `json:"start_balance_micros"`
	WinBalanceMicros   int64                `json:"win_balance_micros"`
	Progress           float64              `json:"progress"`
	Assets             []AssetState         `json:"assets"`
	Transactions       []market.Transaction `json:"transactions"`
	Selected           string               `json:"selected"`
	ActiveAnomalies    int                  `json:"active_anomalies"`
	OverloadMax        int                  `json:"overload_max"`
	Integrity          float64              `json:"integrity"`
	InGrace            bool                 `json:"in_grace"`
	Warning            bool                 `json:"warning"`
	GraceRemaining     time.Duration        `json:"grace_remaining_ns"`
	CompromisedFor     time.Duration        `json:"compromised_for_ns"`
	RequestPhase       string               `json:"request_phase"`
	Stopped            bool                 `json:"stopped"`
	Reason             string               `json:"reason"`
}

type Trade struct {
	Requested   market.Side        `json:"requested"`
	Reversed    bool               `json:"reversed"`
	Transaction market.Transaction `json:"transaction"`
}

type Purge struct {
	Symbol   string         `json:"symbol"`
	Category string         `json:"category"`
	OK       bool           `json:"ok"`
	Removed  []AnomalyState `json:"removed"`
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) State(ctx context.Context) (State, error) {
	var out State
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/state", nil, &out)
	return out, err
}

func (c *Client) Select(ctx context.Context, symbol string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/select", map[string]any{
		"symbol": symbol,
	}, nil)
}

func (c *Client) PlaceOrder(ctx context.Context, symbol string, side market.Side, qty int64) (Trade, error) {
	var out Trade
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/orders", map[string]any{
		"symbol":   symbol,
		"side":     string(side),
		"quantity": qty,
	}, &out)
	return out, err
}

func (c *Client) Purge(ctx context.Context, category string) (Purge, error) {
	var out Purge
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/purge", map[string]any{
		"category": category,
	}, &out)
	return out, err
}

func (c *Client) Restart(ctx context.Context) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/restart", map[string]any{}, nil)
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// APIError carries a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
