package glitchgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"glitchex/internal/anomaly"

	"github.com/google/uuid"
)

// Remote asks an HTTP generation service for descriptors.
//
//	POST {base}/v1/controls  {"request_id", "symbol", "slot", "variant", "severity"}
//	200 -> Control
type Remote struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type controlRequest struct {
	RequestID string           `json:"request_id"`
	Symbol    string           `json:"symbol"`
	Slot      anomaly.Slot     `json:"slot"`
	Variant   anomaly.Variant  `json:"variant"`
	Severity  anomaly.Severity `json:"severity"`
}

func NewRemote(baseURL, apiKey string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (r *Remote) Generate(ctx context.Context, req anomaly.Request) (anomaly.Descriptor, error) {
	payload := controlRequest{
		RequestID: uuid.NewString(),
		Symbol:    req.Symbol,
		Slot:      req.Slot,
		Variant:   req.Variant,
		Severity:  req.Severity,
	}
	var out Control
	if err := r.postJSON(ctx, "/v1/controls", payload, &out); err != nil {
		return nil, err
	}
	if out.Component == "" {
		out.Component = ComponentName(out.Target, out.Kind)
	}
	return out, nil
}

func (r *Remote) postJSON(ctx context.Context, path string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("generator request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("generator status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
