package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"glitchex/internal/anomaly"
	"glitchex/internal/game"
	"glitchex/internal/market"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Options struct {
	// Metrics is mounted at /metrics when set.
	Metrics            http.Handler
	StreamWriteTimeout time.Duration
	StreamBuffer       int
}

type Server struct {
	runner *game.Runner
	log    *slog.Logger
	opts   Options
	mux    *chi.Mux
}

func New(runner *game.Runner, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.StreamWriteTimeout <= 0 {
		opts.StreamWriteTimeout = 5 * time.Second
	}
	if opts.StreamBuffer <= 0 {
		opts.StreamBuffer = 8
	}
	s := &Server{
		runner: runner,
		log:    logger,
		opts:   opts,
		mux:    chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		// The stream outlives any request timeout.
		r.Get("/stream", s.handleStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/state", s.handleState)
			r.Post("/select", s.handleSelect)
			r.Post("/orders", s.handleOrder)
			r.Post("/purge", s.handlePurge)
			r.Post("/restart", s.handleRestart)
		})
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.runner.Snapshot(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Symbol string `json:"symbol"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.runner.Select(r.Context(), in.Symbol); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "selected": market.NormalizeSymbol(in.Symbol)})
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Symbol   string `json:"symbol"`
		Side     string `json:"side"`
		Quantity int64  `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		res game.TradeResult
		err error
	)
	switch market.Side(strings.ToUpper(strings.TrimSpace(in.Side))) {
	case market.SideBuy:
		res, err = s.runner.Buy(r.Context(), in.Symbol, in.Quantity)
	case market.SideSell:
		res, err = s.runner.Sell(r.Context(), in.Symbol, in.Quantity)
	default:
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.log.Info("order filled",
		"request_id", middleware.GetReqID(r.Context()),
		"requested", string(res.Requested),
		"executed", string(res.Transaction.Side),
		"symbol", res.Transaction.Symbol,
		"quantity", res.Transaction.Quantity,
	)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Category string `json:"category"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.runner.Purge(r.Context(), in.Category)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if err := s.runner.Restart(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleStream pushes the current snapshot and then every broadcast frame
// until the client goes away or the runner stops.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	updates, unsubscribe := s.runner.Subscribe(s.opts.StreamBuffer)
	defer unsubscribe()

	first, err := s.runner.Snapshot(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("stream upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.writeFrame(conn, first); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-s.runner.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "runner stopped"),
				time.Now().Add(time.Second))
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := s.writeFrame(conn, snap); err != nil {
				s.log.Debug("stream write failed", "err", err)
				return
			}
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, snap game.Snapshot) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.opts.StreamWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(snap)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, market.ErrInsufficientFunds), errors.Is(err, market.ErrInsufficientHoldings):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, market.ErrInvalidSymbol), errors.Is(err, market.ErrInvalidQuantity),
		errors.Is(err, market.ErrInvalidMultiplier), errors.Is(err, anomaly.ErrUnknownCategory):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, market.ErrUnknownSymbol):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrGameOver), errors.Is(err, market.ErrStopped):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrRunnerStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
