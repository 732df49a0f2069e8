package glitchgen

import (
	"context"
	"errors"
	"log/slog"
	mathrand "math/rand"
	"sync"
	"time"

	"glitchex/internal/anomaly"

	"github.com/google/uuid"
)

var ErrBackendUnavailable = errors.New("generation backend unavailable")

type LocalConfig struct {
	// Latency is the mean simulated generation delay; actual delays vary
	// uniformly between half and one and a half times this value.
	Latency  time.Duration
	FailRate float64
}

// Local builds descriptors from the built-in catalog. It stands in for a
// remote generator and reproduces its latency and occasional failures.
type Local struct {
	cfg LocalConfig
	log *slog.Logger

	mu   sync.Mutex
	rand *mathrand.Rand
}

func NewLocal(cfg LocalConfig, seed int64, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Local{
		cfg:  cfg,
		log:  logger,
		rand: mathrand.New(mathrand.NewSource(seed)),
	}
}

func (g *Local) Generate(ctx context.Context, req anomaly.Request) (anomaly.Descriptor, error) {
	if g.cfg.Latency > 0 {
		d := time.Duration(float64(g.cfg.Latency) * (0.5 + g.nextFloat()))
		if err := sleepWithContext(ctx, d); err != nil {
			return nil, err
		}
	}
	if g.cfg.FailRate > 0 && g.nextFloat() < g.cfg.FailRate {
		g.log.Debug("local generator simulated failure", "token", req.Token)
		return nil, ErrBackendUnavailable
	}
	if _, err := anomaly.Lookup(req.Slot, req.Variant); err != nil {
		return nil, err
	}
	return Control{
		ID:        uuid.NewString(),
		Asset:     req.Symbol,
		Target:    req.Slot,
		Kind:      req.Variant,
		Component: ComponentName(req.Slot, req.Variant),
		Label:     label(req.Slot, req.Variant, req.Symbol, g.nextIntn),
		Props:     props(req.Slot, req.Variant),
	}, nil
}

func (g *Local) nextFloat() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rand.Float64()
}

func (g *Local) nextIntn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rand.Intn(n)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
