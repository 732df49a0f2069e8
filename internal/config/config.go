package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"glitchex/internal/anomaly"
	"glitchex/internal/game"
	"glitchex/internal/glitchgen"
	"glitchex/internal/market"
)

type Config struct {
	Addr      string
	TickEvery time.Duration
	Seed      int64

	Symbols            []string
	StartBalanceUnits  int64
	WinBalanceUnits    int64
	HistoryLength      int
	TxLogLength        int
	GracePeriod        time.Duration
	WarningWindow      time.Duration
	SpawnBase          time.Duration
	SpawnJitter        time.Duration
	SpawnJitterFloor   time.Duration
	SpawnRetry         time.Duration
	RequestGap         time.Duration
	StuckTimeout       time.Duration
	OverloadMax        int
	CompromiseHold     time.Duration
	CurrencyDivisor    float64
	CurrencySides      string
	GeneratorURL       string
	GeneratorAPIKey    string
	GeneratorLatency   time.Duration
	GeneratorFailRate  float64
	GeneratorTimeout   time.Duration
	LogLevel           string
	LogFormat          string
	MetricsNamespace   string
	StreamWriteTimeout time.Duration
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadFromEnv() (Config, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("GLITCHEX_ADDR", ":8080")
	}

	cfg := Config{
		Addr:               addr,
		TickEvery:          envDurationDefault("GLITCHEX_TICK_EVERY", 2*time.Second),
		Seed:               envIntDefault("GLITCHEX_SEED", 0),
		Symbols:            envListDefault("GLITCHEX_SYMBOLS", []string{"BTC", "ETH", "SOL", "DOGE"}),
		StartBalanceUnits:  envIntDefault("GLITCHEX_START_BALANCE", 10_000),
		WinBalanceUnits:    envIntDefault("GLITCHEX_WIN_BALANCE", 25_000),
		HistoryLength:      int(envIntDefault("GLITCHEX_HISTORY_LENGTH", 50)),
		TxLogLength:        int(envIntDefault("GLITCHEX_TX_LOG_LENGTH", 50)),
		GracePeriod:        envDurationDefault("GLITCHEX_GRACE_PERIOD", 15*time.Second),
		WarningWindow:      envDurationDefault("GLITCHEX_WARNING_WINDOW", 5*time.Second),
		SpawnBase:          envDurationDefault("GLITCHEX_SPAWN_BASE", 4*time.Second),
		SpawnJitter:        envDurationDefault("GLITCHEX_SPAWN_JITTER", 8*time.Second),
		SpawnJitterFloor:   envDurationDefault("GLITCHEX_SPAWN_JITTER_FLOOR", time.Second),
		SpawnRetry:         envDurationDefault("GLITCHEX_SPAWN_RETRY", time.Second),
		RequestGap:         envDurationDefault("GLITCHEX_REQUEST_GAP", 8*time.Second),
		StuckTimeout:       envDurationDefault("GLITCHEX_STUCK_TIMEOUT", 15*time.Second),
		OverloadMax:        int(envIntDefault("GLITCHEX_OVERLOAD_MAX", 6)),
		CompromiseHold:     envDurationDefault("GLITCHEX_COMPROMISE_HOLD", 10*time.Second),
		CurrencyDivisor:    envFloatDefault("GLITCHEX_CURRENCY_DIVISOR", 100),
		CurrencySides:      envCurrencySidesDefault(),
		GeneratorURL:       strings.TrimRight(strings.TrimSpace(os.Getenv("GLITCHEX_GENERATOR_URL")), "/"),
		GeneratorAPIKey:    strings.TrimSpace(os.Getenv("GLITCHEX_GENERATOR_API_KEY")),
		GeneratorLatency:   envDurationDefault("GLITCHEX_GENERATOR_LATENCY", 1500*time.Millisecond),
		GeneratorFailRate:  envFloatDefault("GLITCHEX_GENERATOR_FAIL_RATE", 0.05),
		GeneratorTimeout:   envDurationDefault("GLITCHEX_GENERATOR_TIMEOUT", 20*time.Second),
		LogLevel:           strings.ToLower(envDefault("GLITCHEX_LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(envDefault("GLITCHEX_LOG_FORMAT", "json")),
		MetricsNamespace:   envDefault("GLITCHEX_METRICS_NAMESPACE", "glitchex"),
		StreamWriteTimeout: envDurationDefault("GLITCHEX_STREAM_WRITE_TIMEOUT", 5*time.Second),
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("GLITCHEX_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

// Validate reports every semantic problem at once.
func (c Config) Validate() error {
	var errs []error
	if len(c.Symbols) == 0 {
		errs = append(errs, errors.New("GLITCHEX_SYMBOLS must name at least one asset"))
	}
	seen := make(map[string]bool, len(c.Symbols))
	for _, sym := range c.Symbols {
		if err := market.ValidateSymbol(sym); err != nil {
			errs = append(errs, fmt.Errorf("GLITCHEX_SYMBOLS: %w", err))
			continue
		}
		if seen[sym] {
			errs = append(errs, fmt.Errorf("GLITCHEX_SYMBOLS: duplicate %s", sym))
		}
		seen[sym] = true
	}
	if c.StartBalanceUnits <= 0 {
		errs = append(errs, errors.New("GLITCHEX_START_BALANCE must be positive"))
	}
	if c.WinBalanceUnits <= c.StartBalanceUnits {
		errs = append(errs, errors.New("GLITCHEX_WIN_BALANCE must exceed GLITCHEX_START_BALANCE"))
	}
	if c.HistoryLength < 1 || c.TxLogLength < 1 {
		errs = append(errs, errors.New("history and transaction log lengths must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"GLITCHEX_TICK_EVERY":      c.TickEvery,
		"GLITCHEX_SPAWN_BASE":      c.SpawnBase,
		"GLITCHEX_SPAWN_RETRY":     c.SpawnRetry,
		"GLITCHEX_REQUEST_GAP":     c.RequestGap,
		"GLITCHEX_STUCK_TIMEOUT":   c.StuckTimeout,
		"GLITCHEX_COMPROMISE_HOLD": c.CompromiseHold,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.GracePeriod < 0 || c.WarningWindow < 0 || c.SpawnJitter < 0 || c.SpawnJitterFloor < 0 {
		errs = append(errs, errors.New("grace, warning and jitter durations must not be negative"))
	}
	if c.GracePeriod > 0 && c.WarningWindow >= c.GracePeriod {
		errs = append(errs, errors.New("GLITCHEX_WARNING_WINDOW must be shorter than GLITCHEX_GRACE_PERIOD"))
	}
	if capacity := len(c.Symbols) * len(anomaly.Slots); c.OverloadMax < 1 || c.OverloadMax > capacity {
		errs = append(errs, fmt.Errorf("GLITCHEX_OVERLOAD_MAX must be within 1..%d", capacity))
	}
	if c.CurrencyDivisor <= 0 {
		errs = append(errs, errors.New("GLITCHEX_CURRENCY_DIVISOR must be positive"))
	}
	if c.GeneratorFailRate < 0 || c.GeneratorFailRate > 1 {
		errs = append(errs, errors.New("GLITCHEX_GENERATOR_FAIL_RATE must be within 0..1"))
	}
	return errors.Join(errs...)
}

// Game converts the environment view into the simulation configuration.
func (c Config) Game() game.Config {
	out := game.DefaultConfig()

	out.Market.Assets = market.DefaultAssets(c.Symbols...)
	out.Market.StartBalanceMicros = c.StartBalanceUnits * market.MicrosPerUnit
	out.Market.HistoryLength = c.HistoryLength
	out.Market.TxLogLength = c.TxLogLength

	out.Anomaly.RequestGap = c.RequestGap
	out.Anomaly.StuckTimeout = c.StuckTimeout
	out.Anomaly.Currency = CurrencyPolicy(c.CurrencyDivisor, c.CurrencySides)

	out.Director.GracePeriod = c.GracePeriod
	out.Director.WarningWindow = c.WarningWindow
	out.Director.SpawnBase = c.SpawnBase
	out.Director.SpawnJitter = c.SpawnJitter
	out.Director.SpawnJitterFloor = c.SpawnJitterFloor
	out.Director.SpawnRetry = c.SpawnRetry
	out.Director.OverloadMax = c.OverloadMax
	out.Director.CompromiseHold = c.CompromiseHold
	out.Director.WinBalanceMicros = c.WinBalanceUnits * market.MicrosPerUnit
	return out
}

// Generator picks the remote generator when a URL is configured and the
// in-process catalog generator otherwise.
func (c Config) Generator(logger *slog.Logger) anomaly.Generator {
	if c.GeneratorURL != "" {
		return glitchgen.NewRemote(c.GeneratorURL, c.GeneratorAPIKey, c.GeneratorTimeout)
	}
	return glitchgen.NewLocal(glitchgen.LocalConfig{
		Latency:  c.GeneratorLatency,
		FailRate: c.GeneratorFailRate,
	}, c.Seed, logger)
}

func CurrencyPolicy(divisor float64, sides string) anomaly.CurrencyPolicy {
	p := anomaly.CurrencyPolicy{Divisor: divisor}
	switch sides {
	case "buy":
		p.Buy = true
	case "sell":
		p.Sell = true
	default:
		p.Buy, p.Sell = true, true
	}
	return p
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envIntDefault(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envListDefault(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = market.NormalizeSymbol(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func envCurrencySidesDefault() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("GLITCHEX_CURRENCY_SIDES")))
	switch v {
	case "both", "buy", "sell":
		return v
	default:
		return "both"
	}
}
