package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"glitchex/internal/api"
	cl "glitchex/internal/cli"
	"glitchex/internal/config"
	"glitchex/internal/game"
	"glitchex/internal/market"
	"glitchex/internal/observability"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	cliCfg := config.LoadCLIFromEnv()
	apiBase := cliCfg.APIBaseURL

	root := &cobra.Command{
		Use:          "glitchex",
		Short:        "Glitch exchange trading game",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL for remote commands")

	root.AddCommand(
		newServeCmd(),
		newPlayCmd(),
		newSimCmd(),
		newStateCmd(&apiBase),
		newOrderCmd(&apiBase, market.SideBuy),
		newOrderCmd(&apiBase, market.SideSell),
		newSelectCmd(&apiBase),
		newPurgeCmd(&apiBase),
		newRestartCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func seedOrNow(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return time.Now().UnixNano()
}

func newSession(cfg config.Config, logger *slog.Logger, metrics game.Metrics) (*game.Session, error) {
	rng := rand.New(rand.NewSource(seedOrNow(cfg.Seed)))
	return game.NewSession(cfg.Game(), cfg.Generator(logger), rng, logger, metrics)
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation with the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if addr != "" {
				cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := newLogger(cfg, os.Stdout)
			metrics := observability.NewMetrics(cfg.MetricsNamespace)
			sess, err := newSession(cfg, logger, metrics)
			if err != nil {
				return err
			}
			runner := game.NewRunner(sess, cfg.TickEvery, logger)
			server := api.New(runner, logger, api.Options{
				Metrics:            metrics.Handler(),
				StreamWriteTimeout: cfg.StreamWriteTimeout,
			})
			httpServer := &http.Server{
				Addr:              cfg.Addr,
				Handler:           server.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return runner.Run(gctx)
			})
			g.Go(func() error {
				logger.Info("glitchex api listening", "addr", cfg.Addr, "symbols", strings.Join(cfg.Symbols, ","))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				logger.Info("shutting down")
				return httpServer.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides GLITCHEX_ADDR)")
	return cmd
}

func newSimCmd() *cobra.Command {
	var (
		seed     int64
		maxTicks int
		accuracy float64
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Play one headless game with a naive bot on a virtual clock",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if seed != 0 {
				cfg.Seed = seed
			}
			// The virtual clock outruns any simulated generation delay.
			cfg.GeneratorLatency = 0
			logger := newLogger(cfg, os.Stderr)
			sess, err := newSession(cfg, logger, nil)
			if err != nil {
				return err
			}

			opts := game.DefaultSimOptions()
			opts.TickEvery = cfg.TickEvery
			opts.MaxTicks = maxTicks
			opts.PurgeAccuracy = accuracy
			rep, err := game.Simulate(cmd.Context(), sess, rand.New(rand.NewSource(seedOrNow(cfg.Seed)+1)), opts)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			renderSimReport(rep, cfg.StartBalanceUnits*market.MicrosPerUnit)
			return nil
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (overrides GLITCHEX_SEED)")
	cmd.Flags().IntVar(&maxTicks, "max-ticks", game.DefaultSimOptions().MaxTicks, "stop after this many ticks")
	cmd.Flags().Float64Var(&accuracy, "purge-accuracy", game.DefaultSimOptions().PurgeAccuracy, "chance the bot purges the right category")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func newStateCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the running game",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			st, err := newClient(apiBase).State(ctx)
			if err != nil {
				return err
			}
			renderState(st)
			return nil
		},
	}
}

func newOrderCmd(apiBase *string, side market.Side) *cobra.Command {
	verb := strings.ToLower(string(side))
	return &cobra.Command{
		Use:   verb + " [symbol] [quantity]",
		Short: "Place a " + verb + " order",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, err := symbolFromArgsOrPrompt(args)
			if err != nil {
				return err
			}
			var qty int64
			if len(args) > 1 {
				qty, err = strconv.ParseInt(strings.TrimSpace(args[1]), 10, 64)
				if err != nil || qty < 1 {
					return fmt.Errorf("quantity must be a whole number > 0")
				}
			} else {
				qty, err = promptInt64("Quantity to "+verb, 1)
				if err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).PlaceOrder(ctx, symbol, side, qty)
			if err != nil {
				return err
			}
			renderTrade(out)
			return nil
		},
	}
}

func newSelectCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "select [symbol]",
		Short: "Select the asset purge commands target",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, err := symbolFromArgsOrPrompt(args)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := newClient(apiBase).Select(ctx, symbol); err != nil {
				return err
			}
			printSuccess("Selected " + symbol + ".")
			return nil
		},
	}
}

func newPurgeCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "purge [button|chart]",
		Short: "Purge anomalies of a category on the selected asset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category := ""
			if len(args) == 1 {
				category = strings.ToLower(strings.TrimSpace(args[0]))
			} else {
				var err error
				category, err = promptChoice("Category", []string{"button", "chart"}, "button")
				if err != nil {
					return err
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Purge(ctx, category)
			if err != nil {
				return err
			}
			renderPurge(out)
			return nil
		},
	}
}

func newRestartCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Start a fresh game on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := newClient(apiBase).Restart(ctx); err != nil {
				return err
			}
			printSuccess("Game restarted.")
			return nil
		},
	}
}

func symbolFromArgsOrPrompt(args []string) (string, error) {
	if len(args) > 0 {
		symbol := market.NormalizeSymbol(args[0])
		if err := market.ValidateSymbol(symbol); err != nil {
			return "", err
		}
		return symbol, nil
	}
	return promptSymbol("Symbol")
}
