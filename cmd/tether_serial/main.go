// tether_serial reads numeric lines from a serial device and republishes
// every value on the bus, the websocket feed and the journal.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/NotCoffee418/tether_serial/pkg/bridge"
	"github.com/NotCoffee418/tether_serial/pkg/config"
	"github.com/NotCoffee418/tether_serial/pkg/metrics"
	"github.com/NotCoffee418/tether_serial/pkg/pathing"
	"github.com/NotCoffee418/tether_serial/pkg/port_reader"
	"github.com/NotCoffee418/tether_serial/pkg/publisher"
	"github.com/NotCoffee418/tether_serial/pkg/valuedb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const appName = "tether_serial"

// Set at build time with -ldflags "-X main.Version=..."
var Version = "dev"

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cli, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	if cli.ShowVersion {
		fmt.Fprintf(stdout, "%s %s\n", appName, Version)
		return exitOK
	}

	cfg, err := loadConfig(cli)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	logger := setupLogger(stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	err = runBridge(ctx, cfg, logger)
	return exitCode(logger, err)
}

func loadConfig(cli *CLIConfig) (*config.BridgeConfig, error) {
	cfg := config.DefaultBridgeConfig()
	if cli.ConfigPath != "" {
		loaded, err := config.LoadBridgeConfig(cli.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cli.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// exitCode maps the loop's terminal error. A stop requested through a
// signal is a clean exit.
func exitCode(logger *slog.Logger, err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logger.Info("Stopped")
		return exitOK
	case errors.Is(err, config.ErrInvalidConfig):
		logger.Error("Invalid configuration", "error", err)
		return exitUsage
	default:
		logger.Error("Bridge terminated", "error", err)
		return exitFailure
	}
}

func runBridge(ctx context.Context, cfg *config.BridgeConfig, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bridgeMetrics := metrics.NewBridgeMetrics()
	if err := bridgeMetrics.Register(registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	sinks := publisher.NewFanout()
	var journal *sql.DB

	if cfg.NatsURL != "" {
		nc, err := publisher.ConnectNats(publisher.NatsOptions{
			URL:           cfg.NatsURL,
			ClientName:    appName + "." + cfg.Destination(),
			PayloadFormat: cfg.PayloadFormat,
		}, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		sinks.Add("nats", nc)
	}

	if cfg.JournalEnabled {
		if cfg.JournalPath == pathing.GetJournalDbPath() {
			if err := pathing.EnsureDataDir(); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}
		}
		db, err := valuedb.InitializeDatabase(cfg.JournalPath)
		if err != nil {
			return err
		}
		defer db.Close()
		journal = db
		sinks.Add("journal", publisher.NewJournalPublisher(db))
		logger.Info("Journaling values", "path", cfg.JournalPath)
	}

	var broadcaster *publisher.Broadcaster
	if cfg.ListenerEnabled() {
		broadcaster = publisher.NewBroadcaster(logger)
		sinks.Add("websocket", broadcaster)
	}

	loop := bridge.NewLoop(
		bridge.SerialOpener(port_reader.PortConfig{
			Device:   cfg.SerialDevice,
			Baudrate: cfg.Baudrate,
			Driver:   cfg.SerialDriver,
		}),
		sinks,
		cfg.Destination(),
		bridge.WithWatchdog(cfg.WatchdogTimeout()),
		bridge.WithReadTimeout(cfg.ReadTimeout()),
		bridge.WithLogger(logger),
		bridge.WithMetrics(bridgeMetrics),
	)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if broadcaster != nil {
		addr := net.JoinHostPort(cfg.ListenAddress, strconv.Itoa(cfg.ListenPort))
		server := &http.Server{
			Addr:              addr,
			Handler:           newMux(broadcaster, registry, loop, journal),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("Serving value feed", "address", addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				cancel(fmt.Errorf("http server: %w", err))
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("HTTP server shutdown failed", "error", err)
			}
		}()
	}

	logger.Info("Starting bridge",
		"device", cfg.SerialDevice,
		"destination", cfg.Destination(),
		"sinks", sinks.Names())

	err := loop.Run(ctx)
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		// The HTTP server failed, not a requested stop
		return cause
	}
	return err
}

// journal may be nil when journaling is disabled.
func newMux(broadcaster *publisher.Broadcaster, registry *prometheus.Registry, loop *bridge.Loop, journal *sql.DB) *http.ServeMux {
	mux := http.NewServeMux()
	broadcaster.Mount(mux)
	if journal != nil {
		mux.HandleFunc("/journal", serveJournal(journal))
	}
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		state := loop.State()
		w.Header().Set("Content-Type", "application/json")
		if state.Terminal() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"state":       state.String(),
			"destination": loop.Destination(),
			"stats":       loop.Stats(),
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"message": "tether_serial",
			"version": Version,
			"status":  "running",
		})
	})
	return mux
}

const maxJournalLimit = 1000

// serveJournal answers with the most recent journaled values, newest first.
// ?limit=N, defaults to 100.
func serveJournal(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		limit := 100
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "limit must be a positive integer",
				})
				return
			}
			limit = min(parsed, maxJournalLimit)
		}

		values, err := valuedb.LatestPublishedValues(r.Context(), db, limit)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{
				"error": err.Error(),
			})
			return
		}
		json.NewEncoder(w).Encode(values)
	}
}
