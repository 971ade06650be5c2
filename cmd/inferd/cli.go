package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"inferd/internal/config"
	"inferd/internal/gpu"
	"inferd/internal/httpapi"
	"inferd/internal/manager"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// buildRootCmd constructs the command tree: serve (the daemon) and
// validate (config check only).
func buildRootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		logLevel   string
	)

	root := &cobra.Command{
		Use:           "inferd",
		Short:         "GPU-aware reverse proxy for LLM inference backends",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", envOr("INFERD_CONFIG", "inferd.yaml"), "Path to config file (.yaml, .json or .toml)")
	root.PersistentFlags().StringVar(&addr, "addr", envOr("INFERD_ADDR", ""), "HTTP listen address, overrides config")
	root.PersistentFlags().StringVar(&logLevel, "log-level", envOr("INFERD_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Load config and run the proxy daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, addr, logLevel)
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("ok: %d GPUs, %d models, listen %s\n", len(cfg.GPUs), len(cfg.Models), cfg.Addr)
			return nil
		},
	}

	root.AddCommand(serve, validate)
	return root
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	var out io.Writer = os.Stderr
	if fi, err := os.Stderr.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func runServe(configPath, addr, logLevel string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
	}
	log := newLogger(logLevel)

	// Base context canceled on SIGINT/SIGTERM. Everything that outlives a
	// single request hangs off it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gpuIDs := make([]string, 0, len(cfg.GPUs))
	for _, g := range cfg.GPUs {
		gpuIDs = append(gpuIDs, g.ID)
	}
	var querier gpu.Querier = gpu.NewNvidiaSMIQuerier(gpuIDs)
	if os.Getenv("INFERD_FAKE_GPU") != "" {
		// Development hosts without nvidia-smi.
		querier = gpu.NewStaticQuerier(gpuIDs)
	}
	mon := gpu.NewMonitor(cfg.GPUs, querier, cfg.Tuning.PollInterval.Std(), log)
	go mon.Run(ctx)

	mgr := manager.New(cfg, mon,
		manager.WithLogger(log),
		manager.WithPublisher(&manager.LogPublisher{Log: log}),
	)
	go mgr.Run(ctx)

	httpapi.SetLogger(log)
	httpapi.SetBaseContext(ctx)
	httpapi.SetAcquireWait(cfg.Tuning.StartTimeout.Std())
	httpapi.SetRequestTimeout(cfg.Tuning.RequestTimeout.Std())

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(mgr)}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Int("models", len(cfg.Models)).Int("gpus", len(cfg.GPUs)).Msg("inferd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown")
	}
	// Manager.Run observed ctx.Done and is draining backends; Close is
	// idempotent and waits for nothing beyond the drain timeout.
	mgr.Close()
	return nil
}
