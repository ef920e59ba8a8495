package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ollama-exporter/internal/common/fsutil"
	"ollama-exporter/internal/config"
	"ollama-exporter/internal/httpapi"
	"ollama-exporter/internal/metrics"
	"ollama-exporter/internal/ollama"
	"ollama-exporter/internal/scrape"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	var (
		cfgPath  string
		validate bool
	)
	cmd := &cobra.Command{
		Use:           "ollama-exporter",
		Short:         "Prometheus exporter for a local Ollama server",
		Long: "ollama-exporter polls an Ollama server's REST API on a fixed interval and\n" +
			"exposes its state (liveness, installed models, loaded models and their VRAM\n" +
			"usage) as Prometheus metrics on /metrics, with a liveness probe on /health.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, cfgPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, validate)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfgPath, "config", "", "Optional config file (.yaml, .json or .toml)")
	f.BoolVar(&validate, "validate", false, "Probe the Ollama server once and exit 0/1")
	f.Int("port", config.DefaultPort, "HTTP listen port (defaults PORT)")
	f.Int("interval", config.DefaultInterval, "Seconds between scrape cycles (defaults INTERVAL)")
	f.String("ollama-host", config.DefaultOllamaHost, "Ollama server host:port (defaults OLLAMA_HOST)")
	f.Int("api-timeout", config.DefaultAPITimeout, "Per-request upstream timeout in seconds (defaults API_TIMEOUT)")
	f.String("log-level", config.DefaultLogLevel, "Log level: DEBUG|INFO|WARNING|ERROR (defaults LOG_LEVEL)")
	f.Bool("enable-cors", false, "Enable CORS on the HTTP surface")
	f.StringSlice("cors-origins", nil, "Allowed CORS origins (implies permissive \"*\" when empty)")
	return cmd
}

// resolveConfig merges the four configuration sources. Precedence, lowest
// first: file, environment, flags explicitly set on the command line,
// then defaults for anything still unset.
func resolveConfig(cmd *cobra.Command, path string) (config.Config, error) {
	var cfg config.Config
	if path != "" {
		expanded, err := fsutil.ExpandHome(path)
		if err != nil {
			return cfg, err
		}
		if !fsutil.PathExists(expanded) {
			return cfg, fmt.Errorf("config file not found: %s", expanded)
		}
		c, err := config.Load(expanded)
		if err != nil {
			return cfg, fmt.Errorf("load config %s: %w", expanded, err)
		}
		cfg = c
	}
	cfg.ApplyEnv()

	f := cmd.Flags()
	if f.Changed("port") {
		cfg.Port, _ = f.GetInt("port")
	}
	if f.Changed("interval") {
		cfg.Interval, _ = f.GetInt("interval")
	}
	if f.Changed("ollama-host") {
		cfg.OllamaHost, _ = f.GetString("ollama-host")
	}
	if f.Changed("api-timeout") {
		cfg.APITimeout, _ = f.GetInt("api-timeout")
	}
	if f.Changed("log-level") {
		cfg.LogLevel, _ = f.GetString("log-level")
	}
	if f.Changed("enable-cors") {
		cfg.EnableCORS, _ = f.GetBool("enable-cors")
	}
	if f.Changed("cors-origins") {
		cfg.CORSOrigins, _ = f.GetStringSlice("cors-origins")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config, validateOnly bool) error {
	lvl, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(lvl)

	client := ollama.New(cfg.OllamaHost, time.Duration(cfg.APITimeout)*time.Second, log)

	if validateOnly {
		v, err := client.Version(ctx)
		if err != nil {
			log.Error().Err(err).Str("ollama_host", cfg.OllamaHost).Msg("validation failed")
			return fmt.Errorf("ollama server unreachable: %w", err)
		}
		log.Info().Str("ollama_host", cfg.OllamaHost).Str("server_version", v).Msg("validation ok")
		return nil
	}

	m := metrics.New(version, cfg.OllamaHost)
	engine := scrape.NewEngine(client, m, log)
	sched := scrape.NewScheduler(engine, time.Duration(cfg.Interval)*time.Second, log)

	scrapeCtx, stopScrapes := context.WithCancel(context.Background())
	defer stopScrapes()
	go sched.Run(scrapeCtx)

	var shuttingDown atomic.Bool
	mux := httpapi.NewMux(httpapi.Options{
		Metrics:      m,
		OllamaHost:   cfg.OllamaHost,
		ShuttingDown: shuttingDown.Load,
		Log:          log,
		EnableCORS:   cfg.EnableCORS,
		CORSOrigins:  cfg.CORSOrigins,
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("ollama_host", cfg.OllamaHost).
			Str("version", version).
			Msg("exporter listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shuttingDown.Store(true)
	stopScrapes()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
		return err
	}
	return nil
}
