package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"digest_server/config"
	"digest_server/internal/bootstrap"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env file if exists (for local development)
	_ = godotenv.Load()

	mode := flag.String("mode", "all", "Run mode: api, scheduler, all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := newLogger(cfg)

	deps, cleanup, err := bootstrap.NewDependencies(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize dependencies")
	}
	defer cleanup()

	switch *mode {
	case "api":
		runAPI(cfg, deps, log)
	case "scheduler":
		runScheduler(cfg, deps, log)
	case "all":
		go runScheduler(cfg, deps, log)
		runAPI(cfg, deps, log)
	default:
		log.Fatal().Str("mode", *mode).Msg("unknown mode")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.IsDevelopment() {
		level = zerolog.DebugLevel
	}

	var out zerolog.LevelWriter = zerolog.MultiLevelWriter(os.Stdout)
	if cfg.IsDevelopment() {
		out = zerolog.MultiLevelWriter(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	return zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", "digest_server").
		Logger()
}

func runAPI(cfg *config.Config, deps *bootstrap.Dependencies, log zerolog.Logger) {
	app := bootstrap.NewAPI(cfg, deps, log)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Dur("timeout", shutdownTimeout).Msg("shutting down API server")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- app.Shutdown()
		}()

		select {
		case err := <-done:
			if err != nil {
				log.Error().Err(err).Msg("error shutting down")
			} else {
				log.Info().Msg("API server shut down gracefully")
			}
		case <-ctx.Done():
			log.Warn().Msg("API shutdown timed out, forcing exit")
		}
	}()

	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Msg("starting API server")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}

func runScheduler(cfg *config.Config, deps *bootstrap.Dependencies, log zerolog.Logger) {
	if !cfg.SchedulerEnabled {
		log.Info().Msg("scheduler disabled")
		return
	}

	deps.Scheduler.Start()
	log.Info().Msg("scheduler started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down scheduler")
	deps.Scheduler.Stop()
}
