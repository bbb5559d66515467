package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbolshakov/gotrial/internal/api"
	"github.com/mbolshakov/gotrial/internal/config"
	"github.com/mbolshakov/gotrial/internal/evaluator"
	"github.com/mbolshakov/gotrial/internal/experiment"
	"github.com/mbolshakov/gotrial/internal/resolver"
	"github.com/mbolshakov/gotrial/internal/store"
	"github.com/mbolshakov/gotrial/internal/telemetry"
	"github.com/mbolshakov/gotrial/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		println("config:", err.Error())
		os.Exit(1)
	}

	log := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	// Experimentation is opt-in: without a table name the service still
	// serves default recommendations, it just never runs experiments.
	var st store.Store
	if cfg.ExperimentationConfigured() {
		st, err = store.NewStore(ctx, cfg.StoreType, cfg.DatabaseDSN, cfg.ExperimentTable)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open experiment store")
		}
		defer st.Close()
	} else {
		log.Warn().Msg("experiment table not configured, serving default resolvers only")
	}

	factory := resolver.NewFactory(resolver.Endpoints{
		CatalogURL:   cfg.CatalogURL,
		SearchURL:    cfg.SearchURL,
		InferenceURL: cfg.InferenceURL,
	})

	var trk tracker.Tracker
	if cfg.EventStreamURL != "" {
		nc, err := tracker.Connect(cfg.EventStreamURL)
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.EventStreamURL).Msg("failed to connect to event stream")
		}
		defer nc.Close()
		stream := tracker.NewStreamTracker(nc, cfg.EventStreamSubject, log)
		defer stream.Close()
		trk = stream
		log.Info().Str("subject", cfg.EventStreamSubject).Msg("exposure tracking enabled")
	}

	var eval evaluator.Evaluator
	if cfg.EvaluatorURL != "" {
		eval = evaluator.NewCached(evaluator.NewClient(cfg.EvaluatorURL), evaluator.DefaultTTL)
		log.Info().Str("url", cfg.EvaluatorURL).Msg("external evaluator enabled")
	}

	manager := experiment.NewManager(experiment.ManagerOptions{
		Store:     st,
		Factory:   factory,
		Tracker:   trk,
		Evaluator: eval,
		Logger:    log,
	})

	srvAPI := api.NewServer(manager, st, factory, cfg.AdminAPIKey, log)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srvAPI.Router(),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: telemetry.Handler()}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctxShut, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShut)
	_ = metricsSrv.Shutdown(ctxShut)
	log.Info().Msg("stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogFormat == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
