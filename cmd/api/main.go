package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gatehouse.org/internal/alert"
	"gatehouse.org/internal/audit"
	"gatehouse.org/internal/config"
	"gatehouse.org/internal/httpapi"
	"gatehouse.org/internal/obs"
	"gatehouse.org/internal/policy"
	"gatehouse.org/internal/principal"
	"gatehouse.org/internal/scope"
	"gatehouse.org/internal/session"
	"gatehouse.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", os.Getenv("GATEHOUSE_CONFIG"), "Path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logger is not configured yet; stderr is all we have.
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	obs.InitLogger(cfg.App.Env, cfg.App.LogLevel)
	obs.Init()
	obs.InitBuildInfo(version, commit)
	logger := obs.Logger()

	db, err := pg.Open(cfg.DB.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.Ping(ctx); err != nil {
		cancel()
		logger.Fatal().Err(err).Msg("database unreachable")
	}
	cancel()

	rules, err := policy.LoadRules(cfg.Policy.RulesFile)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.Policy.RulesFile).Msg("load access rules")
	}
	engine, err := policy.NewEngine(rules)
	if err != nil {
		// A broken rule table must never fall back to permissive defaults.
		logger.Fatal().Err(err).Msg("compile access rules")
	}

	broadcaster := alert.NewBroadcaster()
	recorder := audit.NewRecorder(audit.NewPGStore(db.DB()),
		audit.WithBroadcaster(broadcaster),
		audit.WithAlertThreshold(cfg.Risk.AlertThreshold),
		audit.WithQueueSize(cfg.Risk.QueueSize),
	)

	principals := principal.NewPGStore(db.DB())
	sessions, err := session.NewManager(principals, session.NewPGStore(db.DB()),
		cfg.Session.TokenSecret,
		session.WithAccessTTL(cfg.Session.AccessTTL),
		session.WithRefreshTTL(cfg.Session.RefreshTTL),
		session.WithLifetimeCap(cfg.Session.LifetimeCap),
		session.WithInactivityTimeout(cfg.Session.InactivityTimeout),
		session.WithRateLimit(cfg.Session.LoginBurst, cfg.Session.LoginWindow),
		session.WithAuditor(recorder),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("session manager")
	}

	api := httpapi.New(httpapi.Options{
		Ready:        httpapi.ReadyProbe{DB: db.DB()},
		Version:      version,
		Sessions:     sessions,
		Principals:   principals,
		Policy:       engine,
		Entities:     scope.NewStore(db.DB()),
		Auditor:      recorder,
		Alerts:       broadcaster,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		RateBurst:    cfg.HTTP.RateBurst,
		RatePerSec:   cfg.HTTP.RatePerSec,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go sessions.RunSweeper(sweepCtx, time.Minute)

	logger.Info().Str("version", version).Str("addr", srv.Addr).Msg("starting gatehouse-api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info().Msg("shutting down")
	obs.SetReady(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	_ = srv.Shutdown(shutdownCtx)
	stopSweeper()
	recorder.Close()
	_ = db.Close()
	logger.Info().Msg("stopped")
}
