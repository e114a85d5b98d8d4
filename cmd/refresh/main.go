package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"alphapulse/internal/config"
	cronrunner "alphapulse/internal/cron"
	"alphapulse/internal/db"
	"alphapulse/internal/fetch"
	"alphapulse/internal/handler"
	"alphapulse/internal/klines"
	"alphapulse/internal/logger"
	"alphapulse/internal/pipeline"
	gormrepository "alphapulse/internal/repository/gorm"
	"alphapulse/internal/storage"
	"alphapulse/internal/tournament"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("AP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	envOnly := false
	if envOnlyRaw := os.Getenv("AP_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("config invalid", zap.Error(err))
	}

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.AutoMigrate(dbConn); err != nil {
		log.Fatal("auto-migrate failed", zap.Error(err))
	}

	store, err := storage.NewR2(cfg.R2)
	if err != nil {
		log.Fatal("object store init failed", zap.Error(err))
	}

	repo := gormrepository.New(dbConn.Gorm)
	fetcher := fetch.New(log, cfg.Proxy.WorkerURL)
	series := &klines.Client{
		Fetcher:      fetcher,
		AlphaBaseURL: cfg.Klines.AlphaBaseURL,
		AggBaseURL:   cfg.Klines.AggBaseURL,
		Interval:     cfg.Klines.Interval,
		LimitHours:   cfg.Klines.LimitHours,
		Logger:       log,
	}
	pipe := &pipeline.Pipeline{
		Repo:    repo,
		Series:  series,
		Store:   store,
		Limiter: fetch.NewRateLimiter(1, cfg.Pipeline.RequestInterval),
		Classifier: &tournament.Classifier{
			Logger:       log,
			LookbackDays: cfg.Pipeline.LookbackDays,
		},
		Logger:     log,
		Workers:    cfg.Pipeline.Workers,
		Note:       cfg.Pipeline.Note,
		ActiveKey:  cfg.Pipeline.ActiveKey,
		HistoryKey: cfg.Pipeline.HistoryKey,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.Cron.Enabled {
		if _, err := pipe.Refresh(ctx); err != nil {
			log.Fatal("refresh failed", zap.Error(err))
		}
		return
	}

	status := &handler.StatusHandler{Logger: log, Run: pipe.Refresh}
	runner := cronrunner.New(log, ctx)
	if _, err := runner.Add(cfg.Cron.Refresh, "refresh", func(ctx context.Context) {
		res, err := pipe.Refresh(ctx)
		status.Record(res, err)
		if err != nil {
			log.Error("scheduled refresh failed", zap.Error(err))
		}
	}); err != nil {
		log.Fatal("cron schedule invalid", zap.Error(err))
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	(&handler.HealthHandler{DB: dbConn.Gorm}).Register(engine)
	status.Register(engine)

	srv := &http.Server{Addr: cfg.Server.HTTPAddr, Handler: engine}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	runner.Start()
	log.Info("scheduler running",
		zap.String("spec", cfg.Cron.Refresh),
		zap.String("addr", cfg.Server.HTTPAddr))

	<-ctx.Done()
	runner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
}
