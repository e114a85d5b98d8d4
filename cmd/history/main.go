package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"alphapulse/internal/config"
	"alphapulse/internal/db"
	"alphapulse/internal/logger"
	"alphapulse/internal/pipeline"
	gormrepository "alphapulse/internal/repository/gorm"
	"alphapulse/internal/storage"
	"alphapulse/internal/tournament"
)

// One-shot history migration: scans the full record set for finalized
// tournaments and overwrites the finalized-history snapshot.
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

	store, err := storage.NewR2(cfg.R2)
	if err != nil {
		log.Fatal("object store init failed", zap.Error(err))
	}

	pipe := &pipeline.Pipeline{
		Repo:       gormrepository.New(dbConn.Gorm),
		Store:      store,
		Classifier: &tournament.Classifier{Logger: log},
		Logger:     log,
		HistoryKey: cfg.Pipeline.HistoryKey,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := pipe.MigrateHistory(ctx); err != nil {
		log.Fatal("history migration failed", zap.Error(err))
	}
}
