package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/campuschapel/attendance-backend/internal/db"
	"github.com/campuschapel/attendance-backend/internal/modules/attendance"
	"github.com/campuschapel/attendance-backend/internal/observability"
	"github.com/campuschapel/attendance-backend/internal/platform/gcs"
	"github.com/campuschapel/attendance-backend/internal/platform/locks"
	"github.com/campuschapel/attendance-backend/internal/platform/logger"
)

const observabilityShutdownTimeout = 5 * time.Second

// App wires the ingestion engine and everything under it. Transport is
// out of scope here; callers (the CLIs, or an HTTP layer built on top)
// drive Attendance directly.
type App struct {
	Log        *logger.Logger
	DB         *gorm.DB
	Cfg        Config
	Repos      Repos
	Bucket     gcs.BucketService
	Locker     locks.IngestLocker
	Attendance attendance.Engine

	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	return NewWithConfigFile("")
}

// NewWithConfigFile boots the app with an optional YAML overlay on top of
// the env-derived config.
func NewWithConfigFile(configFile string) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	if configFile != "" {
		if err := cfg.ApplyOverlay(configFile); err != nil {
			log.Sync()
			return nil, err
		}
		log.Info("Config overlay applied", "file", configFile)
	}

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Version:     cfg.ServiceVersion,
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	reposet := wireRepos(theDB, log)

	bucket, err := gcs.NewBucketService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	locker, err := locks.NewIngestLocker(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init ingest locker: %w", err)
	}

	engine := attendance.New(attendance.UsecasesDeps{
		DB:         theDB,
		Log:        log,
		Gatherings: reposet.Gathering,
		Levels:     reposet.Level,
		Students:   reposet.Student,
		Exeats:     reposet.Exeat,
		Uploads:    reposet.Upload,
		Batches:    reposet.Batch,
		Issues:     reposet.Issue,
		Bucket:     bucket,
		Locker:     locker,
		Config: attendance.Config{
			LockGatheringOnCommit:  cfg.LockGatheringOnCommit,
			RejectLockedGatherings: cfg.RejectLockedGatherings,
			MaxUploadBytes:         cfg.MaxUploadBytes,
			IngestLockTTL:          cfg.IngestLockTTL,
			CommitMaxAttempts:      cfg.CommitMaxAttempts,
		},
	})

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Bucket:       bucket,
		Locker:       locker,
		Attendance:   engine,
		otelShutdown: otelShutdown,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), observabilityShutdownTimeout)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil && a.Log != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
