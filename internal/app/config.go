package app

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/campuschapel/attendance-backend/internal/platform/envutil"
	"github.com/campuschapel/attendance-backend/internal/platform/logger"
)

// Config is built from env vars first; a YAML overlay file may replace
// individual fields (keys absent from the file keep their env values).
type Config struct {
	Env            string `yaml:"env" validate:"oneof=development production"`
	ServiceName    string `yaml:"service_name" validate:"required"`
	ServiceVersion string `yaml:"service_version"`

	LockGatheringOnCommit  bool `yaml:"lock_gathering_on_commit"`
	RejectLockedGatherings bool `yaml:"reject_locked_gatherings"`

	MaxUploadBytes    int64         `yaml:"max_upload_bytes" validate:"min=1"`
	IngestLockTTL     time.Duration `yaml:"ingest_lock_ttl" validate:"min=1s"`
	CommitMaxAttempts int           `yaml:"commit_max_attempts" validate:"min=1,max=10"`
}

func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		Env:            envutil.String("APP_ENV", "development"),
		ServiceName:    envutil.String("SERVICE_NAME", "attendance-backend"),
		ServiceVersion: envutil.String("SERVICE_VERSION", ""),

		LockGatheringOnCommit:  envutil.Bool("ATTENDANCE_LOCK_ON_COMMIT", true),
		RejectLockedGatherings: envutil.Bool("ATTENDANCE_REJECT_LOCKED", true),

		MaxUploadBytes:    int64(envutil.Int("ATTENDANCE_MAX_UPLOAD_BYTES", 10<<20)),
		IngestLockTTL:     envutil.Duration("ATTENDANCE_INGEST_LOCK_TTL", 2*time.Minute),
		CommitMaxAttempts: envutil.Int("ATTENDANCE_COMMIT_MAX_ATTEMPTS", 3),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	log.Info("Config loaded",
		"env", cfg.Env,
		"lock_on_commit", cfg.LockGatheringOnCommit,
		"reject_locked", cfg.RejectLockedGatherings,
		"max_upload_bytes", cfg.MaxUploadBytes,
	)
	return cfg, nil
}

// ApplyOverlay merges a YAML config file over the current values and
// re-validates. The CLIs pass the -config flag through here.
func (c *Config) ApplyOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config overlay %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config overlay %q: %w", path, err)
	}
	return c.Validate()
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
