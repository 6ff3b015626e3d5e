package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/campuschapel/attendance-backend/internal/domain"
	"github.com/campuschapel/attendance-backend/internal/platform/envutil"
	"github.com/campuschapel/attendance-backend/internal/platform/logger"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := envutil.String("POSTGRES_HOST", "localhost")
	postgresPort := envutil.String("POSTGRES_PORT", "5432")
	postgresUser := envutil.String("POSTGRES_USER", "postgres")
	postgresPassword := envutil.String("POSTGRES_PASSWORD", "")
	postgresName := envutil.String("POSTGRES_NAME", "attendance")
	postgresSSLMode := envutil.String("POSTGRES_SSLMODE", "disable")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		postgresUser, postgresPassword, postgresHost, postgresPort, postgresName, postgresSSLMode)

	serviceLog.Info("Connecting to Postgres...", "host", postgresHost, "db", postgresName)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		serviceLog.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&domain.Gathering{},
		&domain.Level{},
		&domain.Student{},
		&domain.Exeat{},
		&domain.Upload{},
		&domain.Batch{},
		&domain.Issue{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}
	s.log.Info("Configuring foreign key relationships for postgres tables...")
	for _, fk := range []struct {
		name string
		ddl  string
	}{
		{"fk_student_level_id", `ALTER TABLE "student" ADD CONSTRAINT "fk_student_level_id" FOREIGN KEY ("level_id") REFERENCES "level"("id")`},
		{"fk_exeat_student_id", `ALTER TABLE "exeat" ADD CONSTRAINT "fk_exeat_student_id" FOREIGN KEY ("student_id") REFERENCES "student"("id") ON DELETE CASCADE`},
		{"fk_upload_gathering_id", `ALTER TABLE "upload" ADD CONSTRAINT "fk_upload_gathering_id" FOREIGN KEY ("gathering_id") REFERENCES "gathering"("id") ON DELETE CASCADE`},
		{"fk_upload_level_id", `ALTER TABLE "upload" ADD CONSTRAINT "fk_upload_level_id" FOREIGN KEY ("level_id") REFERENCES "level"("id")`},
		{"fk_batch_upload_id", `ALTER TABLE "batch" ADD CONSTRAINT "fk_batch_upload_id" FOREIGN KEY ("upload_id") REFERENCES "upload"("id") ON DELETE CASCADE`},
		{"fk_issue_batch_id", `ALTER TABLE "issue" ADD CONSTRAINT "fk_issue_batch_id" FOREIGN KEY ("batch_id") REFERENCES "batch"("id") ON DELETE CASCADE`},
		{"fk_issue_student_id", `ALTER TABLE "issue" ADD CONSTRAINT "fk_issue_student_id" FOREIGN KEY ("student_id") REFERENCES "student"("id")`},
	} {
		// AutoMigrateAll runs on every boot; skip constraints that exist.
		stmt := fmt.Sprintf(`DO $$ BEGIN %s; EXCEPTION WHEN duplicate_object THEN NULL; END $$;`, fk.ddl)
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to add %s: %w", fk.name, err)
		}
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
