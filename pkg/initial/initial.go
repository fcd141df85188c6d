package initial

import (
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"lms-backend/pkg/config"
	"lms-backend/pkg/models"
)

// enumDDL creates the Postgres enum types used by the model column types.
const enumDDL = `
	DO $$ BEGIN
		CREATE TYPE user_role AS ENUM ('admin', 'employee', 'hr', 'resource_personnel');
	EXCEPTION
		WHEN duplicate_object THEN null;
	END $$;

	DO $$ BEGIN
		CREATE TYPE course_status AS ENUM ('draft', 'under_review', 'approved', 'published', 'archived');
	EXCEPTION
		WHEN duplicate_object THEN null;
	END $$;

	DO $$ BEGIN
		CREATE TYPE difficulty_level AS ENUM ('beginner', 'intermediate', 'advanced');
	EXCEPTION
		WHEN duplicate_object THEN null;
	END $$;

	DO $$ BEGIN
		CREATE TYPE content_type AS ENUM ('video', 'document', 'quiz', 'webinar', 'interactive');
	EXCEPTION
		WHEN duplicate_object THEN null;
	END $$;

	DO $$ BEGIN
		CREATE TYPE enrollment_status AS ENUM ('enrolled', 'in_progress', 'completed', 'dropped');
	EXCEPTION
		WHEN duplicate_object THEN null;
	END $$;

	DO $$ BEGIN
		CREATE TYPE progress_status AS ENUM ('not_started', 'in_progress', 'completed');
	EXCEPTION
		WHEN duplicate_object THEN null;
	END $$;

	DO $$ BEGIN
		CREATE TYPE question_type AS ENUM ('multiple_choice', 'true_false', 'short_answer', 'essay');
	EXCEPTION
		WHEN duplicate_object THEN null;
	END $$;

	DO $$ BEGIN
		CREATE TYPE certificate_type AS ENUM ('completion', 'achievement', 'participation');
	EXCEPTION
		WHEN duplicate_object THEN null;
	END $$;

	DO $$ BEGIN
		CREATE TYPE notification_type AS ENUM ('assignment', 'reminder', 'achievement', 'announcement', 'webinar');
	EXCEPTION
		WHEN duplicate_object THEN null;
	END $$;

	DO $$ BEGIN
		CREATE TYPE notification_priority AS ENUM ('low', 'medium', 'high', 'urgent');
	EXCEPTION
		WHEN duplicate_object THEN null;
	END $$;

	DO $$ BEGIN
		CREATE TYPE webinar_status AS ENUM ('scheduled', 'live', 'completed', 'cancelled');
	EXCEPTION
		WHEN duplicate_object THEN null;
	END $$;
`

// GormConfig is shared by the Postgres connection and the SQLite test database.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	}
}

func ConDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), GormConfig())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	return db, nil
}

func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Category{},
		&models.Course{},
		&models.Module{},
		&models.Enrollment{},
		&models.ModuleProgress{},
		&models.ContentProgress{},
		&models.Quiz{},
		&models.Question{},
		&models.QuestionOption{},
		&models.QuizAttempt{},
		&models.QuizResponse{},
		&models.Certificate{},
		&models.Document{},
		&models.Notification{},
		&models.Webinar{},
		&models.WebinarRegistration{},
		&models.AuditLog{},
		&models.Badge{},
		&models.UserBadge{},
		&models.UserPoints{},
		&models.LearningEvent{},
		&models.ContentReview{},
	}
}

// SyncDB creates the enum types (Postgres only) and migrates every table.
func SyncDB(db *gorm.DB) error {
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec(enumDDL).Error; err != nil {
			return fmt.Errorf("create enums: %w", err)
		}
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

func InitES(cfg *config.Config) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.ESAddress},
		Username:  cfg.ESUser,
		Password:  cfg.ESPassword,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.IsProduction()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return client, nil
}

func InitMinio(cfg *config.Config) (*minio.Client, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioSecure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return client, nil
}

func InitRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
}
