package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"pillarfunnel/pkg/domain"
)

const migrateLockID int64 = 51735173

type GormStoreOptions struct {
	Logger   *slog.Logger
	LogLevel gormlogger.LogLevel
	Now      func() time.Time
}

type GormStoreOption func(*GormStoreOptions)

// WithQueryLogger routes GORM logs to logger at the given level.
func WithQueryLogger(logger *slog.Logger, level gormlogger.LogLevel) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.Logger = logger
		opts.LogLevel = level
	}
}

// WithClock overrides the clock used for created_at / updated_at.
func WithClock(now func() time.Time) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.Now = now
	}
}

// GormStore implements Progress using GORM + Postgres.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore opens the DB and migrates quiz_submissions.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{LogLevel: gormlogger.Warn, Now: utcNow}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: NewSlogGormLogger(opts.Logger, opts.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&QuizSubmissionModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = utcNow
	}
	return &GormStore{db: db, now: now}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database reachability.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// FetchByEmail returns the single submission for email. Two or more rows
// yield ErrMultipleSubmissions.
func (s *GormStore) FetchByEmail(ctx context.Context, email string) (domain.QuizSubmission, bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return domain.QuizSubmission{}, false, ErrEmailRequired
	}
	var models []QuizSubmissionModel
	if err := s.db.WithContext(ctx).
		Where("email = ?", email).
		Order("created_at asc").
		Limit(2).
		Find(&models).Error; err != nil {
		return domain.QuizSubmission{}, false, fmt.Errorf("lookup submission by email: %w", err)
	}
	switch len(models) {
	case 0:
		return domain.QuizSubmission{}, false, nil
	case 1:
		return submissionFromModel(models[0]), true, nil
	default:
		return domain.QuizSubmission{}, false, ErrMultipleSubmissions
	}
}

// FetchByUserID returns the submission identified by the visitor's userId.
func (s *GormStore) FetchByUserID(ctx context.Context, userID string) (domain.QuizSubmission, bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.QuizSubmission{}, false, nil
	}
	var models []QuizSubmissionModel
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at desc").
		Limit(1).
		Find(&models).Error; err != nil {
		return domain.QuizSubmission{}, false, fmt.Errorf("lookup submission by user id: %w", err)
	}
	if len(models) == 0 {
		return domain.QuizSubmission{}, false, nil
	}
	return submissionFromModel(models[0]), true, nil
}

// UpsertByEmail updates the answers of the existing row for rec's email or
// inserts a new row. The returned bool reports whether a row was inserted.
func (s *GormStore) UpsertByEmail(ctx context.Context, rec domain.QuizSubmission, completed bool) (domain.QuizSubmission, bool, error) {
	existing, found, err := s.FetchByEmail(ctx, rec.Identity.Email)
	if err != nil {
		return domain.QuizSubmission{}, false, err
	}
	now := s.now()
	if found {
		updates := answerColumns(rec.Answers, now)
		if completed {
			updates["completed"] = true
		}
		if err := s.db.WithContext(ctx).
			Model(&QuizSubmissionModel{}).
			Where("id = ?", existing.ID).
			Updates(updates).Error; err != nil {
			return domain.QuizSubmission{}, false, fmt.Errorf("update submission: %w", err)
		}
		existing.Answers = rec.Answers
		existing.UpdatedAt = now
		existing.Completed = existing.Completed || completed
		return existing, false, nil
	}

	rec = newSubmission(rec, completed, now)
	model := submissionToModel(rec)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.QuizSubmission{}, false, fmt.Errorf("insert submission: %w", err)
	}
	return rec, true, nil
}

func newSubmission(rec domain.QuizSubmission, completed bool, now time.Time) domain.QuizSubmission {
	rec.ID = uuid.NewString()
	if strings.TrimSpace(rec.UserID) == "" {
		rec.UserID = uuid.NewString()
	}
	rec.Identity.Email = normalizeEmail(rec.Identity.Email)
	rec.Completed = completed
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return rec
}
