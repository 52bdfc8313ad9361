package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"pillarfunnel/pkg/domain"
)

var (
	// ErrMultipleSubmissions means an email lookup matched more than one row.
	ErrMultipleSubmissions = errors.New("multiple submissions for email")
	// ErrEmailRequired is returned when an upsert has no email to key on.
	ErrEmailRequired = errors.New("submission email is required")
)

// Progress persists quiz progress keyed by email.
//
// UpsertByEmail looks the email up and either updates the answer fields of the
// existing row (marking it completed when completed is true) or inserts a new
// row. The lookup and the write are separate statements, so two concurrent
// first saves for one email can both insert.
type Progress interface {
	UpsertByEmail(ctx context.Context, rec domain.QuizSubmission, completed bool) (domain.QuizSubmission, bool, error)
	FetchByUserID(ctx context.Context, userID string) (domain.QuizSubmission, bool, error)
	FetchByEmail(ctx context.Context, email string) (domain.QuizSubmission, bool, error)
}

// ReturnURLCache remembers the last return URL generated for a visitor.
type ReturnURLCache interface {
	Put(ctx context.Context, key, url string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

func utcNow() time.Time {
	return time.Now().UTC()
}
