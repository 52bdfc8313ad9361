package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"pillarfunnel/pkg/domain"
)

const archiveKeyLayout = "20060102T150405.000Z"

// SubmissionArchive writes completed quiz submissions to object storage as
// JSON, one object per completion under submissions/<userId>/.
type SubmissionArchive struct {
	store ObjectStore
	now   func() time.Time
}

func NewSubmissionArchive(store ObjectStore) *SubmissionArchive {
	return &SubmissionArchive{store: store, now: time.Now}
}

// ArchiveKey returns the object key for a submission archived at t.
func ArchiveKey(userID string, t time.Time) string {
	return path.Join("submissions", userID, t.UTC().Format(archiveKeyLayout)+".json")
}

// Archive stores sub and returns its key.
func (a *SubmissionArchive) Archive(ctx context.Context, sub domain.QuizSubmission) (string, error) {
	if a == nil || a.store == nil {
		return "", errors.New("submission archive not configured")
	}
	userID := strings.TrimSpace(sub.UserID)
	if userID == "" {
		return "", errors.New("submission user id is required")
	}
	body, err := json.Marshal(sub)
	if err != nil {
		return "", fmt.Errorf("encode submission: %w", err)
	}
	key := ArchiveKey(userID, a.now())
	err = a.store.Put(ctx, Object{
		Key:         key,
		Data:        body,
		ContentType: "application/json",
		Metadata: map[string]string{
			"user-id":   userID,
			"completed": strconv.FormatBool(sub.Completed),
		},
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// Load reads back an archived submission.
func (a *SubmissionArchive) Load(ctx context.Context, key string) (domain.QuizSubmission, error) {
	data, err := a.store.Get(ctx, key)
	if err != nil {
		return domain.QuizSubmission{}, err
	}
	var sub domain.QuizSubmission
	if err := json.Unmarshal(data, &sub); err != nil {
		return domain.QuizSubmission{}, fmt.Errorf("decode submission: %w", err)
	}
	return sub, nil
}
