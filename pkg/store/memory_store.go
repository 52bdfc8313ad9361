package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pillarfunnel/pkg/domain"
)

// MemoryStore keeps submissions in process memory. It follows the same
// lookup-then-write sequence as GormStore.
type MemoryStore struct {
	mu   sync.RWMutex
	rows []domain.QuizSubmission
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: utcNow}
}

// Insert appends rec without any lookup, so fixtures can seed duplicates.
// A missing row ID is filled in.
func (s *MemoryStore) Insert(rec domain.QuizSubmission) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rec)
}

// Len returns the number of stored rows.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// CountByEmail returns how many rows carry email.
func (s *MemoryStore) CountByEmail(email string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.rows {
		if r.Identity.Email == email {
			n++
		}
	}
	return n
}

func (s *MemoryStore) FetchByEmail(_ context.Context, email string) (domain.QuizSubmission, bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return domain.QuizSubmission{}, false, ErrEmailRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var match domain.QuizSubmission
	n := 0
	for _, r := range s.rows {
		if r.Identity.Email == email {
			match = r
			n++
		}
	}
	switch n {
	case 0:
		return domain.QuizSubmission{}, false, nil
	case 1:
		return match, true, nil
	default:
		return domain.QuizSubmission{}, false, ErrMultipleSubmissions
	}
}

func (s *MemoryStore) FetchByUserID(_ context.Context, userID string) (domain.QuizSubmission, bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.QuizSubmission{}, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].UserID == userID {
			return s.rows[i], true, nil
		}
	}
	return domain.QuizSubmission{}, false, nil
}

func (s *MemoryStore) UpsertByEmail(ctx context.Context, rec domain.QuizSubmission, completed bool) (domain.QuizSubmission, bool, error) {
	existing, found, err := s.FetchByEmail(ctx, rec.Identity.Email)
	if err != nil {
		return domain.QuizSubmission{}, false, err
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if found {
		for i := range s.rows {
			if s.rows[i].ID != existing.ID || s.rows[i].Identity.Email != existing.Identity.Email {
				continue
			}
			s.rows[i].Answers = rec.Answers
			s.rows[i].UpdatedAt = now
			if completed {
				s.rows[i].Completed = true
			}
			return s.rows[i], false, nil
		}
	}
	rec = newSubmission(rec, completed, now)
	s.rows = append(s.rows, rec)
	return rec, true, nil
}
