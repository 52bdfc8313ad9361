package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pillarfunnel/pkg/domain"
)

func submissionFor(email string, answers domain.QuizAnswers) domain.QuizSubmission {
	return domain.QuizSubmission{
		Identity: domain.Identity{FirstName: "Ada", LastName: "Lovelace", Email: email},
		Answers:  answers,
	}
}

func TestMemoryStoreUpsertUpdatesExisting(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, created, err := s.UpsertByEmail(ctx, submissionFor("a@x.com", domain.QuizAnswers{BusinessName: "Acme"}), false)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !created || first.UserID == "" || first.Completed {
		t.Fatalf("unexpected first record: created=%v rec=%+v", created, first)
	}

	next := submissionFor("a@x.com", domain.QuizAnswers{BusinessName: "Acme Corp", Budget: domain.Budget10kPlus})
	next.Identity.FirstName = "Changed"
	second, created, err := s.UpsertByEmail(ctx, next, true)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Fatalf("expected update, got insert")
	}
	if got := s.CountByEmail("a@x.com"); got != 1 {
		t.Fatalf("row count for email = %d, want 1", got)
	}
	if second.UserID != first.UserID {
		t.Fatalf("userId changed: %q -> %q", first.UserID, second.UserID)
	}
	if second.Identity.FirstName != "Ada" {
		t.Fatalf("identity must not be rewritten on update: %+v", second.Identity)
	}
	if second.Answers.BusinessName != "Acme Corp" || second.Answers.Budget != domain.Budget10kPlus || !second.Completed {
		t.Fatalf("unexpected updated record: %+v", second)
	}

	// A later partial save keeps the completed flag.
	third, _, err := s.UpsertByEmail(ctx, submissionFor("a@x.com", domain.QuizAnswers{BusinessName: "Acme"}), false)
	if err != nil {
		t.Fatalf("third upsert: %v", err)
	}
	if !third.Completed {
		t.Fatalf("partial save cleared completed flag")
	}
}

func TestMemoryStoreUpsertKeepsCallerUserID(t *testing.T) {
	s := NewMemoryStore()
	rec := submissionFor("b@x.com", domain.QuizAnswers{})
	rec.UserID = "preassigned"
	got, created, err := s.UpsertByEmail(context.Background(), rec, false)
	if err != nil || !created {
		t.Fatalf("upsert: created=%v err=%v", created, err)
	}
	if got.UserID != "preassigned" {
		t.Fatalf("userId = %q", got.UserID)
	}
	found, ok, err := s.FetchByUserID(context.Background(), "preassigned")
	if err != nil || !ok || found.Identity.Email != "b@x.com" {
		t.Fatalf("fetch by user id: ok=%v err=%v rec=%+v", ok, err, found)
	}
}

func TestMemoryStoreMultipleMatches(t *testing.T) {
	s := NewMemoryStore()
	s.Insert(domain.QuizSubmission{ID: "1", UserID: "u1", Identity: domain.Identity{Email: "dup@x.com"}})
	s.Insert(domain.QuizSubmission{ID: "2", UserID: "u2", Identity: domain.Identity{Email: "dup@x.com"}})

	if _, _, err := s.FetchByEmail(context.Background(), "dup@x.com"); !errors.Is(err, ErrMultipleSubmissions) {
		t.Fatalf("expected ErrMultipleSubmissions, got %v", err)
	}
	if _, _, err := s.UpsertByEmail(context.Background(), submissionFor("dup@x.com", domain.QuizAnswers{}), false); !errors.Is(err, ErrMultipleSubmissions) {
		t.Fatalf("expected upsert to surface ErrMultipleSubmissions, got %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("no rows should be added, have %d", s.Len())
	}
}

func TestMemoryStoreUpsertTouchesOnlyMatchingEmail(t *testing.T) {
	s := NewMemoryStore()
	s.Insert(domain.QuizSubmission{UserID: "u-grace", Identity: domain.Identity{Email: "grace@x.com"}, Answers: domain.QuizAnswers{BusinessName: "Navy"}})
	s.Insert(domain.QuizSubmission{UserID: "u-ada", Identity: domain.Identity{Email: "ada@x.com"}, Answers: domain.QuizAnswers{BusinessName: "Engine"}})

	out, created, err := s.UpsertByEmail(context.Background(), submissionFor("ada@x.com", domain.QuizAnswers{BusinessName: "Acme"}), false)
	if err != nil || created {
		t.Fatalf("upsert: created=%v err=%v", created, err)
	}
	if out.UserID != "u-ada" || out.Answers.BusinessName != "Acme" {
		t.Fatalf("unexpected updated row: %+v", out)
	}
	grace, ok, err := s.FetchByEmail(context.Background(), "grace@x.com")
	if err != nil || !ok || grace.Answers.BusinessName != "Navy" {
		t.Fatalf("other visitor's row changed: %+v ok=%v err=%v", grace, ok, err)
	}
	if grace.ID == "" {
		t.Fatal("seeded rows should get an id")
	}
}

func TestMemoryStoreRequiresEmail(t *testing.T) {
	s := NewMemoryStore()
	if _, _, err := s.UpsertByEmail(context.Background(), submissionFor("  ", domain.QuizAnswers{}), false); !errors.Is(err, ErrEmailRequired) {
		t.Fatalf("expected ErrEmailRequired, got %v", err)
	}
}

func TestMemoryStoreFetchMissing(t *testing.T) {
	s := NewMemoryStore()
	if _, ok, err := s.FetchByUserID(context.Background(), "nope"); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreConcurrentUpserts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if _, _, err := s.UpsertByEmail(ctx, submissionFor("c@x.com", domain.QuizAnswers{}), false); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := s.UpsertByEmail(ctx, submissionFor("c@x.com", domain.QuizAnswers{BusinessName: "Acme"}), false); err != nil {
				t.Errorf("upsert: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := s.CountByEmail("c@x.com"); got != 1 {
		t.Fatalf("updates of an existing row must not duplicate it, have %d", got)
	}
}
