package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pillarfunnel/internal/util"
	"pillarfunnel/pkg/domain"
	"pillarfunnel/pkg/store"
	"pillarfunnel/pkg/webhook"
)

// Notifier delivers funnel events to the automation webhook.
type Notifier interface {
	Notify(ctx context.Context, ev webhook.Event, source string) webhook.Result
}

// Archiver keeps a copy of completed submissions.
type Archiver interface {
	Archive(ctx context.Context, sub domain.QuizSubmission) (string, error)
}

// Config holds runtime dependencies for the coordinator.
type Config struct {
	Progress      store.Progress
	Cache         store.ReturnURLCache
	Notifier      Notifier
	Archive       Archiver
	PublicOrigin  string
	AutosaveDelay time.Duration
	NewUserID     func() string
}

// App coordinates form submissions: validation, persistence, webhook
// delivery and the return-URL cache. Only validation failures reach the caller.
type App struct {
	progress  store.Progress
	cache     store.ReturnURLCache
	notifier  Notifier
	archive   Archiver
	origin    string
	newUserID func() string
	autosave  *Autosaver

	background sync.WaitGroup
}

// New constructs the coordinator.
func New(cfg Config) (*App, error) {
	if cfg.Progress == nil {
		return nil, errors.New("progress store required")
	}
	origin := strings.TrimRight(strings.TrimSpace(cfg.PublicOrigin), "/")
	if origin == "" {
		return nil, errors.New("public origin required")
	}
	cache := cfg.Cache
	if cache == nil {
		cache = store.NewMemoryReturnURLCache()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = webhook.NewNotifier(webhook.NotifierConfig{})
	}
	newUserID := cfg.NewUserID
	if newUserID == nil {
		newUserID = uuid.NewString
	}
	a := &App{
		progress:  cfg.Progress,
		cache:     cache,
		notifier:  notifier,
		archive:   cfg.Archive,
		origin:    origin,
		newUserID: newUserID,
	}
	a.autosave = NewAutosaver(cfg.AutosaveDelay, a.saveDraft)
	return a, nil
}

// RegistrationInput is the registration form. FullName is split into first
// and last name when the separate fields are empty.
type RegistrationInput struct {
	FullName  string
	FirstName string
	LastName  string
	Email     string
}

// SubmitRegistration validates the form and notifies the webhook. Delivery
// problems never change the returned notice.
func (a *App) SubmitRegistration(ctx context.Context, in RegistrationInput, source string) (domain.Notice, error) {
	id := domain.Identity{FirstName: in.FirstName, LastName: in.LastName, Email: in.Email}
	if strings.TrimSpace(id.FirstName) == "" && strings.TrimSpace(id.LastName) == "" {
		id.FirstName, id.LastName = domain.SplitFullName(in.FullName)
	}
	id = id.Normalized()

	v := &ValidationError{}
	validateIdentity(v, id, false)
	if err := v.errOrNil(); err != nil {
		return NoticeRegistrationFailed, err
	}

	a.notifier.Notify(context.WithoutCancel(ctx), webhook.Event{
		Kind:     domain.EventRegistration,
		Identity: id,
	}, source)
	return NoticeRegistered, nil
}

// SubmitQualification is the final quiz submit. Persistence (completed=true)
// and webhook delivery run concurrently; both are best effort.
func (a *App) SubmitQualification(ctx context.Context, q domain.Qualification, source string) (domain.Notice, error) {
	q.Identity = q.Identity.Normalized()
	q.Answers = normalizeAnswers(q.Answers)

	v := &ValidationError{}
	validateIdentity(v, q.Identity, true)
	validateAnswers(v, q.Answers, true)
	if err := v.errOrNil(); err != nil {
		return NoticeSubmissionFailed, err
	}

	logger := util.LoggerFromContext(ctx)
	// A draft save that already started must land before the final write.
	if err := a.autosave.Settle(ctx, q.Identity.Email); err != nil {
		logger.Warn("autosave_settle_interrupted", "error", err)
	}

	work := context.WithoutCancel(ctx)
	var (
		g     errgroup.Group
		saved domain.QuizSubmission
		ok    bool
	)
	g.Go(func() error {
		rec := domain.QuizSubmission{UserID: a.newUserID(), Identity: q.Identity, Answers: q.Answers}
		out, created, err := a.progress.UpsertByEmail(work, rec, true)
		if err != nil {
			logger.Warn("qualification_persist_failed", "error", err)
			return nil
		}
		saved, ok = out, true
		logger.Info("qualification_persisted", "user_id", out.UserID, "created", created)
		return nil
	})
	g.Go(func() error {
		a.notifier.Notify(work, webhook.Event{
			Kind:     domain.EventQualification,
			Identity: q.Identity,
			Answers:  q.Answers,
		}, source)
		return nil
	})
	_ = g.Wait()

	if err := a.cache.Delete(work, q.Identity.Email); err != nil {
		logger.Warn("return_url_cache_clear_failed", "error", err)
	}
	if ok && a.archive != nil {
		if key, err := a.archive.Archive(work, saved); err != nil {
			logger.Warn("submission_archive_failed", "user_id", saved.UserID, "error", err)
		} else {
			logger.Info("submission_archived", "user_id", saved.UserID, "key", key)
		}
	}
	return NoticeQualified, nil
}

// ProgressResult is returned by SaveProgress.
type ProgressResult struct {
	UserID    string `json:"userId"`
	ReturnURL string `json:"returnUrl"`
	Persisted bool   `json:"persisted"`
}

// SaveProgress upserts a partial quiz (completed=false), builds the visitor's
// return URL and caches it. The URL is produced even when persistence fails.
func (a *App) SaveProgress(ctx context.Context, q domain.Qualification) (ProgressResult, error) {
	q.Identity = q.Identity.Normalized()
	q.Answers = normalizeAnswers(q.Answers)

	v := &ValidationError{}
	validateIdentity(v, q.Identity, true)
	validateAnswers(v, q.Answers, false)
	if err := v.errOrNil(); err != nil {
		return ProgressResult{}, err
	}
	return a.saveProgress(ctx, q), nil
}

func (a *App) saveProgress(ctx context.Context, q domain.Qualification) ProgressResult {
	logger := util.LoggerFromContext(ctx)
	res := ProgressResult{UserID: a.newUserID()}
	identity := q.Identity

	rec := domain.QuizSubmission{UserID: res.UserID, Identity: q.Identity, Answers: q.Answers}
	saved, _, err := a.progress.UpsertByEmail(ctx, rec, false)
	if err != nil {
		logger.Warn("progress_persist_failed", "error", err)
	} else {
		res.UserID = saved.UserID
		res.Persisted = true
		identity = saved.Identity
	}

	res.ReturnURL = BuildReturnURL(a.origin, res.UserID, identity)
	if err := a.cache.Put(ctx, q.Identity.Email, res.ReturnURL); err != nil {
		logger.Warn("return_url_cache_failed", "error", err)
	}
	return res
}

// EditDraft records a quiz edit for debounced autosave. Drafts without a
// complete identity are ignored and report false.
func (a *App) EditDraft(ctx context.Context, q domain.Qualification) (bool, error) {
	q.Identity = q.Identity.Normalized()
	q.Answers = normalizeAnswers(q.Answers)
	if !q.Identity.Complete() {
		return false, nil
	}
	v := &ValidationError{}
	validateIdentity(v, q.Identity, true)
	validateAnswers(v, q.Answers, false)
	if err := v.errOrNil(); err != nil {
		return false, err
	}
	return a.autosave.Schedule(q.Identity.Email, q), nil
}

func (a *App) saveDraft(ctx context.Context, q domain.Qualification) {
	if !q.Answers.HasBusinessInfo() {
		return
	}
	a.saveProgress(ctx, q)
}

// CachedReturnURL returns the last return URL generated for email.
func (a *App) CachedReturnURL(ctx context.Context, email string) (string, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", false, &ValidationError{Fields: []FieldError{{Field: "email", Reason: "required"}}}
	}
	url, ok, err := a.cache.Get(ctx, email)
	if err != nil {
		return "", false, fmt.Errorf("read return url: %w", err)
	}
	return url, ok, nil
}

// Wait blocks until background notifications have finished.
func (a *App) Wait() {
	a.background.Wait()
}

// Shutdown flushes pending autosaves and waits for background work.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.autosave.Shutdown(ctx)
	done := make(chan struct{})
	go func() {
		a.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}
