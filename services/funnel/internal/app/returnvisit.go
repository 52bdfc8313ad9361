package app

import (
	"context"
	"net/url"
	"strings"

	"pillarfunnel/internal/util"
	"pillarfunnel/pkg/domain"
	"pillarfunnel/pkg/webhook"
)

type ReturnVisitState string

const (
	StateLoading          ReturnVisitState = "loading"
	StateResolvedWithData ReturnVisitState = "resolved_with_data"
	StateResolvedEmpty    ReturnVisitState = "resolved_empty"
)

// ReturnVisit is the reconstructed quiz state for a visitor following a return URL.
type ReturnVisit struct {
	State    ReturnVisitState   `json:"state"`
	UserID   string             `json:"userId"`
	Identity domain.Identity    `json:"identity"`
	Answers  domain.QuizAnswers `json:"answers"`
	Notified bool               `json:"-"`
}

// resolve moves a loading visit to a terminal state. Terminal states are final.
func (rv *ReturnVisit) resolve(withData bool) {
	if rv.State != StateLoading {
		return
	}
	if withData {
		rv.State = StateResolvedWithData
		return
	}
	rv.State = StateResolvedEmpty
}

// ResolveReturnVisit rebuilds a visitor's quiz from the stored record and the
// identity carried in the return URL. A failed lookup resolves empty. The
// return-visit event is sent in the background as soon as an identity is known.
func (a *App) ResolveReturnVisit(ctx context.Context, userID string, query url.Values, source string) ReturnVisit {
	logger := util.LoggerFromContext(ctx)
	rv := ReturnVisit{State: StateLoading, UserID: strings.TrimSpace(userID)}

	queryIdentity, fromQuery := identityFromQuery(query)
	if fromQuery {
		rv.Identity = queryIdentity
	}

	rec, found, err := a.progress.FetchByUserID(ctx, rv.UserID)
	switch {
	case err != nil:
		logger.Warn("return_visit_fetch_failed", "user_id", rv.UserID, "error", err)
		rv.resolve(false)
	case !found:
		rv.resolve(false)
	default:
		if !fromQuery {
			rv.Identity = rec.Identity
		}
		rv.Answers = domain.QuizAnswers{}.FillFrom(rec.Answers)
		rv.resolve(true)
	}

	if rv.Identity.Complete() {
		rv.Notified = true
		ev := webhook.Event{Kind: domain.EventReturnVisit, UserID: rv.UserID, Identity: rv.Identity}
		work := context.WithoutCancel(ctx)
		a.background.Add(1)
		go func() {
			defer a.background.Done()
			a.notifier.Notify(work, ev, source)
		}()
	}
	return rv
}
