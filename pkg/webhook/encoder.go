package webhook

import (
	"net/url"
	"strconv"
	"time"

	"pillarfunnel/pkg/domain"
)

// TimestampLayout is ISO-8601 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Event is a typed payload for the automation webhook.
type Event struct {
	Kind     domain.EventKind
	Identity domain.Identity
	Answers  domain.QuizAnswers
	UserID   string
}

// Enrichment carries the fields appended to every payload at call time.
type Enrichment struct {
	Timestamp time.Time
	Source    string
}

var (
	identityFields      = []string{"firstName", "lastName", "email"}
	qualificationFields = []string{"businessName", "businessType", "budget", "timeline", "committed"}
	enrichmentFields    = []string{"event", "timestamp", "source"}
)

// EventKinds lists every event the funnel emits.
func EventKinds() []domain.EventKind {
	return []domain.EventKind{domain.EventRegistration, domain.EventQualification, domain.EventReturnVisit}
}

// Fields returns the query keys emitted for an event kind, including enrichment keys.
func Fields(kind domain.EventKind) []string {
	var out []string
	switch kind {
	case domain.EventRegistration:
		out = append(out, identityFields...)
	case domain.EventQualification:
		out = append(out, identityFields...)
		out = append(out, qualificationFields...)
	case domain.EventReturnVisit:
		out = append(out, "userId")
		out = append(out, identityFields...)
	default:
		return nil
	}
	return append(out, enrichmentFields...)
}

// Values builds the key/value set for an event without serializing it.
func Values(ev Event, en Enrichment) url.Values {
	v := url.Values{}
	v.Set("firstName", ev.Identity.FirstName)
	v.Set("lastName", ev.Identity.LastName)
	v.Set("email", ev.Identity.Email)
	switch ev.Kind {
	case domain.EventQualification:
		v.Set("businessName", ev.Answers.BusinessName)
		v.Set("businessType", string(ev.Answers.BusinessType))
		v.Set("budget", string(ev.Answers.Budget))
		v.Set("timeline", string(ev.Answers.Timeline))
		v.Set("committed", strconv.FormatBool(ev.Answers.Committed))
	case domain.EventReturnVisit:
		v.Set("userId", ev.UserID)
	}
	v.Set("event", string(ev.Kind))
	v.Set("timestamp", en.Timestamp.UTC().Format(TimestampLayout))
	v.Set("source", en.Source)
	return v
}

// Encode serializes an event as a query string. Keys are sorted and every value is
// percent-encoded, so the output is deterministic for a fixed enrichment.
func Encode(ev Event, en Enrichment) string {
	return Values(ev, en).Encode()
}
