package app

import (
	"net/mail"
	"strings"

	"pillarfunnel/pkg/domain"
)

const maxFieldLen = 200

func validateIdentity(v *ValidationError, id domain.Identity, requireLastName bool) {
	if id.FirstName == "" {
		v.add("firstName", "required")
	}
	if requireLastName && id.LastName == "" {
		v.add("lastName", "required")
	}
	switch {
	case id.Email == "":
		v.add("email", "required")
	case !validEmail(id.Email):
		v.add("email", "invalid")
	}
	for _, f := range []struct{ name, value string }{
		{"firstName", id.FirstName},
		{"lastName", id.LastName},
		{"email", id.Email},
	} {
		if len(f.value) > maxFieldLen {
			v.add(f.name, "too long")
		}
	}
}

// validateAnswers checks enum membership. final additionally requires every
// business field; partial saves accept empty values.
func validateAnswers(v *ValidationError, a domain.QuizAnswers, final bool) {
	if final && strings.TrimSpace(a.BusinessName) == "" {
		v.add("businessName", "required")
	}
	if len(a.BusinessName) > maxFieldLen {
		v.add("businessName", "too long")
	}
	checkEnum(v, "businessType", a.BusinessType == "", a.BusinessType.Valid(), final)
	checkEnum(v, "budget", a.Budget == "", a.Budget.Valid(), final)
	checkEnum(v, "timeline", a.Timeline == "", a.Timeline.Valid(), final)
}

func checkEnum(v *ValidationError, field string, empty, valid, required bool) {
	switch {
	case empty && required:
		v.add(field, "required")
	case !empty && !valid:
		v.add(field, "unknown option")
	}
}

func validEmail(email string) bool {
	if strings.ContainsAny(email, " <>") {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func normalizeAnswers(a domain.QuizAnswers) domain.QuizAnswers {
	a.BusinessName = strings.TrimSpace(a.BusinessName)
	a.BusinessType = domain.BusinessType(strings.TrimSpace(string(a.BusinessType)))
	a.Budget = domain.Budget(strings.TrimSpace(string(a.Budget)))
	a.Timeline = domain.Timeline(strings.TrimSpace(string(a.Timeline)))
	return a
}
