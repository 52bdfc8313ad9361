package app

import (
	"net/url"
	"strings"

	"pillarfunnel/pkg/domain"
)

// BuildReturnURL renders {origin}/return/{userId}?firstName=..&lastName=..&email=..
// with each value query-escaped exactly once.
func BuildReturnURL(origin, userID string, id domain.Identity) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(origin, "/"))
	b.WriteString("/return/")
	b.WriteString(url.PathEscape(userID))
	b.WriteString("?firstName=")
	b.WriteString(url.QueryEscape(id.FirstName))
	b.WriteString("&lastName=")
	b.WriteString(url.QueryEscape(id.LastName))
	b.WriteString("&email=")
	b.WriteString(url.QueryEscape(id.Email))
	return b.String()
}

// identityFromQuery returns the identity carried by a return URL, if all three
// fields are present.
func identityFromQuery(q url.Values) (domain.Identity, bool) {
	id := domain.Identity{
		FirstName: q.Get("firstName"),
		LastName:  q.Get("lastName"),
		Email:     q.Get("email"),
	}.Normalized()
	return id, id.Complete()
}
