package contact

import (
	"html"
	"regexp"
	"strings"
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// SanitizeText decodes entities, strips markup tags, trims, and
// HTML-escapes s. Applying it twice gives the same result as once.
func SanitizeText(s string) string {
	s = html.UnescapeString(s)
	s = tagPattern.ReplaceAllString(s, "")
	return html.EscapeString(strings.TrimSpace(s))
}

// SanitizeEmail trims s and drops every character that cannot appear in
// an email address.
func SanitizeEmail(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if emailRune(r) {
			return r
		}
		return -1
	}, s)
}

func emailRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("!#$%&'*+-=?^_`{|}~@.[]", r)
}

// Form is the raw, untrusted input.
type Form struct {
	Name    string
	Email   string
	Phone   string
	Message string
}

// Sanitize returns the cleaned copy of f.
func (f Form) Sanitize() Form {
	return Form{
		Name:    SanitizeText(f.Name),
		Email:   SanitizeEmail(f.Email),
		Phone:   SanitizeText(f.Phone),
		Message: SanitizeText(f.Message),
	}
}
