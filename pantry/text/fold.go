// pantry/text/fold.go
package text

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldPool hands out NFD → remove(Mn) → NFC chains; transformers are stateful.
var foldPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)),
			norm.NFC,
		)
	},
}

// Fold lowercases s and strips combining diacritics, so "CAŚINO" and
// "casino" compare equal. Letters without a decomposition ("ø", "ß") are
// kept as is.
func Fold(s string) string {
	if isLowerASCII(s) {
		return s
	}
	s = strings.ToLower(s)

	t := foldPool.Get().(transform.Transformer)
	defer func() {
		t.Reset()
		foldPool.Put(t)
	}()

	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Denylist matches folded text against a fixed set of terms.
type Denylist struct {
	terms []string
}

// NewDenylist folds each term once. Blank terms are dropped.
func NewDenylist(terms ...string) *Denylist {
	d := &Denylist{terms: make([]string, 0, len(terms))}
	for _, term := range terms {
		if f := Fold(strings.TrimSpace(term)); f != "" {
			d.terms = append(d.terms, f)
		}
	}
	return d
}

// Match returns the first term that occurs anywhere in Fold(s).
func (d *Denylist) Match(s string) (string, bool) {
	if d == nil || len(d.terms) == 0 {
		return "", false
	}
	folded := Fold(s)
	for _, term := range d.terms {
		if strings.Contains(folded, term) {
			return term, true
		}
	}
	return "", false
}

func isLowerASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= 0x80 || (b >= 'A' && b <= 'Z') {
			return false
		}
	}
	return true
}
