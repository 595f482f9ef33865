package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	cases := map[string]string{
		"":              "",
		"already lower": "already lower",
		"CASINO":        "casino",
		"Café Crème":    "cafe creme",
		"ÇÀŚÍÑÖ":        "casino",
		"Straße":        "straße",
	}
	for in, want := range cases {
		assert.Equal(t, want, Fold(in), "Fold(%q)", in)
	}
}

func TestDenylistMatch(t *testing.T) {
	d := NewDenylist("viagra", "Casino", "[url=", "  ")
	assert.Equal(t, []string{"viagra", "casino", "[url="}, d.terms)

	term, ok := d.Match("Visit our CASÍNO today")
	assert.True(t, ok)
	assert.Equal(t, "casino", term)

	term, ok = d.Match("see [URL=http://x]here[/url]")
	assert.True(t, ok)
	assert.Equal(t, "[url=", term)

	_, ok = d.Match("A perfectly ordinary question about pricing.")
	assert.False(t, ok)

	var nilList *Denylist
	_, ok = nilList.Match("casino")
	assert.False(t, ok)
}
