package contact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  John  ", "John"},
		{"<b>Bold</b> name", "Bold name"},
		{"<script>alert(1)</script>", "alert(1)"},
		{"Tom &amp; Jerry", "Tom &amp; Jerry"},
		{"Tom & Jerry", "Tom &amp; Jerry"},
		{"&lt;i&gt;hi&lt;/i&gt;", "hi"},
		{"a < b", "a &lt; b"},
		{`say "hi"`, "say &#34;hi&#34;"},
		{"O'Brien", "O&#39;Brien"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeText(tt.in), "SanitizeText(%q)", tt.in)
	}
}

func TestSanitizeEmail(t *testing.T) {
	assert.Equal(t, "john@example.com", SanitizeEmail("  john@example.com \n"))
	assert.Equal(t, "john@example.com", SanitizeEmail("jo hn@exa<mple>.com"))
	assert.Equal(t, "a+tag@[127.0.0.1]", SanitizeEmail("a+tag@[127.0.0.1]"))
	assert.Equal(t, "jrgen@example.de", SanitizeEmail("jürgen@example.de"))
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"plain text",
		"  padded  ",
		"Tom & Jerry",
		"&amp;lt;b&amp;gt;",
		"<<b>>nested<</b>>",
		"<a href='x'>link</a> & more",
		"quotes \" and ' here",
		"&nbsp; leading entity",
		"x <unclosed",
		"multi\nline\n<p>message</p>",
		"Café déjà vu",
	}
	for _, in := range inputs {
		once := SanitizeText(in)
		assert.Equal(t, once, SanitizeText(once), "text %q", in)

		e := SanitizeEmail(in)
		assert.Equal(t, e, SanitizeEmail(e), "email %q", in)
	}
}

func TestFormSanitize(t *testing.T) {
	f := Form{
		Name:    " <i>Jane</i> ",
		Email:   " jane@example.org ",
		Phone:   " +1 (555) 010-0000 ",
		Message: "Hello <b>there</b>",
	}.Sanitize()

	assert.Equal(t, Form{
		Name:    "Jane",
		Email:   "jane@example.org",
		Phone:   "+1 (555) 010-0000",
		Message: "Hello there",
	}, f)
}
