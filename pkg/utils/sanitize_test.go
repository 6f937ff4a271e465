package utils

import (
	"strings"
	"testing"
)

func TestSanitizeText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"trims whitespace", "  hello  ", 100, "hello"},
		{"escapes markup", `<script>alert("x")</script>`, 200, "&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt;"},
		{"strips control chars", "he\x00ll\x07o", 100, "hello"},
		{"keeps newlines", "line1\nline2", 100, "line1\nline2"},
		{"truncates by rune", "héllo wörld", 5, "héllo"},
		{"empty stays empty", "   ", 100, ""},
	}
	for _, tc := range cases {
		if got := SanitizeText(tc.in, tc.max); got != tc.want {
			t.Errorf("%s: SanitizeText(%q, %d) = %q, want %q", tc.name, tc.in, tc.max, got, tc.want)
		}
	}
}

func TestSanitizeTextStatusCap(t *testing.T) {
	long := strings.Repeat("s", MaxStatusLength*2)
	got := SanitizeText(long, MaxStatusLength)
	if len([]rune(got)) != MaxStatusLength {
		t.Errorf("status length = %d, want %d", len([]rune(got)), MaxStatusLength)
	}
}
