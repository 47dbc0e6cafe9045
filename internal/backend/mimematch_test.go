package backend

import "testing"

func TestMatchMimetype(t *testing.T) {
	cases := []struct {
		pattern, mimeType string
		want              bool
	}{
		{"*", "image/png", true},
		{"*/*", "audio/wav", true},
		{"audio/*", "audio/wav", true},
		{"audio/*", "image/png", false},
		{"application/pdf", "application/pdf", true},
		{"application/pdf", "application/zip", false},
	}
	for _, c := range cases {
		if got := matchMimetype(c.pattern, c.mimeType); got != c.want {
			t.Errorf("matchMimetype(%q, %q) = %v, want %v", c.pattern, c.mimeType, got, c.want)
		}
	}
}

func TestMatchAnyMimetype(t *testing.T) {
	patterns := []string{"audio/*", "video/mp4"}
	if !matchAnyMimetype(patterns, "video/mp4") {
		t.Error("expected video/mp4 to match")
	}
	if matchAnyMimetype(patterns, "image/png") {
		t.Error("expected image/png not to match")
	}
}
