package store

import (
	"strings"
	"testing"
)

func TestResolvePathPrefersStoredPath(t *testing.T) {
	got := ResolvePath("/documents", "/explicit/stored/path.pdf", "abc123", "application/pdf", "", "")
	if got != "/explicit/stored/path.pdf" {
		t.Errorf("ResolvePath() = %q, want explicit stored path", got)
	}
}

func TestResolvePathFallsBackToComputedPath(t *testing.T) {
	got := ResolvePath("/documents", "", "abcdef0123456789", "message/rfc822", "https://example.com/memo", "Weekly Memo")
	want := ComputeStoragePath("/documents", "abcdef0123456789", "message/rfc822", "https://example.com/memo", "Weekly Memo")
	if got != want {
		t.Errorf("ResolvePath() = %q, want %q", got, want)
	}
	if !strings.HasSuffix(got, ".eml") {
		t.Errorf("ResolvePath() = %q, want .eml suffix", got)
	}
}

func TestComputeStoragePathShardsByHashPrefix(t *testing.T) {
	got := ComputeStoragePath("/documents", "ab1234567890", "message/rfc822", "", "memo")
	if !strings.Contains(got, "/documents/ab/") {
		t.Errorf("ComputeStoragePath() = %q, want shard /ab/", got)
	}
}

func TestComputeStoragePathFallsBackToZeroShardForShortHash(t *testing.T) {
	got := ComputeStoragePath("/documents", "a", "message/rfc822", "", "memo")
	if !strings.Contains(got, "/documents/00/") {
		t.Errorf("ComputeStoragePath() = %q, want shard /00/", got)
	}
}

func TestFilenameDerivedFromPrefersTitleOverSourceURL(t *testing.T) {
	got := filenameDerivedFrom("hash1234567890ab", "My Report!", "https://example.com/x")
	if !strings.HasPrefix(got, "My_Report") {
		t.Errorf("filenameDerivedFrom() = %q, want My_Report prefix", got)
	}
	if !strings.HasSuffix(got, "hash1234567890ab") {
		t.Errorf("filenameDerivedFrom() = %q, want hash suffix", got)
	}
}

func TestFilenameDerivedFromFallsBackToSourceURL(t *testing.T) {
	got := filenameDerivedFrom("hash1234567890ab", "", "https://example.com/path")
	if !strings.Contains(got, "https___example.com_path") {
		t.Errorf("filenameDerivedFrom() = %q, want sanitized source url", got)
	}
}

func TestFilenameDerivedFromEmptyTitleAndURLReturnsHashOnly(t *testing.T) {
	got := filenameDerivedFrom("hash1234567890ab", "", "")
	if got != "hash1234567890ab" {
		t.Errorf("filenameDerivedFrom() = %q, want bare hash", got)
	}
}

func TestFilenameDerivedFromTruncatesLongTitles(t *testing.T) {
	longTitle := strings.Repeat("x", 200)
	got := filenameDerivedFrom("hash1234567890ab", longTitle, "")
	base := strings.TrimSuffix(got, "-hash1234567890ab")
	if len(base) > 80 {
		t.Errorf("filenameDerivedFrom() base length = %d, want <= 80", len(base))
	}
}

func TestExtensionForMimeEmptyReturnsEmpty(t *testing.T) {
	if got := extensionForMime(""); got != "" {
		t.Errorf("extensionForMime(\"\") = %q, want empty", got)
	}
}

func TestExtensionForMimeFallsBackForUncommonType(t *testing.T) {
	if got := extensionForMime("message/rfc822"); got != ".eml" {
		t.Errorf("extensionForMime(message/rfc822) = %q, want .eml", got)
	}
}

func TestHashImageBytesIsDeterministicAndPageSensitive(t *testing.T) {
	data := []byte("page bytes")
	h1 := HashImageBytes(data, 1)
	h2 := HashImageBytes(data, 1)
	if h1 != h2 {
		t.Error("HashImageBytes should be deterministic for the same input")
	}
	h3 := HashImageBytes(data, 2)
	if h1 == h3 {
		t.Error("HashImageBytes should differ across page numbers")
	}
}
