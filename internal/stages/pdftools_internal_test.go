package stages

import "testing"

func TestPagesLineRegexExtractsCount(t *testing.T) {
	output := "Title:          report\nPages:          42\nEncrypted:      no\n"
	match := pagesLineRe.FindStringSubmatch(output)
	if match == nil {
		t.Fatal("expected a match")
	}
	if match[1] != "42" {
		t.Errorf("got %q, want 42", match[1])
	}
}

func TestPagesLineRegexNoMatchWithoutPagesLine(t *testing.T) {
	if pagesLineRe.FindStringSubmatch("Title: report\n") != nil {
		t.Error("expected no match")
	}
}
