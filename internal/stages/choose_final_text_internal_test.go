package stages

import (
	"strings"
	"testing"

	"github.com/adverant/nexus/docpipeline/internal/backend"
)

func TestChooseFinalTextPicksLongestCandidateOverNative(t *testing.T) {
	candidates := []backend.AnalysisResult{
		{Text: "short"},
		{Text: "a much longer recognized passage of text"},
	}
	got, _ := chooseFinalText(candidates, "")
	if got != "a much longer recognized passage of text" {
		t.Errorf("chooseFinalText picked %q", got)
	}
}

func TestChooseFinalTextImprovedRequiresTwentyPercentGain(t *testing.T) {
	candidates := []backend.AnalysisResult{{Text: "0123456789012"}} // 13 non-whitespace chars

	_, improved := chooseFinalText(candidates, strings.Repeat("x", 10))
	if !improved {
		t.Error("expected improved=true: 13 > 10*1.2=12")
	}

	_, improved = chooseFinalText(candidates, strings.Repeat("x", 11))
	if improved {
		t.Error("expected improved=false: 13 is not > 11*1.2=13.2")
	}
}

func TestChooseFinalTextNoCandidatesReturnsNativeText(t *testing.T) {
	got, improved := chooseFinalText(nil, "native text")
	if got != "native text" || improved {
		t.Errorf("chooseFinalText(nil, native) = (%q, %v), want (\"native text\", false)", got, improved)
	}
}

func TestChooseFinalTextNoCandidatesAndEmptyNativeReturnsEmpty(t *testing.T) {
	got, improved := chooseFinalText(nil, "")
	if got != "" || improved {
		t.Errorf("chooseFinalText(nil, \"\") = (%q, %v), want (\"\", false)", got, improved)
	}
}

// Mirrors the worked example: native extraction yields 300/250/280
// non-whitespace chars per page, a single-backend entry returns
// 290/245/275 chars. Every page must keep the native text since no
// backend result exceeds it.
func TestChooseFinalTextNativeWinsWhenBackendIsShorter(t *testing.T) {
	pages := []struct {
		native  int
		backend int
	}{
		{300, 290},
		{250, 245},
		{280, 275},
	}
	for _, p := range pages {
		native := strings.Repeat("n", p.native)
		candidates := []backend.AnalysisResult{{Text: strings.Repeat("b", p.backend)}}

		got, improved := chooseFinalText(candidates, native)
		if got != native {
			t.Errorf("native=%d backend=%d: chooseFinalText picked the %d-char backend result instead of native text", p.native, p.backend, p.backend)
		}
		if improved {
			t.Errorf("native=%d backend=%d: improved should be false when native text wins", p.native, p.backend)
		}
	}
}

// Mirrors the worked example: page 1 native=500 beats tesseract=480 (native
// wins, not improved); page 2 native=5 loses to tesseract=450 (improved,
// since 450 > 5*1.2).
func TestChooseFinalTextMixedPagesFollowWorkedExample(t *testing.T) {
	page1Native := strings.Repeat("n", 500)
	page1Backend := []backend.AnalysisResult{{Text: strings.Repeat("b", 480)}}
	got, improved := chooseFinalText(page1Backend, page1Native)
	if got != page1Native {
		t.Error("page 1: expected native text to win (500 > 480)")
	}
	if improved {
		t.Error("page 1: expected improved=false")
	}

	page2Native := strings.Repeat("n", 5)
	page2Backend := []backend.AnalysisResult{{Text: strings.Repeat("b", 450)}}
	got, improved = chooseFinalText(page2Backend, page2Native)
	if got != page2Backend[0].Text {
		t.Error("page 2: expected backend text to win (450 > 5)")
	}
	if !improved {
		t.Error("page 2: expected improved=true (450 > 5*1.2)")
	}
}
