package normalize

import (
	"encoding/json"
	"errors"
	"testing"

	"cvinsight/internal/analysis"
)

func TestNormalizeFencedReply(t *testing.T) {
	raw := "```json\n{\"score\": 42}\n```"
	a, err := Normalize(raw, analysis.KindGeneralHealthCheck, analysis.ProviderA)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if a.Score != 42 {
		t.Fatalf("expected score 42, got %d", a.Score)
	}
	for name, s := range map[string][]string{
		"strengths": a.Strengths, "weaknesses": a.Weaknesses,
		"recommendations": a.Recommendations, "keywords": a.Keywords,
	} {
		if s == nil || len(s) != 0 {
			t.Fatalf("%s should default to an empty sequence, got %#v", name, s)
		}
	}
	if a.DetailedFeedback != "" {
		t.Fatalf("detailed_feedback should default to empty, got %q", a.DetailedFeedback)
	}
}

func TestNormalizeClampsScore(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{`{"score": -5}`, 0},
		{`{"score": 150}`, 100},
		{`{"score": 77.6}`, 78},
		{`{"score": "85"}`, 85},
		{`{"score": "85/100"}`, 85},
		{`{"score": "90%"}`, 90},
	}
	for _, tc := range cases {
		a, err := Normalize(tc.raw, analysis.KindComprehensiveScore, analysis.ProviderB)
		if err != nil {
			t.Fatalf("Normalize(%s): %v", tc.raw, err)
		}
		if a.Score != tc.want {
			t.Fatalf("Normalize(%s) score=%d want %d", tc.raw, a.Score, tc.want)
		}
	}
}

func TestNormalizeRejectsReplies(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"prose", "sorry, I can't help with that"},
		{"no score", `{"strengths": ["clear"]}`},
		{"bad score", `{"score": "excellent"}`},
		{"bool score", `{"score": true}`},
		{"unbalanced", `{"score": 10`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(tc.raw, analysis.KindGeneralHealthCheck, analysis.ProviderC)
			if !errors.Is(err, analysis.ErrMalformedResponse) {
				t.Fatalf("expected MalformedResponse, got %v", err)
			}
			e, _ := analysis.AsError(err)
			if e.Raw != tc.raw || e.Provider != analysis.ProviderC {
				t.Fatalf("raw reply and provider must be kept, got %#v", e)
			}
		})
	}
}

func TestNormalizeOverridesIdentityAndKeepsExtra(t *testing.T) {
	raw := `Here is the analysis you asked for:
{
  "score": 81,
  "analysis_type": "something_else",
  "ai_provider": "Z",
  "strengths": ["clear layout", 3, {"note": "uses {braces}"}],
  "keywords": "golang",
  "detailed_feedback": "Strong \"backend\" profile } with braces",
  "section_scores": {"summary": 70, "experience": 90}
}
Let me know if you need anything else {not json}.`

	a, err := Normalize(raw, analysis.KindContentQualityAnalysis, analysis.ProviderB)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if a.AnalysisType != analysis.KindContentQualityAnalysis || a.AIProvider != analysis.ProviderB {
		t.Fatalf("identity not overridden: %s/%s", a.AnalysisType, a.AIProvider)
	}
	wantStrengths := []string{"clear layout", "3", `{"note":"uses {braces}"}`}
	if len(a.Strengths) != len(wantStrengths) {
		t.Fatalf("unexpected strengths %#v", a.Strengths)
	}
	for i := range wantStrengths {
		if a.Strengths[i] != wantStrengths[i] {
			t.Fatalf("strengths[%d]=%q want %q", i, a.Strengths[i], wantStrengths[i])
		}
	}
	if len(a.Keywords) != 1 || a.Keywords[0] != "golang" {
		t.Fatalf("unexpected keywords %#v", a.Keywords)
	}
	if a.DetailedFeedback != `Strong "backend" profile } with braces` {
		t.Fatalf("unexpected feedback %q", a.DetailedFeedback)
	}

	scores, ok := a.Extra["section_scores"].(map[string]any)
	if !ok {
		t.Fatalf("section_scores not preserved: %#v", a.Extra)
	}
	if scores["experience"] != json.Number("90") {
		t.Fatalf("unexpected nested value %#v", scores["experience"])
	}
	if _, ok := a.Extra["analysis_type"]; ok {
		t.Fatalf("known fields must not leak into Extra")
	}
}

func TestNormalizeSkipsUnparseableCandidate(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"balanced placeholder before fence", "Template: {name} ...\n```\n{\"score\": 55, \"weaknesses\": [\"long\"]}\n```"},
		{"unbalanced brace before fence", "Note: the template used a { placeholder.\n```json\n{\"score\": 55, \"weaknesses\": [\"long\"]}\n```"},
		{"stray quote and brace in chatter", "He said \"use { here.\n{\"score\": 55, \"weaknesses\": [\"long\"]}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := Normalize(tc.raw, analysis.KindToneStyleEvaluation, analysis.ProviderA)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if a.Score != 55 || len(a.Weaknesses) != 1 {
				t.Fatalf("unexpected artifact %+v", a)
			}
		})
	}
}

func TestNormalizeCoercesSequenceElements(t *testing.T) {
	a, err := Normalize(`{"score": 70, "keywords": ["a", null, 3, true]}`, analysis.KindATSCompatibilityVerification, analysis.ProviderB)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := []string{"a", "", "3", "true"}
	if len(a.Keywords) != len(want) {
		t.Fatalf("keywords=%q want %q", a.Keywords, want)
	}
	for i := range want {
		if a.Keywords[i] != want[i] {
			t.Fatalf("keywords=%q want %q", a.Keywords, want)
		}
	}
}

func TestNormalizeInvariants(t *testing.T) {
	replies := []string{
		`{"score": 0}`, `{"score": 100, "strengths": null}`, `{"score": "-20"}`,
		`{"score": 1e3, "keywords": [1, 2, null]}`, "```\n{\"score\": 12.4}\n```",
	}
	for _, kind := range analysis.Kinds() {
		for _, provider := range analysis.Providers() {
			for _, raw := range replies {
				a, err := Normalize(raw, kind, provider)
				if err != nil {
					t.Fatalf("Normalize(%q): %v", raw, err)
				}
				if a.Score < 0 || a.Score > 100 {
					t.Fatalf("score out of range: %d", a.Score)
				}
				if a.AnalysisType != kind || a.AIProvider != provider {
					t.Fatalf("identity mismatch for %q", raw)
				}
				if a.Strengths == nil || a.Weaknesses == nil || a.Recommendations == nil || a.Keywords == nil {
					t.Fatalf("sequences must never be nil for %q", raw)
				}
			}
		}
	}
}
