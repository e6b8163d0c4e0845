package grading

import (
	"context"
	"testing"
)

func TestOptionGrading(t *testing.T) {
	g := NewDefaultGrader()
	ctx := context.Background()
	q := Q{Points: 2, OptionKey: []string{"b"}}

	res, err := g.Grade(ctx, q, Response{Kind: "option", Value: "b"})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if res.AutoPoints != 2 || res.NeedsManual {
		t.Fatalf("correct option: %+v", res)
	}

	res, err = g.Grade(ctx, q, Response{Kind: "option", Value: "a"})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if res.AutoPoints != 0 {
		t.Fatalf("wrong option scored %v", res.AutoPoints)
	}

	if _, err := g.Grade(ctx, q, Response{Kind: "option", Value: ""}); err == nil {
		t.Fatal("empty option response accepted")
	}
}

func TestGapFillGrading(t *testing.T) {
	g := NewDefaultGrader()
	ctx := context.Background()
	q := Q{Points: 1, TextKey: []string{"harbour", "harbor"}}

	cases := []struct {
		in   string
		want float64
	}{
		{"harbour", 1},
		{"  Harbour. ", 1}, // case, spacing and punctuation ignored
		{"harbor", 1},      // alternate key
		{"harbourr", 0.5},  // one edit away: fuzzy half credit
		{"port", 0},
		{"", 0},
	}
	for _, c := range cases {
		res, err := g.Grade(ctx, q, Response{Kind: "text", Value: c.in})
		if err != nil {
			t.Fatalf("Grade(%q): %v", c.in, err)
		}
		if res.AutoPoints != c.want {
			t.Errorf("Grade(%q) = %v, want %v", c.in, res.AutoPoints, c.want)
		}
	}
}

func TestGapFillTuning(t *testing.T) {
	g := NewDefaultGrader(WithMaxEditDistance(0), WithFuzzyCredit(0))
	res, err := g.Grade(context.Background(),
		Q{Points: 1, TextKey: []string{"harbour"}},
		Response{Kind: "text", Value: "harbourr"})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if res.AutoPoints != 0 {
		t.Fatalf("strict mode gave %v for a typo", res.AutoPoints)
	}
}

func TestManualRouting(t *testing.T) {
	g := NewDefaultGrader()
	ctx := context.Background()

	// manual skill always defers to the teacher, whatever the kind
	res, err := g.Grade(ctx, Q{Points: 5, Manual: true}, Response{Kind: "text", Value: "essay"})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if !res.NeedsManual || res.AutoPoints != 0 || res.MaxPoints != 5 {
		t.Fatalf("manual question: %+v", res)
	}

	// audio responses have no auto strategy
	res, err = g.Grade(ctx, Q{Points: 5}, Response{Kind: "audio", Value: "rec-key"})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if !res.NeedsManual {
		t.Fatalf("audio response: %+v", res)
	}

	// keyless free text is manual too
	res, err = g.Grade(ctx, Q{Points: 5}, Response{Kind: "text", Value: "essay"})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if !res.NeedsManual {
		t.Fatalf("keyless text: %+v", res)
	}
}

func TestBand(t *testing.T) {
	cases := []struct {
		raw, max, want float64
	}{
		{0, 40, 0},
		{40, 40, 9},
		{20, 40, 4.5},
		{6, 7, 7.5},
		{30, 40, 7},  // 6.75 rounds up
		{50, 40, 9},  // clamped
		{-1, 40, 0},  // clamped
		{10, 0, 0},   // degenerate max
	}
	for _, c := range cases {
		if got := Band(c.raw, c.max); got != c.want {
			t.Errorf("Band(%v, %v) = %v, want %v", c.raw, c.max, got, c.want)
		}
	}
}

func TestScoreRubricClamps(t *testing.T) {
	r := WritingRubric(8) // 2 points per criterion
	total, notes := ScoreRubric(r, map[string]float64{
		"task_achievement": 5,  // over per-criterion max, clamped to 2
		"coherence":        -1, // clamped to 0
		"lexical":          1.5,
		"grammar":          2,
	})
	if total != 5.5 {
		t.Fatalf("total = %v, want 5.5", total)
	}
	if len(notes) != 4 {
		t.Fatalf("notes = %v", notes)
	}

	sp := SpeakingRubric(8)
	if len(sp.Criteria) != 4 || sp.Criteria[3].Key != "pronunciation" {
		t.Fatalf("speaking rubric = %+v", sp)
	}
}

func TestNormalizeAndDistance(t *testing.T) {
	if got := normalize("  The  Harbour-Master! "); got != "the harbourmaster" {
		t.Fatalf("normalize = %q", got)
	}
	if d := levenshtein("harbour", "harbor"); d != 1 {
		t.Fatalf("levenshtein = %d", d)
	}
	if d := levenshtein("", "abc"); d != 3 {
		t.Fatalf("levenshtein empty = %d", d)
	}
}
