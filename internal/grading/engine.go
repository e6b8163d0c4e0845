package grading

import (
	"context"
	"errors"
)

// Q is the minimal view of a question needed for grading. Keep this in sync
// with the store's question fields.
type Q struct {
	Points    float64
	OptionKey []string // correct option ids (multiple choice)
	TextKey   []string // accepted answers (gap-fill)
	Manual    bool     // writing/speaking: always teacher-graded
}

// Response is one saved answer value. Kind matches the answer union tag:
// option|text|audio.
type Response struct {
	Kind  string
	Value string
}

// Result is the outcome of grading a single response.
type Result struct {
	AutoPoints  float64
	MaxPoints   float64
	NeedsManual bool
	Feedback    []string
}

// Strategy grades a single response.
type Strategy interface {
	Grade(ctx context.Context, q Q, resp Response) (Result, error)
}

// Grader routes by response kind to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q Q, resp Response) (Result, error)
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q Q, resp Response) (Result, error) {
	if q.Manual {
		return Result{MaxPoints: q.Points, NeedsManual: true}, nil
	}
	s, ok := g.strategies[resp.Kind]
	if !ok {
		return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: []string{"no strategy for kind " + resp.Kind}}, nil
	}
	return s.Grade(ctx, q, resp)
}

type config struct {
	MaxEditDistance int     // fuzzy tolerance for gap-fill answers
	FuzzyCredit     float64 // share of points for a close match
}

type EngineOption func(*config)

func WithMaxEditDistance(n int) EngineOption { return func(c *config) { c.MaxEditDistance = n } }
func WithFuzzyCredit(share float64) EngineOption { return func(c *config) { c.FuzzyCredit = share } }

// NewDefaultGrader installs the built-in strategies.
func NewDefaultGrader(opts ...EngineOption) Grader {
	cfg := &config{
		MaxEditDistance: 1,
		FuzzyCredit:     0.5,
	}
	for _, o := range opts {
		o(cfg)
	}
	return &defaultGrader{
		strategies: map[string]Strategy{
			"option": optionStrategy{},
			"text":   gapFillStrategy{maxEdit: cfg.MaxEditDistance, fuzzyCredit: cfg.FuzzyCredit},
			"audio":  manualStrategy{},
		},
	}
}

// --- Strategies ---

type optionStrategy struct{}

func (optionStrategy) Grade(_ context.Context, q Q, resp Response) (Result, error) {
	res := Result{MaxPoints: q.Points}
	if resp.Value == "" {
		return res, errors.New("empty option response")
	}
	for _, k := range q.OptionKey {
		if resp.Value == k {
			res.AutoPoints = q.Points
			return res, nil
		}
	}
	return res, nil
}

type gapFillStrategy struct {
	maxEdit     int
	fuzzyCredit float64
}

func (s gapFillStrategy) Grade(_ context.Context, q Q, resp Response) (Result, error) {
	res := Result{MaxPoints: q.Points}
	if len(q.TextKey) == 0 {
		// free text without a key: teacher territory
		res.NeedsManual = true
		return res, nil
	}
	norm := normalize(resp.Value)
	near := false
	for _, k := range q.TextKey {
		nk := normalize(k)
		if nk == norm {
			res.AutoPoints = q.Points
			return res, nil
		}
		if s.maxEdit > 0 && levenshtein(nk, norm) <= s.maxEdit {
			near = true
		}
	}
	if near {
		res.AutoPoints = q.Points * s.fuzzyCredit
		res.Feedback = append(res.Feedback, "close match (fuzzy)")
	}
	return res, nil
}

type manualStrategy struct{}

func (manualStrategy) Grade(_ context.Context, q Q, _ Response) (Result, error) {
	return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: []string{"manual grading required"}}, nil
}
