package exam

import (
	"context"
	"errors"
)

var (
	ErrTestNotFound    = errors.New("test not found")
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrAttemptFinished = errors.New("attempt already finished")
	ErrAttemptActive   = errors.New("attempt already in progress for this test")
	ErrUnknownQuestion = errors.New("question does not belong to the test")
	ErrStaleWrite      = errors.New("stale answer write discarded")
	ErrPastDeadline    = errors.New("attempt deadline has passed")
)

// SaveGraceSec is the slack allowed on answer saves past the nominal
// deadline, covering a final autosave racing the client's own countdown.
// Completes arriving later than this are still accepted but flagged
// timed-out; the server, not the client clock, decides.
const SaveGraceSec = 30

type ListOpts struct {
	Q      string
	Limit  int
	Offset int
}

type AttemptListOpts struct {
	TestID string
	UserID string
	Status string // in_progress|submitted|abandoned
	Limit  int
	Offset int
}

// TestSummary is the listing row (no sections).
type TestSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	DurationMin int    `json:"duration_min"`
	Sections    int    `json:"sections"`
	Questions   int    `json:"questions"`
	CreatedAt   int64  `json:"created_at"`
}

type ManualGradeInput struct {
	Points  float64 `json:"points"`
	Comment string  `json:"comment,omitempty"`
}

type Store interface {
	PutTest(ctx context.Context, t Test) error
	GetTest(ctx context.Context, id string) (Test, error)     // student-safe (correctness stripped)
	GetTestFull(ctx context.Context, id string) (Test, error) // with keys, for grading/export
	ListTests(ctx context.Context, opts ListOpts) ([]TestSummary, error)

	// StartAttempt assigns the authoritative id, start time and deadline.
	// At most one in-progress attempt per (user, test).
	StartAttempt(ctx context.Context, testID, userID string) (Attempt, error)

	// SaveAnswer upserts the latest answer for one question. Saves against a
	// finished attempt, an unknown question, a passed deadline, or with a
	// stale Seq are rejected.
	SaveAnswer(ctx context.Context, attemptID string, ans Answer) (Attempt, error)

	// CompleteAttempt is idempotent: completing a submitted attempt returns
	// it unchanged. Objective answers are auto-scored; writing/speaking are
	// left for manual grading.
	CompleteAttempt(ctx context.Context, attemptID string) (Attempt, error)

	// AbandonAttempt discards the attempt from scoring. Idempotent on
	// already-abandoned attempts; rejected after submit.
	AbandonAttempt(ctx context.Context, attemptID string) (Attempt, error)

	GetAttempt(ctx context.Context, id string) (Attempt, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)

	// ApplyManualGrades records teacher points for writing/speaking answers;
	// finalize recomputes the total and band.
	ApplyManualGrades(ctx context.Context, attemptID string, updates map[string]ManualGradeInput, gradedBy string, finalize bool) (Attempt, error)
}
