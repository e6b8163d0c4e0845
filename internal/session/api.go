package session

import (
	"context"
	"errors"

	"github.com/huynhthien07/lingo/internal/exam"
)

// AttemptAPI is the remote surface a test session runs against. The HTTP
// implementation lives in internal/apiclient; tests use fakes.
type AttemptAPI interface {
	// FetchTest loads the immutable test definition (student-safe view).
	FetchTest(ctx context.Context, testID string) (exam.Test, error)

	// Start creates the attempt; the returned StartedAt is authoritative
	// for the countdown.
	Start(ctx context.Context, testID string) (exam.Attempt, error)

	// SaveAnswer upserts one answer. Fire-and-forget from the session's
	// point of view; the sheet retries transient failures.
	SaveAnswer(ctx context.Context, attemptID string, ans exam.Answer) error

	// Complete submits the attempt for scoring.
	Complete(ctx context.Context, attemptID string) (exam.Attempt, error)

	// Abandon discards the attempt. Best-effort.
	Abandon(ctx context.Context, attemptID string) error
}

var (
	// ErrStaleSave marks a save the server discarded because a newer write
	// for the same question already landed. Benign: the local state is
	// ahead, not behind.
	ErrStaleSave = errors.New("save superseded by a newer write")
)
