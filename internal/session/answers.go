package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/huynhthien07/lingo/internal/exam"
)

// AnswerSheet holds the local answer for every question touched and mirrors
// each change to the attempt record on the server. The local write is
// synchronous; the remote save runs in its own goroutine so a slow or
// failing network never blocks navigation or further answering. A failed
// save is retried a bounded number of times and then logged; it is never
// allowed to revert the local answer.
type AnswerSheet struct {
	api       AttemptAPI
	attemptID string

	mu      sync.Mutex
	answers map[string]exam.AnswerValue

	seq      atomic.Int64 // monotonic across all saves; server rejects stale
	inflight sync.WaitGroup

	retries int
	backoff time.Duration
	logf    func(format string, args ...any)
}

type SheetOption func(*AnswerSheet)

// WithSaveRetries bounds retry count and initial backoff for failed saves.
func WithSaveRetries(n int, backoff time.Duration) SheetOption {
	return func(s *AnswerSheet) { s.retries = n; s.backoff = backoff }
}

// WithSheetLogger overrides the failure logger.
func WithSheetLogger(logf func(format string, args ...any)) SheetOption {
	return func(s *AnswerSheet) { s.logf = logf }
}

func NewAnswerSheet(api AttemptAPI, attemptID string, opts ...SheetOption) *AnswerSheet {
	s := &AnswerSheet{
		api:       api,
		attemptID: attemptID,
		answers:   map[string]exam.AnswerValue{},
		retries:   3,
		backoff:   250 * time.Millisecond,
		logf:      log.Printf,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Set replaces the answer for a question (last write wins locally) and
// kicks off the async save. Returns immediately after the local update.
func (s *AnswerSheet) Set(ctx context.Context, questionID string, v exam.AnswerValue) {
	s.mu.Lock()
	s.answers[questionID] = v
	s.mu.Unlock()

	ans := exam.Answer{
		QuestionID: questionID,
		Value:      v,
		Seq:        s.seq.Add(1),
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.save(ctx, ans)
	}()
}

func (s *AnswerSheet) save(ctx context.Context, ans exam.Answer) {
	backoff := s.backoff
	var err error
	for try := 0; try <= s.retries; try++ {
		if try > 0 {
			select {
			case <-ctx.Done():
				s.logf("answer save canceled: question=%s: %v", ans.QuestionID, ctx.Err())
				return
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		err = s.api.SaveAnswer(ctx, s.attemptID, ans)
		if err == nil {
			return
		}
		if errors.Is(err, ErrStaleSave) {
			// a newer local write already reached the server; nothing lost
			return
		}
	}
	// surfaced, not retried further: a reload before submit would lose this
	// answer locally, but the last acked save still stands server-side
	s.logf("answer save failed after %d retries: question=%s seq=%d: %v",
		s.retries, ans.QuestionID, ans.Seq, err)
}

// Get returns the local answer for a question, if any.
func (s *AnswerSheet) Get(questionID string) (exam.AnswerValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.answers[questionID]
	return v, ok
}

// AnsweredCount recounts questions with a non-empty value on every call;
// the progress bar and submit confirmation must never see a stale cache.
func (s *AnswerSheet) AnsweredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.answers {
		if !v.Empty() {
			n++
		}
	}
	return n
}

// Snapshot copies the current local answers.
func (s *AnswerSheet) Snapshot() map[string]exam.AnswerValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]exam.AnswerValue, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// Drain waits for in-flight saves to settle, up to the timeout. Used before
// submit so the server sees the freshest answers; a timeout is not an error
// (saves keep retrying in the background).
func (s *AnswerSheet) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
