package session

import (
	"context"
	"sync"
	"time"

	"github.com/huynhthien07/lingo/internal/exam"
)

// fakeAPI is an in-memory AttemptAPI with scriptable failures.
type fakeAPI struct {
	mu sync.Mutex

	test exam.Test

	saves        []exam.Answer
	saveFailures int   // fail this many saves before succeeding
	saveErr      error // error used for scripted failures

	completes    int
	completeErrs []error       // popped per call; nil means success
	completeGate chan struct{} // when set, Complete blocks until closed

	abandons   int
	abandonErr error
}

func newFakeAPI(t exam.Test) *fakeAPI { return &fakeAPI{test: t} }

func (f *fakeAPI) FetchTest(_ context.Context, testID string) (exam.Test, error) {
	if testID != f.test.ID {
		return exam.Test{}, exam.ErrTestNotFound
	}
	return f.test, nil
}

func (f *fakeAPI) Start(_ context.Context, testID string) (exam.Attempt, error) {
	now := time.Now().Unix()
	return exam.Attempt{
		ID:        "attempt-1",
		TestID:    testID,
		UserID:    "student-1",
		Status:    exam.StatusInProgress,
		StartedAt: now,
		Deadline:  now + int64(f.test.DurationMin)*60,
		Answers:   map[string]exam.Answer{},
	}, nil
}

func (f *fakeAPI) SaveAnswer(_ context.Context, _ string, ans exam.Answer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveFailures > 0 {
		f.saveFailures--
		return f.saveErr
	}
	f.saves = append(f.saves, ans)
	return nil
}

func (f *fakeAPI) Complete(_ context.Context, attemptID string) (exam.Attempt, error) {
	f.mu.Lock()
	gate := f.completeGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes++
	if len(f.completeErrs) > 0 {
		err := f.completeErrs[0]
		f.completeErrs = f.completeErrs[1:]
		if err != nil {
			return exam.Attempt{}, err
		}
	}
	return exam.Attempt{ID: attemptID, Status: exam.StatusSubmitted}, nil
}

func (f *fakeAPI) Abandon(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandons++
	return f.abandonErr
}

func (f *fakeAPI) savedAnswers() []exam.Answer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]exam.Answer, len(f.saves))
	copy(out, f.saves)
	return out
}

func (f *fakeAPI) completeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completes
}

func (f *fakeAPI) abandonCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.abandons
}

// waitFor polls cond until true or the timeout elapses.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
