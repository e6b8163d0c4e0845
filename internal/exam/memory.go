package exam

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/huynhthien07/lingo/internal/grading"
)

// memoryStore mirrors SQLStore semantics without a database. Used in tests
// and for quick local runs.
type memoryStore struct {
	mu       sync.RWMutex
	tests    map[string]Test
	attempts map[string]Attempt
	grader   grading.Grader
	now      func() time.Time
}

func NewInMemoryStore() Store {
	return &memoryStore{
		tests:    map[string]Test{},
		attempts: map[string]Attempt{},
		grader:   grading.NewDefaultGrader(),
		now:      time.Now,
	}
}

// NewInMemoryStoreAt pins the clock, for deadline tests.
func NewInMemoryStoreAt(now func() time.Time) Store {
	s := NewInMemoryStore().(*memoryStore)
	s.now = now
	return s
}

func (m *memoryStore) PutTest(_ context.Context, t Test) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.CreatedAt == 0 {
		t.CreatedAt = m.now().Unix()
	}
	m.tests[t.ID] = t
	return nil
}

func (m *memoryStore) GetTest(_ context.Context, id string) (Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tests[id]
	if !ok {
		return Test{}, ErrTestNotFound
	}
	return stripKeys(t), nil
}

func (m *memoryStore) GetTestFull(_ context.Context, id string) (Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tests[id]
	if !ok {
		return Test{}, ErrTestNotFound
	}
	return t, nil
}

func (m *memoryStore) ListTests(_ context.Context, opts ListOpts) ([]TestSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []TestSummary{}
	for _, t := range m.tests {
		if opts.Q != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(opts.Q)) {
			continue
		}
		out = append(out, TestSummary{
			ID: t.ID, Title: t.Title, DurationMin: t.DurationMin,
			Sections: len(t.Sections), Questions: t.QuestionCount(), CreatedAt: t.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

func (m *memoryStore) StartAttempt(_ context.Context, testID, userID string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tests[testID]
	if !ok {
		return Attempt{}, ErrTestNotFound
	}
	for _, a := range m.attempts {
		if a.TestID == testID && a.UserID == userID && a.Status == StatusInProgress {
			return Attempt{}, ErrAttemptActive
		}
	}
	now := m.now().Unix()
	a := Attempt{
		ID:        uuid.NewString(),
		TestID:    testID,
		UserID:    userID,
		Status:    StatusInProgress,
		StartedAt: now,
		Deadline:  now + int64(t.DurationMin)*60,
		Answers:   map[string]Answer{},
	}
	m.attempts[a.ID] = a
	return cloneAttempt(a), nil
}

func (m *memoryStore) SaveAnswer(_ context.Context, attemptID string, ans Answer) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if a.Status != StatusInProgress {
		return Attempt{}, ErrAttemptFinished
	}
	now := m.now().Unix()
	if now > a.Deadline+SaveGraceSec {
		return Attempt{}, ErrPastDeadline
	}
	t := m.tests[a.TestID]
	q, sec, ok := t.FindQuestion(ans.QuestionID)
	if !ok {
		return Attempt{}, ErrUnknownQuestion
	}
	if ans.Value.Kind == AnswerOption && !hasOption(q, ans.Value.Value) {
		return Attempt{}, ErrUnknownQuestion
	}
	if prev, has := a.Answers[ans.QuestionID]; has && ans.Seq <= prev.Seq {
		return Attempt{}, ErrStaleWrite
	}
	ans.Skill = sec.Skill
	ans.SavedAt = now
	a.Answers[ans.QuestionID] = ans
	m.attempts[attemptID] = a
	return cloneAttempt(a), nil
}

func (m *memoryStore) CompleteAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if a.Status == StatusSubmitted {
		return cloneAttempt(a), nil
	}
	if a.Status == StatusAbandoned {
		return Attempt{}, ErrAttemptFinished
	}
	t := m.tests[a.TestID]
	now := m.now().Unix()

	score := 0.0
	pendingManual := false
	for _, sec := range t.Sections {
		for _, q := range sec.Questions {
			ans, has := a.Answers[q.ID]
			if !has || ans.Value.Empty() {
				continue
			}
			gq := grading.Q{
				Points:    q.Points,
				OptionKey: correctOptionIDs(q),
				TextKey:   q.Accepted,
				Manual:    sec.Skill.Manual(),
			}
			res, err := m.grader.Grade(ctx, gq, grading.Response{Kind: string(ans.Value.Kind), Value: ans.Value.Value})
			if err != nil {
				continue
			}
			ans.Points = res.AutoPoints
			ans.NeedsManual = res.NeedsManual
			a.Answers[q.ID] = ans
			if res.NeedsManual {
				pendingManual = true
			}
			score += res.AutoPoints
		}
	}
	a.Score = score
	if !pendingManual {
		a.Band = grading.Band(score, totalPoints(t))
	}
	a.Status = StatusSubmitted
	a.EndedAt = now
	a.TimedOut = now > a.Deadline+SaveGraceSec
	m.attempts[attemptID] = a
	return cloneAttempt(a), nil
}

func (m *memoryStore) AbandonAttempt(_ context.Context, attemptID string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if a.Status == StatusAbandoned {
		return cloneAttempt(a), nil
	}
	if a.Status == StatusSubmitted {
		return Attempt{}, ErrAttemptFinished
	}
	a.Status = StatusAbandoned
	a.EndedAt = m.now().Unix()
	m.attempts[attemptID] = a
	return cloneAttempt(a), nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return cloneAttempt(a), nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Attempt{}
	for _, a := range m.attempts {
		if opts.TestID != "" && a.TestID != opts.TestID {
			continue
		}
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		if opts.Status != "" && string(a.Status) != opts.Status {
			continue
		}
		out = append(out, cloneAttempt(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt > out[j].StartedAt })
	return out, nil
}

func (m *memoryStore) ApplyManualGrades(_ context.Context, attemptID string, updates map[string]ManualGradeInput, gradedBy string, finalize bool) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if a.Status != StatusSubmitted {
		return Attempt{}, ErrAttemptFinished
	}
	t := m.tests[a.TestID]
	for qid, g := range updates {
		q, _, ok := t.FindQuestion(qid)
		if !ok {
			return Attempt{}, ErrUnknownQuestion
		}
		ans, has := a.Answers[qid]
		if !has {
			continue
		}
		pts := g.Points
		if pts < 0 {
			pts = 0
		}
		if pts > q.Points {
			pts = q.Points
		}
		ans.Points = pts
		ans.NeedsManual = false
		ans.GradedBy = gradedBy
		ans.Comment = g.Comment
		a.Answers[qid] = ans
	}
	if finalize {
		score := 0.0
		for _, ans := range a.Answers {
			score += ans.Points
		}
		a.Score = score
		a.Band = grading.Band(score, totalPoints(t))
	}
	m.attempts[attemptID] = a
	return cloneAttempt(a), nil
}

func cloneAttempt(a Attempt) Attempt {
	answers := make(map[string]Answer, len(a.Answers))
	for k, v := range a.Answers {
		answers[k] = v
	}
	a.Answers = answers
	return a
}
