package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/huynhthien07/lingo/internal/exam"
)

// State is the single enumerated attempt-session state. The old platform
// spread this over a handful of booleans; one enum plus one transition
// table makes "submitting while already submitted" unrepresentable.
type State string

const (
	StateNotStarted State = "not_started"
	StateInProgress State = "in_progress"
	StateSubmitting State = "submitting"
	StateSubmitted  State = "submitted"
	StateAbandoned  State = "abandoned"
)

// legal transitions; everything else is rejected
var transitions = map[State]map[State]bool{
	StateNotStarted: {StateInProgress: true},
	StateInProgress: {StateSubmitting: true, StateAbandoned: true},
	// Submitting falls back to InProgress when the complete call fails, so
	// submission stays retryable instead of stranding the user
	StateSubmitting: {StateSubmitted: true, StateInProgress: true},
}

var (
	ErrNotLoaded       = errors.New("no test loaded")
	ErrNotInProgress   = errors.New("attempt is not in progress")
	ErrSubmitInFlight  = errors.New("a submission is already in flight")
	ErrUnknownQuestion = errors.New("question is not part of this test")
)

// Session drives one timed attempt: it owns the countdown, the answer
// sheet and the navigator, and talks to the attempt API. All mutating
// methods are safe for concurrent use; the countdown's time-up callback and
// a user-triggered submit may race and exactly one wins.
type Session struct {
	api AttemptAPI

	mu        sync.Mutex
	state     State
	test      exam.Test
	attemptID string
	startedAt time.Time

	nav   *Navigator
	sheet *AnswerSheet
	timer *Countdown

	clock     func() time.Time
	logf      func(format string, args ...any)
	sheetOpts []SheetOption
	tickOpts  []CountdownOption
	onState   func(State)
}

type Option func(*Session)

// WithSessionClock overrides the wall clock, for tests.
func WithSessionClock(clock func() time.Time) Option {
	return func(s *Session) {
		s.clock = clock
		s.tickOpts = append(s.tickOpts, WithClock(clock))
	}
}

// WithLogger overrides where save/submit failures are reported.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(s *Session) {
		s.logf = logf
		s.sheetOpts = append(s.sheetOpts, WithSheetLogger(logf))
	}
}

// WithSheetOptions forwards options to the answer sheet.
func WithSheetOptions(opts ...SheetOption) Option {
	return func(s *Session) { s.sheetOpts = append(s.sheetOpts, opts...) }
}

// WithCountdownOptions forwards options to the countdown.
func WithCountdownOptions(opts ...CountdownOption) Option {
	return func(s *Session) { s.tickOpts = append(s.tickOpts, opts...) }
}

// WithStateObserver registers a callback invoked after every transition.
func WithStateObserver(fn func(State)) Option {
	return func(s *Session) { s.onState = fn }
}

func New(api AttemptAPI, opts ...Option) *Session {
	s := &Session{
		api:   api,
		state: StateNotStarted,
		clock: time.Now,
		logf:  log.Printf,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// transition is the single gate for state changes.
func (s *Session) transition(to State) error {
	s.mu.Lock()
	from := s.state
	ok := transitions[from][to]
	if ok {
		s.state = to
	}
	cb := s.onState
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	if cb != nil {
		cb(to)
	}
	return nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Load fetches the test definition and builds the navigator. The test is
// loaded once; nothing ticks and nothing can be answered until Start.
func (s *Session) Load(ctx context.Context, testID string) error {
	if s.State() != StateNotStarted {
		return errors.New("test already loaded for a running attempt")
	}
	t, err := s.api.FetchTest(ctx, testID)
	if err != nil {
		return fmt.Errorf("fetch test: %w", err)
	}
	s.mu.Lock()
	s.test = t
	s.nav = NewNavigator(t.Sections)
	s.mu.Unlock()
	return nil
}

// Start confirms the start dialog: it creates the attempt server-side and
// only then arms the countdown, from the server-assigned start time. Until
// this succeeds there is no timer and no answer can be recorded.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	loaded := s.nav != nil
	s.mu.Unlock()
	if !loaded {
		return ErrNotLoaded
	}

	a, err := s.api.Start(ctx, s.test.ID)
	if err != nil {
		return fmt.Errorf("start attempt: %w", err)
	}

	s.mu.Lock()
	s.attemptID = a.ID
	s.startedAt = time.Unix(a.StartedAt, 0)
	s.sheet = NewAnswerSheet(s.api, a.ID, s.sheetOpts...)
	s.timer = NewCountdown(
		time.Duration(s.test.DurationMin)*time.Minute,
		s.startedAt,
		s.onTimeUp,
		s.tickOpts...,
	)
	s.mu.Unlock()

	if err := s.transition(StateInProgress); err != nil {
		return err
	}
	go s.timer.Run()
	return nil
}

// SetAnswer records an answer locally and queues the remote save. Only
// legal while in progress; ids outside the test's closed world are a
// programming error upstream and are refused.
func (s *Session) SetAnswer(ctx context.Context, questionID string, v exam.AnswerValue) error {
	if s.State() != StateInProgress {
		return ErrNotInProgress
	}
	s.mu.Lock()
	nav, sheet := s.nav, s.sheet
	s.mu.Unlock()
	if _, ok := nav.byID[questionID]; !ok {
		s.logf("refusing answer for unknown question %q", questionID)
		return ErrUnknownQuestion
	}
	sheet.Set(ctx, questionID, v)
	return nil
}

// SelectOption answers a multiple-choice question.
func (s *Session) SelectOption(ctx context.Context, questionID, optionID string) error {
	return s.SetAnswer(ctx, questionID, exam.AnswerValue{Kind: exam.AnswerOption, Value: optionID})
}

// TypeText answers a writing or gap-fill question.
func (s *Session) TypeText(ctx context.Context, questionID, text string) error {
	return s.SetAnswer(ctx, questionID, exam.AnswerValue{Kind: exam.AnswerText, Value: text})
}

// RecordAudio answers a speaking question with an uploaded recording key.
func (s *Session) RecordAudio(ctx context.Context, questionID, recordingKey string) error {
	return s.SetAnswer(ctx, questionID, exam.AnswerValue{Kind: exam.AnswerAudio, Value: recordingKey})
}

// SubmitPreview is what the submit confirmation must show: exact counts,
// recomputed now.
type SubmitPreview struct {
	Total      int
	Answered   int
	Unanswered int
}

func (s *Session) SubmitPreview() SubmitPreview {
	s.mu.Lock()
	nav, sheet := s.nav, s.sheet
	s.mu.Unlock()
	p := SubmitPreview{}
	if nav != nil {
		p.Total = nav.Len()
	}
	if sheet != nil {
		p.Answered = sheet.AnsweredCount()
	}
	p.Unanswered = p.Total - p.Answered
	return p
}

// Submit is the user-confirmed path: the caller has already shown the
// unanswered count from SubmitPreview. On failure the session returns to
// in-progress and Submit may be called again.
func (s *Session) Submit(ctx context.Context) (exam.Attempt, error) {
	return s.submit(ctx)
}

func (s *Session) submit(ctx context.Context) (exam.Attempt, error) {
	if err := s.transition(StateSubmitting); err != nil {
		if s.State() == StateSubmitting {
			return exam.Attempt{}, ErrSubmitInFlight
		}
		return exam.Attempt{}, err
	}
	// the countdown keeps running underneath: submission grants no free
	// time, input is locked by the state alone

	s.mu.Lock()
	sheet, attemptID := s.sheet, s.attemptID
	s.mu.Unlock()

	// give in-flight saves a moment to land so the server scores the
	// freshest answers; timing out here is not fatal
	sheet.Drain(3 * time.Second)

	a, err := s.api.Complete(ctx, attemptID)
	if err != nil {
		// never strand the user in a dead Submitting state
		if terr := s.transition(StateInProgress); terr != nil {
			s.logf("rollback after failed submit: %v", terr)
		}
		return exam.Attempt{}, fmt.Errorf("complete attempt: %w", err)
	}

	if err := s.transition(StateSubmitted); err != nil {
		return exam.Attempt{}, err
	}
	s.timerStop()
	return a, nil
}

// onTimeUp is the countdown's forcing function: the deadline is not a
// suggestion, so it submits without confirmation. Runs on the timer
// goroutine; losing the race against a user-triggered submit is fine.
func (s *Session) onTimeUp() {
	ctx := context.Background()
	backoff := time.Second
	for try := 0; try < 3; try++ {
		_, err := s.submit(ctx)
		if err == nil || errors.Is(err, ErrSubmitInFlight) {
			return
		}
		if s.State() == StateSubmitted || s.State() == StateAbandoned {
			return
		}
		s.logf("forced submit failed (try %d): %v", try+1, err)
		time.Sleep(backoff)
		backoff *= 2
	}
	s.logf("forced submit did not complete; attempt %s left in progress for manual retry", s.attemptID)
}

// Abandon is the deliberate discard path. The caller must have confirmed
// that all progress is deleted. The abandon call is best-effort: the
// session terminates locally whether or not the server acknowledged.
func (s *Session) Abandon(ctx context.Context) error {
	if err := s.transition(StateAbandoned); err != nil {
		return err
	}
	s.timerStop()
	s.mu.Lock()
	attemptID := s.attemptID
	s.mu.Unlock()
	if err := s.api.Abandon(ctx, attemptID); err != nil {
		s.logf("abandon attempt %s: %v (server remains the authority)", attemptID, err)
	}
	return nil
}

func (s *Session) timerStop() {
	s.mu.Lock()
	t := s.timer
	s.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

// --- accessors ---

func (s *Session) Test() exam.Test {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.test
}

func (s *Session) AttemptID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attemptID
}

func (s *Session) Navigator() *Navigator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav
}

func (s *Session) Answers() *AnswerSheet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sheet
}

// Timer returns the live countdown, nil before Start.
func (s *Session) Timer() *Countdown {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer
}
