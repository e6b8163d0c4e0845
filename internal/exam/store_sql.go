package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/huynhthien07/lingo/internal/grading"
)

// SQLStore persists tests, attempts and answers over database/sql. Works
// against sqlite (modernc) and postgres (pgx stdlib); SQL sticks to the
// shared subset with $1 placeholders.
type SQLStore struct {
	db     *sql.DB
	grader grading.Grader
	now    func() time.Time // injectable for deadline tests
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, grader: grading.NewDefaultGrader(), now: time.Now}
}

func (s *SQLStore) PutTest(ctx context.Context, t Test) error {
	if t.ID == "" || t.Title == "" {
		return errors.New("test id and title required")
	}
	if t.DurationMin <= 0 {
		return errors.New("test duration must be positive")
	}
	for _, sec := range t.Sections {
		if !sec.Skill.Valid() {
			return fmt.Errorf("unknown skill %q in section %s", sec.Skill, sec.ID)
		}
	}
	sj, err := json.Marshal(t.Sections)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO tests (id,title,duration_min,sections_json,created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, duration_min=EXCLUDED.duration_min, sections_json=EXCLUDED.sections_json`,
		t.ID, t.Title, t.DurationMin, string(sj), s.now().Unix())
	return err
}

func (s *SQLStore) GetTest(ctx context.Context, id string) (Test, error) {
	t, err := s.GetTestFull(ctx, id)
	if err != nil {
		return Test{}, err
	}
	return stripKeys(t), nil
}

func (s *SQLStore) GetTestFull(ctx context.Context, id string) (Test, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,title,duration_min,sections_json,created_at FROM tests WHERE id=$1`, id)
	var t Test
	var sj string
	if err := row.Scan(&t.ID, &t.Title, &t.DurationMin, &sj, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Test{}, ErrTestNotFound
		}
		return Test{}, err
	}
	if err := json.Unmarshal([]byte(sj), &t.Sections); err != nil {
		return Test{}, err
	}
	return t, nil
}

func (s *SQLStore) ListTests(ctx context.Context, opts ListOpts) ([]TestSummary, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := `SELECT id,title,duration_min,sections_json,created_at FROM tests`
	args := []any{}
	if opts.Q != "" {
		q += ` WHERE title LIKE $1`
		args = append(args, "%"+opts.Q+"%")
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, max0(opts.Offset))
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []TestSummary{}
	for rows.Next() {
		var sum TestSummary
		var sj string
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.DurationMin, &sj, &sum.CreatedAt); err != nil {
			return nil, err
		}
		var secs []Section
		if err := json.Unmarshal([]byte(sj), &secs); err == nil {
			sum.Sections = len(secs)
			for _, sec := range secs {
				sum.Questions += len(sec.Questions)
			}
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLStore) StartAttempt(ctx context.Context, testID, userID string) (Attempt, error) {
	t, err := s.GetTestFull(ctx, testID)
	if err != nil {
		return Attempt{}, err
	}
	// refuse a second live attempt up front; the partial unique index on
	// attempts backs this up under concurrency
	var live int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM attempts WHERE test_id=$1 AND user_id=$2 AND status=$3`,
		testID, userID, string(StatusInProgress)).Scan(&live)
	if err != nil {
		return Attempt{}, err
	}
	if live > 0 {
		return Attempt{}, ErrAttemptActive
	}

	now := s.now().Unix()
	a := Attempt{
		ID:        uuid.NewString(),
		TestID:    testID,
		UserID:    userID,
		Status:    StatusInProgress,
		StartedAt: now,
		Deadline:  now + int64(t.DurationMin)*60,
		Answers:   map[string]Answer{},
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO attempts (id,test_id,user_id,status,started_at,deadline) VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID, a.TestID, a.UserID, string(a.Status), a.StartedAt, a.Deadline)
	if err != nil {
		return Attempt{}, err
	}
	return a, nil
}

func (s *SQLStore) SaveAnswer(ctx context.Context, attemptID string, ans Answer) (Attempt, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status != StatusInProgress {
		return Attempt{}, ErrAttemptFinished
	}
	now := s.now().Unix()
	if now > a.Deadline+SaveGraceSec {
		return Attempt{}, ErrPastDeadline
	}
	t, err := s.GetTestFull(ctx, a.TestID)
	if err != nil {
		return Attempt{}, err
	}
	q, sec, ok := t.FindQuestion(ans.QuestionID)
	if !ok {
		return Attempt{}, ErrUnknownQuestion
	}
	if ans.Value.Kind == AnswerOption && !hasOption(q, ans.Value.Value) {
		return Attempt{}, ErrUnknownQuestion
	}
	ans.Skill = sec.Skill

	// seq-guarded upsert: an in-flight older save that lands after a newer
	// one must not win
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO answers (attempt_id,question_id,skill,kind,value,seq,saved_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (attempt_id,question_id) DO UPDATE
		   SET skill=EXCLUDED.skill, kind=EXCLUDED.kind, value=EXCLUDED.value,
		       seq=EXCLUDED.seq, saved_at=EXCLUDED.saved_at
		   WHERE EXCLUDED.seq > answers.seq`,
		attemptID, ans.QuestionID, string(ans.Skill), string(ans.Value.Kind), ans.Value.Value, ans.Seq, now)
	if err != nil {
		return Attempt{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Attempt{}, ErrStaleWrite
	}
	return s.GetAttempt(ctx, attemptID)
}

func (s *SQLStore) CompleteAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status == StatusSubmitted {
		return a, nil
	}
	if a.Status == StatusAbandoned {
		return Attempt{}, ErrAttemptFinished
	}
	t, err := s.GetTestFull(ctx, a.TestID)
	if err != nil {
		return Attempt{}, err
	}

	now := s.now().Unix()
	timedOut := now > a.Deadline+SaveGraceSec

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
			res, err := s.grader.Grade(ctx, gq, grading.Response{Kind: string(ans.Value.Kind), Value: ans.Value.Value})
			if err != nil {
				continue
			}
			if res.NeedsManual {
				pendingManual = true
			}
			score += res.AutoPoints
			_, err = s.db.ExecContext(ctx,
				`UPDATE answers SET points=$1, needs_manual=$2 WHERE attempt_id=$3 AND question_id=$4`,
				res.AutoPoints, res.NeedsManual, attemptID, q.ID)
			if err != nil {
				return Attempt{}, err
			}
		}
	}

	band := 0.0
	if !pendingManual {
		band = grading.Band(score, totalPoints(t))
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE attempts SET status=$1, score=$2, band=$3, ended_at=$4, timed_out=$5 WHERE id=$6`,
		string(StatusSubmitted), score, band, now, timedOut, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	return s.GetAttempt(ctx, attemptID)
}

func (s *SQLStore) AbandonAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status == StatusAbandoned {
		return a, nil
	}
	if a.Status == StatusSubmitted {
		return Attempt{}, ErrAttemptFinished
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE attempts SET status=$1, ended_at=$2 WHERE id=$3`,
		string(StatusAbandoned), s.now().Unix(), attemptID)
	if err != nil {
		return Attempt{}, err
	}
	return s.GetAttempt(ctx, attemptID)
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,test_id,user_id,status,started_at,deadline,COALESCE(ended_at,0),timed_out,score,band FROM attempts WHERE id=$1`, id)
	var a Attempt
	var status string
	if err := row.Scan(&a.ID, &a.TestID, &a.UserID, &status, &a.StartedAt, &a.Deadline, &a.EndedAt, &a.TimedOut, &a.Score, &a.Band); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrAttemptNotFound
		}
		return Attempt{}, err
	}
	a.Status = AttemptStatus(status)
	answers, err := s.loadAnswers(ctx, id)
	if err != nil {
		return Attempt{}, err
	}
	a.Answers = answers
	return a, nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := `SELECT id,test_id,user_id,status,started_at,deadline,COALESCE(ended_at,0),timed_out,score,band FROM attempts WHERE 1=1`
	args := []any{}
	n := 0
	add := func(cond, val string) {
		n++
		q += fmt.Sprintf(" AND %s=$%d", cond, n)
		args = append(args, val)
	}
	if opts.TestID != "" {
		add("test_id", opts.TestID)
	}
	if opts.UserID != "" {
		add("user_id", opts.UserID)
	}
	if opts.Status != "" {
		add("status", opts.Status)
	}
	q += fmt.Sprintf(" ORDER BY started_at DESC LIMIT %d OFFSET %d", limit, max0(opts.Offset))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Attempt{}
	for rows.Next() {
		var a Attempt
		var status string
		if err := rows.Scan(&a.ID, &a.TestID, &a.UserID, &status, &a.StartedAt, &a.Deadline, &a.EndedAt, &a.TimedOut, &a.Score, &a.Band); err != nil {
			return nil, err
		}
		a.Status = AttemptStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) ApplyManualGrades(ctx context.Context, attemptID string, updates map[string]ManualGradeInput, gradedBy string, finalize bool) (Attempt, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status != StatusSubmitted {
		return Attempt{}, ErrAttemptFinished
	}
	t, err := s.GetTestFull(ctx, a.TestID)
	if err != nil {
		return Attempt{}, err
	}
	for qid, g := range updates {
		q, _, ok := t.FindQuestion(qid)
		if !ok {
			return Attempt{}, ErrUnknownQuestion
		}
		pts := g.Points
		if pts < 0 {
			pts = 0
		}
		if pts > q.Points {
			pts = q.Points
		}
		_, err = s.db.ExecContext(ctx,
			`UPDATE answers SET points=$1, needs_manual=$2, graded_by=$3, comment=$4 WHERE attempt_id=$5 AND question_id=$6`,
			pts, false, gradedBy, g.Comment, attemptID, qid)
		if err != nil {
			return Attempt{}, err
		}
	}
	if finalize {
		a, err = s.GetAttempt(ctx, attemptID)
		if err != nil {
			return Attempt{}, err
		}
		score := 0.0
		for _, ans := range a.Answers {
			score += ans.Points
		}
		band := grading.Band(score, totalPoints(t))
		_, err = s.db.ExecContext(ctx,
			`UPDATE attempts SET score=$1, band=$2 WHERE id=$3`, score, band, attemptID)
		if err != nil {
			return Attempt{}, err
		}
	}
	return s.GetAttempt(ctx, attemptID)
}

func (s *SQLStore) loadAnswers(ctx context.Context, attemptID string) (map[string]Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question_id,skill,kind,value,seq,saved_at,points,needs_manual,graded_by,comment
		 FROM answers WHERE attempt_id=$1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]Answer{}
	for rows.Next() {
		var ans Answer
		var skill, kind string
		if err := rows.Scan(&ans.QuestionID, &skill, &kind, &ans.Value.Value, &ans.Seq, &ans.SavedAt,
			&ans.Points, &ans.NeedsManual, &ans.GradedBy, &ans.Comment); err != nil {
			return nil, err
		}
		ans.Skill = Skill(skill)
		ans.Value.Kind = AnswerKind(kind)
		out[ans.QuestionID] = ans
	}
	return out, rows.Err()
}

// --- helpers shared with the in-memory store ---

func stripKeys(t Test) Test {
	t.Sections = append([]Section(nil), t.Sections...)
	for si := range t.Sections {
		t.Sections[si].Questions = append([]Question(nil), t.Sections[si].Questions...)
		for qi := range t.Sections[si].Questions {
			q := &t.Sections[si].Questions[qi]
			q.Accepted = nil
			if len(q.Options) > 0 {
				opts := append([]Option(nil), q.Options...)
				for oi := range opts {
					opts[oi].Correct = false
				}
				q.Options = opts
			}
		}
	}
	return t
}

func hasOption(q Question, optionID string) bool {
	for _, o := range q.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

func correctOptionIDs(q Question) []string {
	var ids []string
	for _, o := range q.Options {
		if o.Correct {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

func totalPoints(t Test) float64 {
	total := 0.0
	for _, sec := range t.Sections {
		for _, q := range sec.Questions {
			total += q.Points
		}
	}
	return total
}

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
