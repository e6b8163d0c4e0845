package exam

// Skill tags a Section and decides how its questions are scored:
// option-based skills are auto-graded, writing and speaking wait for a
// teacher.
type Skill string

const (
	SkillListening  Skill = "listening"
	SkillReading    Skill = "reading"
	SkillWriting    Skill = "writing"
	SkillSpeaking   Skill = "speaking"
	SkillVocabulary Skill = "vocabulary"
	SkillGrammar    Skill = "grammar"
)

func (s Skill) Valid() bool {
	switch s {
	case SkillListening, SkillReading, SkillWriting, SkillSpeaking, SkillVocabulary, SkillGrammar:
		return true
	}
	return false
}

// Manual reports whether answers for this skill need teacher grading.
func (s Skill) Manual() bool { return s == SkillWriting || s == SkillSpeaking }

type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct,omitempty"` // stripped in student views
	Order   int    `json:"order"`
}

type Question struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	AudioURL string   `json:"audio_url,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	Points   float64  `json:"points"`
	Order    int      `json:"order"`
	Options  []Option `json:"options,omitempty"` // empty => free response
	// Accepted holds the answer key for option-less gap-fill questions in
	// listening/reading sections. Stripped in student views. A question with
	// neither Options nor Accepted is graded manually (writing/speaking).
	Accepted []string `json:"accepted,omitempty"`
}

// Objective reports whether the question can be auto-graded.
func (q Question) Objective() bool { return len(q.Options) > 0 || len(q.Accepted) > 0 }

type Section struct {
	ID        string     `json:"id"`
	Skill     Skill      `json:"skill"`
	Title     string     `json:"title,omitempty"`
	Passage   string     `json:"passage,omitempty"`
	AudioURL  string     `json:"audio_url,omitempty"`
	ImageURL  string     `json:"image_url,omitempty"`
	Order     int        `json:"order"`
	Questions []Question `json:"questions"`
}

// Test is the immutable definition a session runs against. Sections and
// questions keep their stored order; the flattened question sequence derived
// from it is fixed for the lifetime of any attempt.
type Test struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	DurationMin int       `json:"duration_min"`
	Sections    []Section `json:"sections"`
	CreatedAt   int64     `json:"created_at,omitempty"`
}

// QuestionCount is the flattened total across all sections.
func (t Test) QuestionCount() int {
	n := 0
	for _, s := range t.Sections {
		n += len(s.Questions)
	}
	return n
}

// FindQuestion resolves a question id within the test, also returning the
// owning section. ok is false for ids outside the test's closed world.
func (t Test) FindQuestion(id string) (Question, Section, bool) {
	for _, s := range t.Sections {
		for _, q := range s.Questions {
			if q.ID == id {
				return q, s, true
			}
		}
	}
	return Question{}, Section{}, false
}

type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "in_progress"
	StatusSubmitted  AttemptStatus = "submitted"
	StatusAbandoned  AttemptStatus = "abandoned"
)

// AnswerKind discriminates what the Value of an Answer holds.
type AnswerKind string

const (
	AnswerOption AnswerKind = "option" // Value is an option id
	AnswerText   AnswerKind = "text"   // Value is free text (writing)
	AnswerAudio  AnswerKind = "audio"  // Value is a recording key/URL (speaking)
)

// AnswerValue is a tagged union: exactly one interpretation of Value applies,
// chosen by Kind. Empty Value means "not answered".
type AnswerValue struct {
	Kind  AnswerKind `json:"kind"`
	Value string     `json:"value"`
}

func (v AnswerValue) Empty() bool { return v.Value == "" }

// Answer is one saved response within an attempt. Seq is a client-assigned
// monotonic counter per (attempt, question); the store rejects saves whose
// Seq is not greater than the last stored one, so late-arriving stale writes
// never clobber newer answers.
type Answer struct {
	QuestionID string      `json:"question_id"`
	Skill      Skill       `json:"skill"`
	Value      AnswerValue `json:"value"`
	Seq        int64       `json:"seq"`
	SavedAt    int64       `json:"saved_at,omitempty"`

	// Grading outcome, filled at submit (auto) or by a teacher (manual).
	Points      float64 `json:"points,omitempty"`
	NeedsManual bool    `json:"needs_manual,omitempty"`
	GradedBy    string  `json:"graded_by,omitempty"`
	Comment     string  `json:"comment,omitempty"`
}

type Attempt struct {
	ID        string        `json:"id"`
	TestID    string        `json:"test_id"`
	UserID    string        `json:"user_id"`
	Status    AttemptStatus `json:"status"`
	StartedAt int64         `json:"started_at"` // unix seconds, server-assigned
	Deadline  int64         `json:"deadline"`   // started_at + duration, server-enforced
	EndedAt   int64         `json:"ended_at,omitempty"`
	TimedOut  bool          `json:"timed_out,omitempty"` // submit arrived after the deadline

	Score float64 `json:"score"`
	Band  float64 `json:"band,omitempty"` // 0 until fully graded

	Answers map[string]Answer `json:"answers"` // question id -> latest answer
}

// Terminal reports whether the attempt can no longer change.
func (a Attempt) Terminal() bool {
	return a.Status == StatusSubmitted || a.Status == StatusAbandoned
}

// AnsweredCount counts questions with a non-empty value. Recomputed on
// demand, never cached.
func (a Attempt) AnsweredCount() int {
	n := 0
	for _, ans := range a.Answers {
		if !ans.Value.Empty() {
			n++
		}
	}
	return n
}
