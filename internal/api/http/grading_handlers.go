package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/huynhthien07/lingo/internal/exam"
	"github.com/huynhthien07/lingo/internal/grading"
	"github.com/huynhthien07/lingo/internal/rbac"
	syncx "github.com/huynhthien07/lingo/internal/sync"
)

// GradingItem is one answer awaiting (or holding) a teacher grade, paired
// with the rubric the UI renders for it.
type GradingItem struct {
	QuestionID string           `json:"question_id"`
	Skill      exam.Skill       `json:"skill"`
	Text       string           `json:"text"`
	Answer     exam.AnswerValue `json:"answer"`
	MaxPoints  float64          `json:"max_points"`
	Points     float64          `json:"points"`
	Pending    bool             `json:"pending"`
	GradedBy   string           `json:"graded_by,omitempty"`
	Comment    string           `json:"comment,omitempty"`
	Rubric     *grading.Rubric  `json:"rubric,omitempty"`
}

// GET /attempts/{attemptID}/grading returns the teacher's worklist for one
// submitted attempt: writing and speaking answers with their rubrics.
func GetAttemptGradingHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := strings.TrimSpace(chi.URLParam(r, "attemptID"))
		a, err := store.GetAttempt(r.Context(), attemptID)
		if err != nil {
			writeErr(w, err)
			return
		}
		t, err := store.GetTestFull(r.Context(), a.TestID)
		if err != nil {
			writeErr(w, err)
			return
		}

		items := []GradingItem{}
		for _, sec := range t.Sections {
			if !sec.Skill.Manual() {
				continue
			}
			for _, q := range sec.Questions {
				ans, ok := a.Answers[q.ID]
				if !ok || ans.Value.Empty() {
					continue
				}
				it := GradingItem{
					QuestionID: q.ID,
					Skill:      sec.Skill,
					Text:       q.Text,
					Answer:     ans.Value,
					MaxPoints:  q.Points,
					Points:     ans.Points,
					Pending:    ans.NeedsManual,
					GradedBy:   ans.GradedBy,
					Comment:    ans.Comment,
				}
				switch sec.Skill {
				case exam.SkillWriting:
					rb := grading.WritingRubric(q.Points)
					it.Rubric = &rb
				case exam.SkillSpeaking:
					rb := grading.SpeakingRubric(q.Points)
					it.Rubric = &rb
				}
				items = append(items, it)
			}
		}
		writeJSON(w, items)
	}
}

type applyGradesReq struct {
	// question_id -> direct points, or a rubric breakdown
	Items    map[string]gradeItemReq `json:"items"`
	Finalize bool                    `json:"finalize,omitempty"`
}

type gradeItemReq struct {
	Points  *float64           `json:"points,omitempty"`
	Rubric  map[string]float64 `json:"rubric,omitempty"` // criterion key -> awarded
	Comment string             `json:"comment,omitempty"`
}

// POST /attempts/{attemptID}/grading records teacher grades. A rubric
// breakdown is totalled via the matching skill rubric; direct points win
// when both are present.
func ApplyAttemptGradingHandler(store exam.Store, events *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := strings.TrimSpace(chi.URLParam(r, "attemptID"))
		var req applyGradesReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		a, err := store.GetAttempt(r.Context(), attemptID)
		if err != nil {
			writeErr(w, err)
			return
		}
		t, err := store.GetTestFull(r.Context(), a.TestID)
		if err != nil {
			writeErr(w, err)
			return
		}

		updates := map[string]exam.ManualGradeInput{}
		for qid, item := range req.Items {
			q, sec, ok := t.FindQuestion(qid)
			if !ok {
				http.Error(w, "unknown question "+qid, http.StatusBadRequest)
				return
			}
			in := exam.ManualGradeInput{Comment: item.Comment}
			switch {
			case item.Points != nil:
				in.Points = *item.Points
			case len(item.Rubric) > 0:
				var rb grading.Rubric
				if sec.Skill == exam.SkillSpeaking {
					rb = grading.SpeakingRubric(q.Points)
				} else {
					rb = grading.WritingRubric(q.Points)
				}
				total, notes := grading.ScoreRubric(rb, item.Rubric)
				in.Points = total
				if in.Comment == "" {
					in.Comment = strings.Join(notes, " ")
				}
			default:
				http.Error(w, "points or rubric required for "+qid, http.StatusBadRequest)
				return
			}
			updates[qid] = in
		}

		gradedBy := rbac.SubjectFromContext(r.Context())
		out, err := store.ApplyManualGrades(r.Context(), attemptID, updates, gradedBy, req.Finalize)
		if err != nil {
			writeErr(w, err)
			return
		}
		if req.Finalize {
			events.Record(r.Context(), syncx.AttemptGraded, out.ID, out)
		}
		writeJSON(w, out)
	}
}
