package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/huynhthien07/lingo/internal/exam"
	"github.com/huynhthien07/lingo/internal/rbac"
	syncx "github.com/huynhthien07/lingo/internal/sync"
)

func testRouter(store exam.Store) *chi.Mux {
	events := syncx.NewEventRepo(nil)
	r := chi.NewRouter()
	r.Post("/tests", UploadTestHandler(store))
	r.Get("/tests", ListTestsHandler(store))
	r.Get("/tests/{testID}", GetTestHandler(store))
	r.Post("/tests/{testID}/start", StartAttemptHandler(store, events))
	r.Get("/attempts", ListAttemptsHandler(store))
	r.Get("/attempts/{attemptID}", GetAttemptHandler(store))
	r.Post("/attempts/{attemptID}/answer", SaveAnswerHandler(store))
	r.Post("/attempts/{attemptID}/complete", CompleteAttemptHandler(store, events))
	r.Post("/attempts/{attemptID}/abandon", AbandonAttemptHandler(store, events))
	r.Get("/attempts/{attemptID}/grading", GetAttemptGradingHandler(store))
	r.With(rbac.Require("attempt:grade")).
		Post("/attempts/{attemptID}/grading", ApplyAttemptGradingHandler(store, events))
	return r
}

// do performs a request with the identity the JWT middleware would have set.
func do(t *testing.T, h http.Handler, method, path, role, sub string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	ctx := rbac.WithSubject(rbac.WithRole(req.Context(), role), sub)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req.WithContext(ctx))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return v
}

func uploadFixture(t *testing.T, r http.Handler) {
	t.Helper()
	test := exam.Test{
		ID:          "ielts-1",
		Title:       "IELTS Mock 1",
		DurationMin: 60,
		Sections: []exam.Section{
			{
				ID:    "listening",
				Skill: exam.SkillListening,
				Questions: []exam.Question{
					{ID: "l1", Points: 1, Options: []exam.Option{{ID: "l1a"}, {ID: "l1b", Correct: true}}},
				},
			},
			{
				ID:    "writing",
				Skill: exam.SkillWriting,
				Questions: []exam.Question{
					{ID: "w1", Points: 8, Text: "Describe the chart."},
				},
			},
		},
	}
	if w := do(t, r, "POST", "/tests", "teacher", "t-1", test); w.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
}

func TestTestEndpoints(t *testing.T) {
	r := testRouter(exam.NewInMemoryStore())
	uploadFixture(t, r)

	w := do(t, r, "GET", "/tests", "student", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
	list := decode[[]exam.TestSummary](t, w)
	if len(list) != 1 || list[0].Questions != 2 {
		t.Fatalf("list = %+v", list)
	}

	w = do(t, r, "GET", "/tests/ielts-1", "student", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}
	got := decode[exam.Test](t, w)
	for _, o := range got.Sections[0].Questions[0].Options {
		if o.Correct {
			t.Fatal("student view leaks the answer key")
		}
	}

	if w := do(t, r, "GET", "/tests/missing", "student", "u1", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing test: %d", w.Code)
	}
}

func TestAttemptFlowOverHTTP(t *testing.T) {
	r := testRouter(exam.NewInMemoryStore())
	uploadFixture(t, r)

	w := do(t, r, "POST", "/tests/ielts-1/start", "student", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start: %d %s", w.Code, w.Body.String())
	}
	a := decode[exam.Attempt](t, w)
	if a.Deadline != a.StartedAt+3600 {
		t.Fatalf("deadline = %d, start %d", a.Deadline, a.StartedAt)
	}

	// second concurrent attempt for the same test is refused
	if w := do(t, r, "POST", "/tests/ielts-1/start", "student", "u1", nil); w.Code != http.StatusConflict {
		t.Fatalf("second start: %d", w.Code)
	}

	saveURL := fmt.Sprintf("/attempts/%s/answer", a.ID)
	w = do(t, r, "POST", saveURL, "student", "u1", exam.Answer{
		QuestionID: "l1", Seq: 2,
		Value: exam.AnswerValue{Kind: exam.AnswerOption, Value: "l1b"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("save: %d %s", w.Code, w.Body.String())
	}

	// the late duplicate with an older seq comes back 409
	w = do(t, r, "POST", saveURL, "student", "u1", exam.Answer{
		QuestionID: "l1", Seq: 1,
		Value: exam.AnswerValue{Kind: exam.AnswerOption, Value: "l1a"},
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("stale save: %d", w.Code)
	}

	w = do(t, r, "POST", fmt.Sprintf("/attempts/%s/complete", a.ID), "student", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", w.Code, w.Body.String())
	}
	done := decode[exam.Attempt](t, w)
	if done.Status != exam.StatusSubmitted || done.Score != 1 {
		t.Fatalf("completed attempt = %+v", done)
	}

	// answers against a finished attempt are gone for good
	w = do(t, r, "POST", saveURL, "student", "u1", exam.Answer{
		QuestionID: "l1", Seq: 3,
		Value: exam.AnswerValue{Kind: exam.AnswerOption, Value: "l1a"},
	})
	if w.Code != http.StatusGone {
		t.Fatalf("save after submit: %d", w.Code)
	}
}

func TestAttemptOwnership(t *testing.T) {
	r := testRouter(exam.NewInMemoryStore())
	uploadFixture(t, r)

	a := decode[exam.Attempt](t, do(t, r, "POST", "/tests/ielts-1/start", "student", "u1", nil))

	// another student probing the id sees a 404, not a 403
	w := do(t, r, "POST", fmt.Sprintf("/attempts/%s/complete", a.ID), "student", "u2", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign complete: %d", w.Code)
	}
	w = do(t, r, "GET", "/attempts/"+a.ID, "student", "u2", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign get: %d", w.Code)
	}
	// a teacher may read it
	if w := do(t, r, "GET", "/attempts/"+a.ID, "teacher", "t-1", nil); w.Code != http.StatusOK {
		t.Fatalf("teacher get: %d", w.Code)
	}
}

func TestAbandonOverHTTP(t *testing.T) {
	r := testRouter(exam.NewInMemoryStore())
	uploadFixture(t, r)

	a := decode[exam.Attempt](t, do(t, r, "POST", "/tests/ielts-1/start", "student", "u1", nil))
	w := do(t, r, "POST", fmt.Sprintf("/attempts/%s/abandon", a.ID), "student", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("abandon: %d", w.Code)
	}
	st := decode[map[string]string](t, w)
	if st["status"] != "abandoned" {
		t.Fatalf("status = %q", st["status"])
	}
	// and the slot is free again
	if w := do(t, r, "POST", "/tests/ielts-1/start", "student", "u1", nil); w.Code != http.StatusOK {
		t.Fatalf("restart after abandon: %d", w.Code)
	}
}

func TestListAttemptsScoping(t *testing.T) {
	r := testRouter(exam.NewInMemoryStore())
	uploadFixture(t, r)

	do(t, r, "POST", "/tests/ielts-1/start", "student", "u1", nil)
	do(t, r, "POST", "/tests/ielts-1/start", "student", "u2", nil)

	// a student asking for someone else's attempts still only gets their own
	w := do(t, r, "GET", "/attempts?user_id=u2", "student", "u1", nil)
	list := decode[[]exam.Attempt](t, w)
	if len(list) != 1 || list[0].UserID != "u1" {
		t.Fatalf("student listing = %+v", list)
	}

	w = do(t, r, "GET", "/attempts", "teacher", "t-1", nil)
	if list := decode[[]exam.Attempt](t, w); len(list) != 2 {
		t.Fatalf("teacher listing = %+v", list)
	}
}

func TestGradingFlowOverHTTP(t *testing.T) {
	r := testRouter(exam.NewInMemoryStore())
	uploadFixture(t, r)

	a := decode[exam.Attempt](t, do(t, r, "POST", "/tests/ielts-1/start", "student", "u1", nil))
	do(t, r, "POST", fmt.Sprintf("/attempts/%s/answer", a.ID), "student", "u1", exam.Answer{
		QuestionID: "w1", Seq: 1,
		Value: exam.AnswerValue{Kind: exam.AnswerText, Value: "The chart shows..."},
	})
	do(t, r, "POST", fmt.Sprintf("/attempts/%s/complete", a.ID), "student", "u1", nil)

	gradingURL := fmt.Sprintf("/attempts/%s/grading", a.ID)
	w := do(t, r, "GET", gradingURL, "teacher", "t-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("grading list: %d", w.Code)
	}
	items := decode[[]GradingItem](t, w)
	if len(items) != 1 || !items[0].Pending || items[0].Rubric == nil {
		t.Fatalf("grading items = %+v", items)
	}
	if len(items[0].Rubric.Criteria) != 4 {
		t.Fatalf("rubric = %+v", items[0].Rubric)
	}

	// a student cannot grade
	w = do(t, r, "POST", gradingURL, "student", "u1", applyGradesReq{})
	if w.Code != http.StatusForbidden {
		t.Fatalf("student grading: %d", w.Code)
	}

	// rubric breakdown: 2+2+1+1 of 8
	w = do(t, r, "POST", gradingURL, "teacher", "t-1", applyGradesReq{
		Items: map[string]gradeItemReq{
			"w1": {Rubric: map[string]float64{
				"task_achievement": 2, "coherence": 2, "lexical": 1, "grammar": 1,
			}},
		},
		Finalize: true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("apply grades: %d %s", w.Code, w.Body.String())
	}
	graded := decode[exam.Attempt](t, w)
	ans := graded.Answers["w1"]
	if ans.Points != 6 || ans.NeedsManual || ans.GradedBy != "t-1" {
		t.Fatalf("graded answer = %+v", ans)
	}
	if graded.Score != 6 {
		t.Fatalf("score = %v", graded.Score)
	}
	// 6/9 of the scale: total points are 9 (1 listening + 8 writing)
	if graded.Band != 6 {
		t.Fatalf("band = %v", graded.Band)
	}
}

func TestSaveAnswerRejectsBadPayload(t *testing.T) {
	r := testRouter(exam.NewInMemoryStore())
	uploadFixture(t, r)
	a := decode[exam.Attempt](t, do(t, r, "POST", "/tests/ielts-1/start", "student", "u1", nil))
	saveURL := fmt.Sprintf("/attempts/%s/answer", a.ID)

	// missing question id
	w := do(t, r, "POST", saveURL, "student", "u1", exam.Answer{
		Seq: 1, Value: exam.AnswerValue{Kind: exam.AnswerOption, Value: "l1a"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing question_id: %d", w.Code)
	}
	// unknown question
	w = do(t, r, "POST", saveURL, "student", "u1", exam.Answer{
		QuestionID: "ghost", Seq: 1, Value: exam.AnswerValue{Kind: exam.AnswerText, Value: "x"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown question: %d", w.Code)
	}
}
