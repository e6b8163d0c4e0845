package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/huynhthien07/lingo/internal/exam"
	"github.com/huynhthien07/lingo/internal/rbac"
	syncx "github.com/huynhthien07/lingo/internal/sync"
)

// POST /tests/{testID}/start creates the attempt; the returned started_at
// and deadline are authoritative for the client countdown.
func StartAttemptHandler(store exam.Store, events *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := chi.URLParam(r, "testID")
		sub := rbac.SubjectFromContext(r.Context())
		if sub == "" {
			http.Error(w, "no subject", http.StatusUnauthorized)
			return
		}
		a, err := store.StartAttempt(r.Context(), testID, sub)
		if err != nil {
			writeErr(w, err)
			return
		}
		events.Record(r.Context(), syncx.AttemptStarted, a.ID, a)
		writeJSON(w, a)
	}
}

// POST /attempts/{attemptID}/answer upserts one answer. The body carries
// the client's monotonic seq; stale writes come back 409 and are dropped.
func SaveAnswerHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		var ans exam.Answer
		if err := json.NewDecoder(r.Body).Decode(&ans); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if ans.QuestionID == "" || ans.Value.Kind == "" {
			http.Error(w, "question_id and value.kind required", http.StatusBadRequest)
			return
		}
		if err := requireOwnAttempt(store, r, id); err != nil {
			writeErr(w, err)
			return
		}
		a, err := store.SaveAnswer(r.Context(), id, ans)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]any{"answered": a.AnsweredCount(), "seq": ans.Seq})
	}
}

// POST /attempts/{attemptID}/complete is the idempotent submit; it triggers
// auto-scoring. Timed-out completes are accepted and flagged: the server,
// not the client clock, is the authority on the deadline.
func CompleteAttemptHandler(store exam.Store, events *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		if err := requireOwnAttempt(store, r, id); err != nil {
			writeErr(w, err)
			return
		}
		a, err := store.CompleteAttempt(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		events.Record(r.Context(), syncx.AttemptSubmitted, a.ID, a)
		writeJSON(w, a)
	}
}

// POST /attempts/{attemptID}/abandon discards the attempt from scoring.
func AbandonAttemptHandler(store exam.Store, events *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		if err := requireOwnAttempt(store, r, id); err != nil {
			writeErr(w, err)
			return
		}
		a, err := store.AbandonAttempt(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		events.Record(r.Context(), syncx.AttemptAbandoned, a.ID, a)
		writeJSON(w, map[string]string{"status": string(a.Status)})
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		role := rbac.RoleFromContext(r.Context())
		if role != "teacher" && role != "admin" {
			if err := requireOwnAttempt(store, r, id); err != nil {
				writeErr(w, err)
				return
			}
		}
		a, err := store.GetAttempt(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, a)
	}
}

// requireOwnAttempt rejects mutations of attempts the caller doesn't own.
// Teachers and admins go through their own read-only routes.
func requireOwnAttempt(store exam.Store, r *http.Request, attemptID string) error {
	sub := rbac.SubjectFromContext(r.Context())
	a, err := store.GetAttempt(r.Context(), attemptID)
	if err != nil {
		return err
	}
	if a.UserID != sub {
		return exam.ErrAttemptNotFound // don't leak other users' attempt ids
	}
	return nil
}
