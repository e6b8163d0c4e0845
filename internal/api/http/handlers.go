package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/huynhthien07/lingo/internal/exam"
)

// POST /tests lets a teacher upload or replace a test definition.
func UploadTestHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var t exam.Test
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := store.PutTest(r.Context(), t); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]string{"id": t.ID})
	}
}

// GET /tests/{testID} returns the student-safe definition, loaded once per session.
func GetTestHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := store.GetTest(r.Context(), chi.URLParam(r, "testID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, t)
	}
}

// GET /tests?q=...&limit=50&offset=0
func ListTestsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.ListTests(r.Context(), exam.ListOpts{
			Q:      strings.TrimSpace(r.URL.Query().Get("q")),
			Limit:  parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, list)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps store errors to status codes. Stale writes get 409 so the
// client can tell "discarded, newer answer stands" apart from real
// failures; finished/past-deadline attempts get 410.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, exam.ErrTestNotFound), errors.Is(err, exam.ErrAttemptNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, exam.ErrStaleWrite):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, exam.ErrAttemptActive):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, exam.ErrAttemptFinished), errors.Is(err, exam.ErrPastDeadline):
		http.Error(w, err.Error(), http.StatusGone)
	case errors.Is(err, exam.ErrUnknownQuestion):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
