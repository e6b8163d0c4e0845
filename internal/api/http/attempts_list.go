package http

import (
	"net/http"
	"strings"

	"github.com/huynhthien07/lingo/internal/exam"
	"github.com/huynhthien07/lingo/internal/rbac"
)

// GET /attempts?test_id=...&user_id=...&status=...&limit=50&offset=0
// RBAC:
// - role with attempt:view-all can list any filters
// - role with attempt:view-own only sees their own (user_id forced to subject)
func ListAttemptsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := rbac.RoleFromContext(r.Context())
		sub := rbac.SubjectFromContext(r.Context())
		if role == "" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if role != "admin" && role != "teacher" {
			userID = sub
		}

		list, err := store.ListAttempts(r.Context(), exam.AttemptListOpts{
			TestID: strings.TrimSpace(r.URL.Query().Get("test_id")),
			UserID: userID,
			Status: strings.TrimSpace(r.URL.Query().Get("status")),
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
