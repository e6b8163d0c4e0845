package http

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/huynhthien07/lingo/internal/rbac"
)

type userRow struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Password string `json:"password,omitempty"` // plaintext on upsert only
}

// POST /users/bulk lets a teacher or admin seed student accounts.
func BulkUpsertUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []userRow
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			http.Error(w, "expected JSON array", http.StatusBadRequest)
			return
		}
		n := 0
		for _, u := range rows {
			if u.Username == "" {
				continue
			}
			if u.ID == "" {
				u.ID = uuid.NewString()
			}
			if u.Role == "" {
				u.Role = "student"
			}
			hash := ""
			if u.Password != "" {
				h, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
				if err != nil {
					http.Error(w, err.Error(), http.StatusInternalServerError)
					return
				}
				hash = string(h)
			}
			_, err := db.ExecContext(r.Context(),
				`INSERT INTO users (id,username,role,pass_hash) VALUES ($1,$2,$3,$4)
				 ON CONFLICT (username) DO UPDATE SET role=EXCLUDED.role,
				   pass_hash=CASE WHEN EXCLUDED.pass_hash='' THEN users.pass_hash ELSE EXCLUDED.pass_hash END`,
				u.ID, u.Username, u.Role, hash)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			n++
		}
		writeJSON(w, map[string]int{"upserted": n})
	}
}

// GET /users?role=student
func ListUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := r.URL.Query().Get("role")
		var rows *sql.Rows
		var err error
		if role == "" {
			rows, err = db.QueryContext(r.Context(), `SELECT id,username,role FROM users ORDER BY username`)
		} else {
			rows, err = db.QueryContext(r.Context(), `SELECT id,username,role FROM users WHERE role=$1 ORDER BY username`, role)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer rows.Close()
		out := []userRow{}
		for rows.Next() {
			var u userRow
			if err := rows.Scan(&u.ID, &u.Username, &u.Role); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			out = append(out, u)
		}
		writeJSON(w, out)
	}
}

// POST /users/change-password changes the caller's own password.
func ChangePasswordHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Old string `json:"old_password"`
			New string `json:"new_password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.New == "" {
			http.Error(w, "old_password and new_password required", http.StatusBadRequest)
			return
		}
		sub := rbac.SubjectFromContext(r.Context())
		var hash string
		if err := db.QueryRowContext(r.Context(),
			`SELECT pass_hash FROM users WHERE id=$1 OR username=$1`, sub).Scan(&hash); err != nil {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Old)) != nil {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		nh, err := bcrypt.GenerateFromPassword([]byte(req.New), bcrypt.DefaultCost)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if _, err := db.ExecContext(r.Context(),
			`UPDATE users SET pass_hash=$1 WHERE id=$2 OR username=$2`, string(nh), sub); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	}
}
