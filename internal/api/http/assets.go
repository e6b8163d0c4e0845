package http

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/huynhthien07/lingo/internal/storage"
)

// MountRecordings wires the speaking-answer audio flow: the client uploads
// the recording here first, then saves the returned key as the answer value
// (kind "audio").
func MountRecordings(r chi.Router, bs storage.BlobStore) {
	// POST /recordings/{attemptID}/{questionID}
	r.Post("/{attemptID}/{questionID}", func(w http.ResponseWriter, r *http.Request) {
		attemptID := chi.URLParam(r, "attemptID")
		questionID := chi.URLParam(r, "questionID")
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file required", http.StatusBadRequest)
			return
		}
		defer f.Close()

		key := "recordings/" + attemptID + "/" + questionID + "/" + uuid.NewString() + ".webm"
		if _, err := bs.Put(key, f); err != nil {
			http.Error(w, "store error: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"key": key})
	})

	// GET /recordings/*  -> streams the blob at whatever follows /recordings/
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		rc, err := bs.Get(key)
		if err != nil {
			http.Error(w, "not found: "+err.Error(), http.StatusNotFound)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.Copy(w, rc)
	})
}
