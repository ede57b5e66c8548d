package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/planforge/finmodel/apperr"
	"github.com/planforge/finmodel/store"
)

// handleUploadDocument accepts a multipart form: project_id (required),
// kind ("file" or "text"), and either a "text" field or a "file" part.
// Only metadata is ever returned — raw bytes never round-trip back out.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "upload exceeds the 20 MiB limit")
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid multipart form")
		return
	}

	projectID := r.FormValue("project_id")
	if projectID == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "project_id is required")
		return
	}
	if _, err := s.store.GetProject(r.Context(), projectID); err != nil {
		writeProjectLookupErr(w, err)
		return
	}

	kind := r.FormValue("kind")
	if kind != "file" && kind != "text" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "kind must be file or text")
		return
	}

	doc := &store.Document{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		CreatedAt: time.Now(),
	}

	switch kind {
	case "text":
		text := r.FormValue("text")
		if text == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required for kind=text")
			return
		}
		doc.Filename = "pasted-text"
		doc.MimeType = "text/plain"
		doc.Text = text
		doc.SizeBytes = int64(len(text))
	case "file":
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "file is required for kind=file")
			return
		}
		defer file.Close()

		body, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to read upload")
			return
		}
		if int64(len(body)) > maxUploadSize {
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "upload exceeds the 20 MiB limit")
			return
		}
		doc.Filename = header.Filename
		doc.MimeType = header.Header.Get("Content-Type")
		doc.Text = string(body)
		doc.SizeBytes = int64(len(body))
	}

	if err := s.store.CreateDocument(r.Context(), doc); err != nil {
		writeErrFromErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         doc.ID,
		"project_id": doc.ProjectID,
		"filename":   doc.Filename,
		"mime_type":  doc.MimeType,
		"size_bytes": doc.SizeBytes,
		"created_at": doc.CreatedAt.Format(rfc3339),
	})
}

func writeDocumentLookupErr(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeErrFromErr(w, apperr.New(apperr.KindNotFound, "DOCUMENT_NOT_FOUND", "document not found"))
		return
	}
	writeErrFromErr(w, err)
}
