package server

import (
	"net/http"
	"strconv"

	"studypal/pkg/domain"
	"studypal/pkg/queue"
)

type uploadResponse struct {
	Document domain.Document `json:"document"`
	Job      queue.JobStatus `json:"job"`
}

type listDocumentsResponse struct {
	Documents []domain.Document `json:"documents"`
	Total     int               `json:"total"`
	Offset    int               `json:"offset"`
	Limit     int               `json:"limit"`
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request, user domain.User) {
	if user.Role != domain.RoleInstructor && user.Role != domain.RoleAdmin {
		writeError(w, http.StatusForbidden, "only instructors can upload documents")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field required")
		return
	}
	defer file.Close()

	doc, job, err := s.app.UploadDocument(r.Context(), user, header.Filename, header.Size, file)
	if err != nil {
		writeAppError(w, err, false)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{Document: doc, Job: job})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request, user domain.User) {
	q := r.URL.Query()
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	status := domain.DocumentStatus(q.Get("status"))

	docs, total, err := s.app.ListDocuments(user, status, offset, limit)
	if err != nil {
		writeAppError(w, err, false)
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	writeJSON(w, http.StatusOK, listDocumentsResponse{Documents: docs, Total: total, Offset: offset, Limit: limit})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request, user domain.User) {
	doc, err := s.app.GetDocument(user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.DeleteDocument(r.Context(), user, r.PathValue("id")); err != nil {
		writeAppError(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request, _ domain.User) {
	job, ok, err := s.app.ExtractionJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}
