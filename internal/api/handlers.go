package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/saofleet/reconciler/internal/jobs"
	"github.com/saofleet/reconciler/internal/status"
)

// Response messages kept from the service's original web front-end.
const (
	msgStarted      = "Proceso iniciado"
	msgNotAvailable = "Archivo no disponible o el proceso no ha finalizado."
)

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}

// clientKey identifies the caller for rate limiting.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// handleUpload accepts the two datasets and starts a job.
// POST /upload (multipart: servicios|services, usos|usages)
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, "too many uploads, retry later")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadMB<<20)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	services, closeServices, err := formFile(r, "servicios", "services")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer closeServices()
	usages, closeUsages, err := formFile(r, "usos", "usages")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer closeUsages()

	jobID, err := s.jobs.Submit(r.Context(), services, usages)
	if err != nil {
		var input *jobs.InputError
		if errors.As(err, &input) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log("error", "Submit failed: %v", err)
		writeError(w, http.StatusInternalServerError, "could not start job")
		return
	}

	s.log("info", "Job %s submitted (%s, %s)", jobID, services.Name, usages.Name)
	writeJSON(w, http.StatusAccepted, UploadResponse{Message: msgStarted, TaskID: jobID})
}

// formFile returns the first present file among the field names.
func formFile(r *http.Request, names ...string) (jobs.Upload, func(), error) {
	for _, name := range names {
		f, hdr, err := r.FormFile(name)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return jobs.Upload{}, nil, err
		}
		return jobs.Upload{Name: hdr.Filename, Body: f}, func() { f.Close() }, nil
	}
	return jobs.Upload{}, nil, errors.New("missing file field " + names[0])
}

// handleStatus returns the latest job snapshot.
// GET /status/{id}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.jobs.Status(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, status.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown task")
	case err != nil:
		s.log("error", "Status lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "status unavailable")
	default:
		writeJSON(w, http.StatusOK, snap)
	}
}

// handleDownload streams the result artifact as an attachment.
// GET /download/{id}
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	rc, name, err := s.jobs.Result(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, status.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown task")
		return
	case errors.Is(err, jobs.ErrNotReady):
		writeError(w, http.StatusBadRequest, msgNotAvailable)
		return
	case err != nil:
		s.log("error", "Download failed: %v", err)
		writeError(w, http.StatusInternalServerError, "result unavailable")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Type", contentType(name))
	if _, err := io.Copy(w, rc); err != nil {
		s.log("warning", "Download interrupted: %v", err)
	}
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/octet-stream"
}

// handleHealth returns a simple health check response.
// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: s.config.Version})
}
