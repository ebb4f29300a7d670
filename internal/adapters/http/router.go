package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/thesis-analysis/internal/config"
	"github.com/kirillkom/thesis-analysis/internal/core/domain"
	"github.com/kirillkom/thesis-analysis/internal/core/ports"
	"github.com/kirillkom/thesis-analysis/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	cfg       config.Config
	submitter ports.DocumentSubmitter
	analyses  ports.AnalysisService
	docs      ports.DocumentReader
	metrics   *metrics.HTTPServerMetrics
}

type RouterOption func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) { rt.metrics = m }
}

func NewRouter(
	cfg config.Config,
	submitter ports.DocumentSubmitter,
	analyses ports.AnalysisService,
	docs ports.DocumentReader,
	opts ...RouterOption,
) *Router {
	rt := &Router{
		cfg:       cfg,
		submitter: submitter,
		analyses:  analyses,
		docs:      docs,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", serveOpenAPISpec)
	mux.HandleFunc("POST /v1/documents", rt.requireAPIKey(rt.submitDocument))
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("GET /v1/documents/{id}/analysis", rt.getAnalysis)
	mux.HandleFunc("POST /v1/documents/{id}/analysis", rt.requireAPIKey(rt.reanalyze))
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, 100*time.Millisecond, rt.reject)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.reject)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) reject(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejection(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) submitDocument(w http.ResponseWriter, r *http.Request) {
	maxBytes := rt.cfg.UploadMaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	// Multipart framing adds a little on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+64<<10)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		if isBodyTooLarge(err) {
			rt.recordSubmission("too_large")
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file exceeds upload limit"})
			return
		}
		rt.recordSubmission("rejected")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form with field 'file' is required"})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		rt.recordSubmission("rejected")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()
	if fileHeader.Size > maxBytes {
		rt.recordSubmission("too_large")
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file exceeds upload limit"})
		return
	}

	doc, err := rt.submitter.Submit(r.Context(), domain.Submission{
		Filename:   fileHeader.Filename,
		MimeType:   fileHeader.Header.Get("Content-Type"),
		Title:      strings.TrimSpace(r.FormValue("title")),
		AuthorName: strings.TrimSpace(r.FormValue("author_name")),
	}, file)
	if err != nil {
		rt.recordSubmission("rejected")
		writeError(w, r, err)
		return
	}

	rt.recordSubmission("accepted")
	w.Header().Set("Location", "/v1/documents/"+doc.ID)
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.docs.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) getAnalysis(w http.ResponseWriter, r *http.Request) {
	view, err := rt.analyses.GetAnalysis(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) reanalyze(w http.ResponseWriter, r *http.Request) {
	view, err := rt.analyses.Reanalyze(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}

func (rt *Router) recordSubmission(outcome string) {
	if rt.metrics != nil {
		rt.metrics.RecordSubmission(serviceName, outcome)
	}
}

// multipart may surface the limit error without keeping the type.
func isBodyTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr) || strings.Contains(err.Error(), "request body too large")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
