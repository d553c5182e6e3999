// Package server exposes the analysis pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/clauseguard/clauseguard/internal/config"
	"github.com/clauseguard/clauseguard/internal/feedback"
	"github.com/clauseguard/clauseguard/internal/jobs"
	"github.com/clauseguard/clauseguard/internal/logging"
	"github.com/clauseguard/clauseguard/internal/models"
	"github.com/clauseguard/clauseguard/internal/vectorstore"
)

// submitter schedules background analyses; satisfied by jobs.Pool.
type submitter interface {
	Submit(ctx context.Context, job *models.JobRecord) error
}

// feedbackStore is the slice of the feedback package the server uses.
type feedbackStore interface {
	Record(ctx context.Context, e *feedback.Entry) error
	GetStats(ctx context.Context) (feedback.Stats, error)
	SyncToCorpus(ctx context.Context, sink feedback.ExemplarSink) (int, error)
}

// corpusAdmin is the admin surface over the vector store.
type corpusAdmin interface {
	GetStats(ctx context.Context) (vectorstore.Stats, error)
	AddVerifiedClause(ctx context.Context, text, category, riskLevel string) error
}

// Server handles the HTTP API.
type Server struct {
	cfg      config.ServerConfig
	registry jobs.Registry
	pool     submitter
	feedback feedbackStore
	corpus   corpusAdmin
	llmStats func() map[string]any
	logger   *logging.Logger
}

// New builds the server. llmStats may be nil.
func New(cfg config.ServerConfig, registry jobs.Registry, pool submitter, fb feedbackStore, corpus corpusAdmin, llmStats func() map[string]any) *Server {
	if llmStats == nil {
		llmStats = func() map[string]any { return map[string]any{} }
	}
	return &Server{
		cfg:      cfg,
		registry: registry,
		pool:     pool,
		feedback: fb,
		corpus:   corpus,
		llmStats: llmStats,
		logger:   logging.With("component", "server"),
	}
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)

	r.Route("/api/analysis", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Get("/{analysisID}/status", s.handleStatus)
		r.Get("/{analysisID}/results", s.handleResults)
	})

	r.Route("/api/feedback", func(r chi.Router) {
		r.Post("/", s.handleFeedback)
		r.Get("/stats", s.handleFeedbackStats)
	})

	r.Route("/api/admin/corpus", func(r chi.Router) {
		r.Get("/stats", s.handleCorpusStats)
		r.Post("/clauses", s.handleCorpusAdd)
		r.Post("/sync", s.handleCorpusSync)
	})

	return r
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.Router()}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()
	s.logger.Info("http server listening", "addr", s.cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"llm":    s.llmStats(),
	})
}

// handleUpload accepts a PDF, registers a job and returns its id. The
// analysis itself runs in the background pool.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize)
	if err := r.ParseMultipartForm(s.cfg.MaxFileSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if filepath.Ext(header.Filename) != ".pdf" {
		writeError(w, http.StatusBadRequest, "only PDF files are supported")
		return
	}

	analysisID := uuid.NewString()
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		s.logger.Error("upload dir creation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	path := filepath.Join(s.cfg.UploadDir, analysisID+".pdf")
	dst, err := os.Create(path)
	if err != nil {
		s.logger.Error("upload write failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	dst.Close()

	job := &models.JobRecord{
		AnalysisID: analysisID,
		Filename:   header.Filename,
		FilePath:   path,
	}
	if err := s.pool.Submit(r.Context(), job); err != nil {
		s.logger.Error("job submission failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to schedule analysis")
		return
	}

	s.logger.Info("upload accepted", "analysis_id", analysisID, "filename", header.Filename)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"analysis_id": analysisID,
		"status":      models.JobProcessing,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"analysis_id": job.AnalysisID,
		"status":      job.Status,
		"progress":    job.Progress,
		"filename":    job.Filename,
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookup(w, r)
	if !ok {
		return
	}

	switch job.Status {
	case models.JobProcessing:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"analysis_id": job.AnalysisID,
			"status":      job.Status,
			"detail":      "analysis still processing",
		})
	case models.JobFailed:
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"analysis_id": job.AnalysisID,
			"status":      job.Status,
			"error":       job.Error,
		})
	default:
		writeJSON(w, http.StatusOK, job.Data)
	}
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var e feedback.Entry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.feedback.Record(r.Context(), &e); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": e.ID})
}

func (s *Server) handleFeedbackStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.feedback.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load feedback stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCorpusStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.corpus.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load corpus stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCorpusAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text      string `json:"text"`
		Category  string `json:"category"`
		RiskLevel string `json:"risk_level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Text == "" || req.Category == "" || req.RiskLevel == "" {
		writeError(w, http.StatusBadRequest, "text, category and risk_level are required")
		return
	}
	if err := s.corpus.AddVerifiedClause(r.Context(), req.Text, req.Category, req.RiskLevel); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add clause")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "added"})
}

func (s *Server) handleCorpusSync(w http.ResponseWriter, r *http.Request) {
	n, err := s.feedback.SyncToCorpus(r.Context(), s.corpus)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"synced": n})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*models.JobRecord, bool) {
	analysisID := chi.URLParam(r, "analysisID")
	job, err := s.registry.Get(r.Context(), analysisID)
	if err != nil {
		writeError(w, http.StatusNotFound, "analysis not found")
		return nil, false
	}
	return job, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{"detail": detail})
}
