// Package server exposes analysis, escalation and expert request operations
// as a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"vintagevision/internal/domain"
	"vintagevision/internal/escalation"
	"vintagevision/internal/integrations/llm"
	"vintagevision/internal/requests"
	"vintagevision/internal/store"
)

const (
	defaultMaxUploadBytes = 8 << 20
	maxJSONBytes          = 1 << 20
)

type Analyzer interface {
	Analyze(ctx context.Context, img llm.Image, hint string) (domain.AnalysisResult, llm.Usage, error)
}

type HistoryStore interface {
	InsertEscalationRecord(ctx context.Context, r store.EscalationRecord) error
}

type Server struct {
	Manager *requests.Manager
	Config  escalation.Config
	// Analyzer and History are optional. Without an analyzer /api/analyze
	// answers 503; without history evaluations are not recorded.
	Analyzer       Analyzer
	History        HistoryStore
	MaxUploadBytes int64
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/tiers", s.handleTiers)
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/escalation/evaluate", s.handleEvaluate)
	mux.HandleFunc("POST /api/expert-requests", s.handleCreateRequest)
	mux.HandleFunc("GET /api/expert-requests/{id}", s.handleGetRequest)
	mux.HandleFunc("POST /api/expert-requests/{id}/pay", s.transitionHandler(s.Manager.MarkPaid))
	mux.HandleFunc("POST /api/expert-requests/{id}/assign", s.handleAssign)
	mux.HandleFunc("POST /api/expert-requests/{id}/start", s.transitionHandler(s.Manager.StartReview))
	mux.HandleFunc("POST /api/expert-requests/{id}/feedback", s.handleFeedback)
	mux.HandleFunc("POST /api/expert-requests/{id}/cancel", s.transitionHandler(s.Manager.Cancel))
	return logRequests(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tiers": s.Config.Tiers})
}

type analyzeResponse struct {
	Analysis   domain.AnalysisResult `json:"analysis"`
	Escalation escalation.Evaluation `json:"escalation"`
	Usage      llm.Usage             `json:"usage"`
}

// handleAnalyze accepts multipart form data with an "image" file and an
// optional "hint" text field.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.Analyzer == nil {
		writeError(w, fmt.Errorf("analyze: %w", llm.ErrNotConfigured))
		return
	}
	limit := s.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		writeError(w, badRequest("invalid upload: %v", err))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, badRequest("missing image file: %v", err))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, badRequest("read image: %v", err))
		return
	}

	img := llm.Image{Data: data, MediaType: header.Header.Get("Content-Type")}
	analysis, usage, err := s.Analyzer.Analyze(r.Context(), img, r.FormValue("hint"))
	if err != nil {
		writeError(w, fmt.Errorf("analyze: %w", err))
		return
	}
	ev := s.evaluate(r.Context(), analysis)
	writeJSON(w, http.StatusOK, analyzeResponse{Analysis: analysis, Escalation: ev, Usage: usage})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var analysis domain.AnalysisResult
	if err := decodeJSON(r, &analysis); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.evaluate(r.Context(), analysis))
}

func (s *Server) evaluate(ctx context.Context, analysis domain.AnalysisResult) escalation.Evaluation {
	ev := escalation.Evaluate(analysis, s.Config)
	log.Printf("escalation evaluated analysis=%s offer=%t urgency=%s triggers=%d", analysis.ID, ev.ShouldOffer, ev.Urgency, len(ev.Triggers))
	if s.History != nil {
		if err := s.History.InsertEscalationRecord(ctx, store.NewEscalationRecord(analysis, ev)); err != nil {
			log.Printf("escalation history error analysis=%s: %v", analysis.ID, err)
		}
	}
	return ev
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var in requests.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	req, err := s.Manager.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.Manager.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) transitionHandler(op func(context.Context, string) (domain.ExpertRequest, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := op(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	}
}

type assignResponse struct {
	Request domain.ExpertRequest `json:"request"`
	Matched bool                 `json:"matched"`
	Match   *domain.ExpertMatch  `json:"match,omitempty"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	req, match, ok, err := s.Manager.AutoAssign(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := assignResponse{Request: req, Matched: ok}
	if ok {
		resp.Match = &match
	}
	writeJSON(w, http.StatusOK, resp)
}

type feedbackResponse struct {
	Request domain.ExpertRequest    `json:"request"`
	Result  requests.FeedbackResult `json:"result"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var fb requests.Feedback
	if err := decodeJSON(r, &fb); err != nil {
		writeError(w, err)
		return
	}
	req, res, err := s.Manager.Complete(r.Context(), r.PathValue("id"), fb)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feedbackResponse{Request: req, Result: res})
}

type requestError struct {
	msg string
}

func (e requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return requestError{msg: fmt.Sprintf(format, args...)}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBytes))
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

func statusFor(err error) int {
	var reqErr requestError
	switch {
	case errors.As(err, &reqErr),
		errors.Is(err, requests.ErrInvalidTier),
		errors.Is(err, requests.ErrInvalidFeedback):
		return http.StatusBadRequest
	case errors.Is(err, requests.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, requests.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, llm.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("http error status=%d: %v", status, err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http encode error: %v", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if strings.HasPrefix(r.URL.Path, "/healthz") {
			return
		}
		log.Printf("http %s %s status=%d took=%s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}
