package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"identity-forge/internal/batch"
	"identity-forge/internal/catalog"
	"identity-forge/internal/portrait"
	"identity-forge/internal/session"
)

const (
	SessionHeader = "X-Session-ID"
	SessionCookie = "if_session"

	defaultMaxUploadBytes = 25 << 20
	defaultRequestTimeout = 240 * time.Second

	retryMessage = "Failed to generate any images. Please try again."
)

var errUploadTooLarge = errors.New("upload too large")

// BatchGenerator renders one category of styles from a portrait.
type BatchGenerator interface {
	GenerateBatch(ctx context.Context, input portrait.Image, category catalog.Category) (portrait.Results, error)
}

type RequestRecorder interface {
	RecordHTTPRequest(method, route string, status int, d time.Duration)
}

type Options struct {
	Batch    BatchGenerator
	Sessions *session.Store
	Recorder RequestRecorder
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger

	MaxUploadBytes int64
	RequestTimeout time.Duration
}

type Server struct {
	batch    BatchGenerator
	sessions *session.Store
	recorder RequestRecorder
	gatherer prometheus.Gatherer
	logger   *slog.Logger

	maxUploadBytes int64
	requestTimeout time.Duration
}

type apiError struct {
	Error string `json:"error"`
}

type styleResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Icon        string `json:"icon"`
}

type categoryResponse struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type imageResponse struct {
	SessionID string `json:"session_id"`
	MIMEType  string `json:"mime_type"`
	Bytes     int    `json:"bytes"`
}

type generateResponse struct {
	SessionID string            `json:"session_id"`
	Results   map[string]string `json:"results"`
	Generated []string          `json:"generated"`
	Missing   []string          `json:"missing"`
}

type resultsResponse struct {
	SessionID string            `json:"session_id"`
	HasImage  bool              `json:"has_image"`
	Results   map[string]string `json:"results"`
}

func New(opts Options) (*Server, error) {
	if opts.Batch == nil {
		return nil, errors.New("batch generator is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("session store is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &Server{
		batch:          opts.Batch,
		sessions:       opts.Sessions,
		recorder:       opts.Recorder,
		gatherer:       opts.Gatherer,
		logger:         logger,
		maxUploadBytes: maxUpload,
		requestTimeout: timeout,
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/styles", s.handleStyles)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("POST /api/image", s.handleImage)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("GET /api/results", s.handleResults)
	mux.HandleFunc("GET /api/results/{styleID}", s.handleResultDownload)
	mux.HandleFunc("DELETE /api/session", s.handleReset)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return s.withLogging(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	profiles := catalog.Styles()
	if raw := r.URL.Query().Get("category"); strings.TrimSpace(raw) != "" {
		profiles = catalog.StylesIn(catalog.ParseCategory(raw))
	}

	out := make([]styleResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, styleResponse{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Category:    string(p.Category),
			Icon:        string(p.Icon),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	cats := catalog.Categories()
	out := make([]categoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryResponse{ID: string(c), Label: c.Label()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	sessionID := s.sessionID(w, r)

	img, ok, err := s.readUpload(w, r)
	if err != nil {
		writeJSON(w, uploadStatus(err), apiError{Error: err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "missing image"})
		return
	}

	s.sessions.SetImage(sessionID, img)
	writeJSON(w, http.StatusOK, imageResponse{
		SessionID: sessionID,
		MIMEType:  img.MIMEType,
		Bytes:     len(img.Data),
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sessionID := s.sessionID(w, r)

	img, uploaded, err := s.readUpload(w, r)
	if err != nil {
		writeJSON(w, uploadStatus(err), apiError{Error: err.Error()})
		return
	}

	category := catalog.ParseCategory(r.FormValue("category"))

	// The session is claimed before anything in it changes, so a rejected
	// request leaves the running batch's portrait alone.
	if !s.sessions.Begin(sessionID) {
		writeJSON(w, http.StatusConflict, apiError{Error: "generation already in progress"})
		return
	}
	defer s.sessions.End(sessionID)

	var sess session.Session
	if uploaded {
		sess = s.sessions.SetImage(sessionID, img)
	} else {
		sess, _ = s.sessions.Get(sessionID)
		if sess.Image == nil || sess.Image.Empty() {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "upload a portrait first"})
			return
		}
		img = *sess.Image
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	results, err := s.batch.GenerateBatch(ctx, img, category)
	switch {
	case errors.Is(err, batch.ErrNoTargets):
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	case errors.Is(err, batch.ErrAllFailed):
		writeJSON(w, http.StatusBadGateway, apiError{Error: retryMessage})
		return
	case err != nil:
		s.logger.ErrorContext(ctx, "generate failed", "session", sessionID, "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "generation failed"})
		return
	}

	if _, ok := s.sessions.MergeAt(sessionID, sess.Epoch, results); !ok {
		writeJSON(w, http.StatusConflict, apiError{Error: "session was reset during generation"})
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{
		SessionID: sessionID,
		Results:   results.DataURIs(),
		Generated: results.Keys(),
		Missing:   missingStyles(category, results),
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	sessionID := s.sessionID(w, r)

	resp := resultsResponse{SessionID: sessionID, Results: map[string]string{}}
	if sess, ok := s.sessions.Get(sessionID); ok {
		resp.HasImage = sess.Image != nil
		resp.Results = sess.Results.DataURIs()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResultDownload(w http.ResponseWriter, r *http.Request) {
	sessionID := s.sessionID(w, r)
	styleID := r.PathValue("styleID")

	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: "no results for this session"})
		return
	}
	img, ok := sess.Results[styleID]
	if !ok || img.Empty() {
		writeJSON(w, http.StatusNotFound, apiError{Error: fmt.Sprintf("no result for style %q", styleID)})
		return
	}

	w.Header().Set("content-type", img.MIMEType)
	w.Header().Set("content-disposition", fmt.Sprintf("attachment; filename=%q", downloadName(styleID, img)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sessionID := s.sessionID(w, r)
	s.sessions.Reset(sessionID)
	writeJSON(w, http.StatusOK, resultsResponse{SessionID: sessionID, Results: map[string]string{}})
}

// readUpload reads the optional multipart "image" field. ok is false when the
// request carried no file.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (portrait.Image, bool, error) {
	if !strings.HasPrefix(r.Header.Get("content-type"), "multipart/") {
		return portrait.Image{}, false, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return portrait.Image{}, false, fmt.Errorf("%w: limit is %d bytes", errUploadTooLarge, tooLarge.Limit)
		}
		return portrait.Image{}, false, errors.New("invalid multipart form")
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return portrait.Image{}, false, nil
	}
	if err != nil {
		return portrait.Image{}, false, errors.New("invalid image field")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return portrait.Image{}, false, errors.New("failed to read image")
	}

	img, err := portrait.DetectImage(data, header.Header.Get("Content-Type"))
	if err != nil {
		return portrait.Image{}, false, err
	}
	return img, true, nil
}

// sessionID resolves the caller's session, minting a new one and setting the
// cookie when the request has none.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(SessionHeader)); id != "" {
		return id
	}
	if c, err := r.Cookie(SessionCookie); err == nil && strings.TrimSpace(c.Value) != "" {
		return c.Value
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(SessionHeader, id)
	return id
}

func uploadStatus(err error) int {
	if errors.Is(err, errUploadTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func missingStyles(category catalog.Category, results portrait.Results) []string {
	missing := []string{}
	for _, id := range catalog.StyleIDs(category) {
		if _, ok := results[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func downloadName(styleID string, img portrait.Image) string {
	return "identity-forge-" + styleID + img.Extension()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		dur := time.Since(start)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		if s.recorder != nil {
			s.recorder.RecordHTTPRequest(r.Method, route, sw.status, dur)
		}
		s.logger.Info("http", "method", r.Method, "path", r.URL.Path, "status", sw.status, "dur_ms", dur.Milliseconds())
	})
}
