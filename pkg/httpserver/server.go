package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/snow-ghost/featsel/baseline"
	"github.com/snow-ghost/featsel/core"
	"github.com/snow-ghost/featsel/dataset"
	"github.com/snow-ghost/featsel/ml"
	"github.com/snow-ghost/featsel/pkg/config"
	"github.com/snow-ghost/featsel/pkg/fetch"
	"github.com/snow-ghost/featsel/pkg/logging"
	"github.com/snow-ghost/featsel/pkg/observability"
	"github.com/snow-ghost/featsel/pkg/store"
	"github.com/snow-ghost/featsel/policy/local"
	"github.com/snow-ghost/featsel/worker"
)

// Fetcher downloads a dataset file from a URL.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*fetch.File, error)
}

// Protector is implemented by fetchers that guard hosts with rate limits and
// circuit breakers. An empty host means every host.
type Protector interface {
	Protection(host string) map[string]interface{}
	ResetProtection(host string)
}

var _ Protector = (*fetch.Client)(nil)

// Deps are the collaborators the server routes to.
type Deps struct {
	Config   *config.Config
	Runner   worker.Runner
	Datasets *dataset.Store
	Runs     *store.Manager
	Fetcher  Fetcher
	Obs      *observability.Manager
}

// Server represents the HTTP server
type Server struct {
	cfg      *config.Config
	logger   *logging.Logger
	mux      *http.ServeMux
	runner   worker.Runner
	datasets *dataset.Store
	runs     *store.Manager
	fetcher  Fetcher
	obs      *observability.Manager
	started  time.Time
	srv      *http.Server
}

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewServer creates a new HTTP server
func NewServer(deps Deps) *Server {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}
	obs := deps.Obs
	if obs == nil {
		obs = observability.New(nil, nil, nil)
	}
	s := &Server{
		cfg:      cfg,
		logger:   obs.GetLogger(),
		mux:      http.NewServeMux(),
		runner:   deps.Runner,
		datasets: deps.Datasets,
		runs:     deps.Runs,
		fetcher:  deps.Fetcher,
		obs:      obs,
		started:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the HTTP routes
func (s *Server) setupRoutes() {
	tel := s.obs.GetTelemetry()

	// Health and metrics
	s.mux.HandleFunc("GET /health", tel.HealthHandler)
	s.mux.Handle("GET /metrics", s.obs.GetMetrics().Handler())
	s.mux.HandleFunc("GET /debug/vars", tel.MetricsHandler)

	// API routes
	s.mux.HandleFunc("POST /api/run", s.handleRun)
	s.mux.HandleFunc("POST /api/upload", s.handleUpload)
	s.mux.HandleFunc("GET /api/datasets", s.handleDatasets)
	s.mux.HandleFunc("DELETE /api/dataset/{name}", s.handleDeleteDataset)
	s.mux.HandleFunc("GET /api/runs", s.handleRuns)
	s.mux.HandleFunc("GET /api/runs/{id}", s.handleRunByID)
	s.mux.HandleFunc("GET /api/methods", s.handleMethods)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/protection", s.handleProtection)
	s.mux.HandleFunc("DELETE /api/protection", s.handleResetProtection)
	s.mux.HandleFunc("DELETE /api/protection/{host}", s.handleResetProtection)

	// Rendered plots
	s.mux.Handle("GET /outputs/", http.StripPrefix("/outputs/", http.FileServer(http.Dir(s.cfg.Paths.OutputDir))))
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.requestID(s.cors(s.instrument(s.mux)))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	s.logger.Info("starting HTTP server", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// handleHealth reports liveness plus a few process counters.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	generations, infeasible := s.obs.GetTelemetry().Totals()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"service":     "featsel",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"uptime_s":    int(time.Since(s.started).Seconds()),
		"generations": generations,
		"infeasible":  infeasible,
	})
}

// handleProtection reports download protection state, for one host when the
// host query parameter is set.
func (s *Server) handleProtection(w http.ResponseWriter, r *http.Request) {
	p, ok := s.fetcher.(Protector)
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: ErrorBody{Message: "URL downloads are disabled", Code: "PROTECTION_DISABLED"}})
		return
	}
	writeJSON(w, http.StatusOK, p.Protection(r.URL.Query().Get("host")))
}

// handleResetProtection closes the breaker and refills the bucket of a host,
// or of every host.
func (s *Server) handleResetProtection(w http.ResponseWriter, r *http.Request) {
	p, ok := s.fetcher.(Protector)
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: ErrorBody{Message: "URL downloads are disabled", Code: "PROTECTION_DISABLED"}})
		return
	}
	host := r.PathValue("host")
	p.ResetProtection(host)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "host": host})
}

// handleMethods lists the accepted option values.
func (s *Server) handleMethods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"methods":       baseline.Names(),
		"model_types":   ml.ModelTypes,
		"ga_versions":   []string{"optimized", "original"},
		"modes":         []string{worker.ModeAll, worker.ModeSelected},
		"problem_types": []string{string(core.Regression), string(core.Classification)},
	})
}

// handleUpload stores a dataset file and returns its description.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.datasets == nil {
		s.writeError(w, r, errors.New("dataset storage is not configured"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, dataset.MaxFileSize+multipartSlack)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, formFileError(err))
		return
	}
	defer file.Close()

	info, err := s.datasets.Save(header.Filename, file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("dataset uploaded", "file", info.Filename, "rows", info.Rows, "columns", info.Columns)
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	if s.datasets == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"datasets": []dataset.Info{}})
		return
	}
	infos, err := s.datasets.List()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if infos == nil {
		infos = []dataset.Info{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"datasets": infos})
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	if s.datasets == nil {
		s.writeError(w, r, dataset.ErrNotFound)
		return
	}
	name := r.PathValue("name")
	if err := s.datasets.Delete(name); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Dataset '%s' deleted successfully", name),
	})
}

// handleRuns lists stored runs. format=csv returns the flat export.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"runs": []store.RunRecord{}})
		return
	}
	q := r.URL.Query()
	filter := store.Filter{
		Dataset:     q.Get("dataset"),
		ProblemType: q.Get("problem_type"),
	}
	var err error
	if filter.Limit, err = queryInt(q.Get("limit"), "limit"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if filter.Offset, err = queryInt(q.Get("offset"), "offset"); err != nil {
		s.writeError(w, r, err)
		return
	}

	switch format := store.ExportFormat(q.Get("format")); format {
	case store.ExportFormatCSV:
		body, err := s.runs.Export(filter, format)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="runs.csv"`)
		_, _ = w.Write(body)
	case "", store.ExportFormatJSON:
		records, err := s.runs.List(filter)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if records == nil {
			records = []store.RunRecord{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"runs": records})
	default:
		s.writeError(w, r, &core.ContractError{Field: "format", Reason: "must be 'json' or 'csv'"})
	}
}

func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, r, store.ErrNotFound)
		return
	}
	rec, err := s.runs.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func queryInt(v, field string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &core.ContractError{Field: field, Reason: "must be a non-negative integer"}
	}
	return n, nil
}

// errDownload marks URL fetch failures, reported as bad input.
type errDownload struct{ err error }

func (e *errDownload) Error() string { return "failed to download from URL: " + e.err.Error() }
func (e *errDownload) Unwrap() error { return e.err }

// writeError maps an error onto a status code and the JSON envelope.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err,
			"request_id", observability.GetRequestIDFromContext(r.Context()))
	} else {
		s.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: body})
}

func classify(err error) (int, ErrorBody) {
	var (
		ce *core.ContractError
		de *errDownload
		mb *http.MaxBytesError
	)
	switch {
	case errors.As(err, &ce):
		return http.StatusBadRequest, ErrorBody{
			Message: ce.Error(),
			Code:    "INVALID_REQUEST",
			Details: map[string]string{"field": ce.Field},
		}
	case errors.As(err, &mb):
		return http.StatusBadRequest, ErrorBody{Message: "file too large, maximum size is 50MB", Code: "FILE_TOO_LARGE"}
	case errors.As(err, &de):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusBadRequest, ErrorBody{Message: "URL request timed out", Code: "DOWNLOAD_FAILED"}
		}
		return http.StatusBadRequest, ErrorBody{Message: de.Error(), Code: "DOWNLOAD_FAILED"}
	case errors.Is(err, dataset.ErrNotFound):
		return http.StatusNotFound, ErrorBody{Message: "Dataset not found", Code: "NOT_FOUND"}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrorBody{Message: "Run not found", Code: "NOT_FOUND"}
	case errors.Is(err, local.ErrRunTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorBody{Message: "run exceeded the time limit", Code: "RUN_TIMEOUT"}
	case errors.Is(err, worker.ErrNoFeasible):
		return http.StatusInternalServerError, ErrorBody{Message: "Genetic Algorithm failed: " + err.Error(), Code: "RUN_FAILED"}
	}
	return http.StatusInternalServerError, ErrorBody{Message: err.Error(), Code: "INTERNAL_ERROR"}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
