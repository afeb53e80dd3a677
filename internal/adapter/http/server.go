package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/spc-outlook-etl/internal/adapter/geojson"
	"github.com/couchcryptid/spc-outlook-etl/internal/domain"
	"github.com/couchcryptid/spc-outlook-etl/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const outlookTimeout = 2 * time.Minute

// Server exposes health, readiness, metrics and on-demand outlook endpoints.
type Server struct {
	httpServer *http.Server
	runner     pipeline.Runner
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz and /metrics
// routes. When runner is non-nil, GET /outlooks/{date} runs a request
// through the pipeline and returns its collections.
func NewServer(addr string, ready sharedobs.ReadinessChecker, runner pipeline.Runner, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: outlookTimeout + 10*time.Second,
			IdleTimeout:  60 * time.Second,
		},
		runner: runner,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	if runner != nil {
		mux.HandleFunc("GET /outlooks/{date}", s.handleOutlook)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type diagnosticJSON struct {
	Kind    string `json:"kind"`
	Cycle   string `json:"cycle"`
	Hazard  string `json:"hazard,omitempty"`
	Message string `json:"message"`
}

type outlookResponse struct {
	RunID       string            `json:"run_id"`
	Date        string            `json:"date"`
	Day         int               `json:"day"`
	Type        string            `json:"type"`
	Collections []json.RawMessage `json:"collections"`
	Diagnostics []diagnosticJSON  `json:"diagnostics"`
}

func (s *Server) handleOutlook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := domain.RequestInput{
		Date:      r.PathValue("date"),
		Type:      q.Get("type"),
		Hazards:   q.Get("hazards"),
		Cycles:    q.Get("cycles"),
		Geometry:  q.Get("geometry"),
		KeepEmpty: q.Get("keep_empty") == "true",
	}
	if raw := q.Get("day"); raw != "" {
		day, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "day must be 1, 2 or 3", nil)
			return
		}
		in.Day = day
	}

	req, err := domain.ParseRequest(in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), outlookTimeout)
	defer cancel()

	res, err := s.runner.Run(ctx, req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("outlook request failed", "error", err, "run_id", res.RunID)
		}
		var diags []diagnosticJSON
		if res.Set != nil {
			diags = diagnostics(res.Set.Diagnostics())
		}
		writeError(w, status, err.Error(), diags)
		return
	}

	body := outlookResponse{
		RunID:       res.RunID,
		Date:        res.Set.Key.DateString(),
		Day:         int(res.Set.Key.Day),
		Type:        string(res.Set.Key.Type),
		Collections: []json.RawMessage{},
		Diagnostics: diagnostics(res.Set.Diagnostics()),
	}
	for _, c := range res.Set.Entries() {
		data, err := geojson.Marshal(res.Set.Key, c)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error(), nil)
			return
		}
		body.Collections = append(body.Collections, data)
	}
	sharedobs.WriteJSON(w, http.StatusOK, body)
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoDataAvailable):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoResults):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrFetchFailed), errors.Is(err, domain.ErrMalformedArchive):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func diagnostics(ds []domain.Diagnostic) []diagnosticJSON {
	out := make([]diagnosticJSON, len(ds))
	for i, d := range ds {
		kind := "hazard_unavailable"
		if errors.Is(d, domain.ErrCycleNotIssued) {
			kind = "cycle_not_issued"
		}
		out[i] = diagnosticJSON{
			Kind:    kind,
			Cycle:   d.Cycle.Label(),
			Hazard:  string(d.Hazard),
			Message: d.Error(),
		}
	}
	return out
}

func writeError(w http.ResponseWriter, status int, msg string, diags []diagnosticJSON) {
	body := map[string]any{"error": msg}
	if len(diags) > 0 {
		body["diagnostics"] = diags
	}
	sharedobs.WriteJSON(w, status, body)
}
