package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/spc-outlook-etl/internal/domain"
	"github.com/couchcryptid/spc-outlook-etl/internal/observability"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Fetcher retrieves the raw archive for a (date, day, type).
type Fetcher interface {
	Fetch(ctx context.Context, key domain.ArchiveKey) (domain.Archive, error)
}

// Decoder turns a raw archive into its record manifest.
type Decoder interface {
	Decode(a domain.Archive) (domain.Manifest, error)
}

// Result is the outcome of one request.
type Result struct {
	RunID   string
	Archive domain.Archive
	// Set is nil in download-only mode.
	Set *domain.ResultSet
}

// Pipeline orchestrates fetch, decode, cycle selection and hazard extraction.
type Pipeline struct {
	fetcher Fetcher
	decoder Decoder
	logger  *slog.Logger
	metrics *observability.Metrics
	workers int
}

// New creates a Pipeline. workers bounds concurrent extraction; values
// below 1 run extraction serially.
func New(f Fetcher, d Decoder, logger *slog.Logger, metrics *observability.Metrics, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		fetcher: f,
		decoder: d,
		logger:  logger,
		metrics: metrics,
		workers: workers,
	}
}

// Run executes one request. When no (cycle, hazard) pair produced geometry
// it returns the populated Result alongside an error wrapping
// domain.ErrNoResults, so callers can still report the diagnostics.
func (p *Pipeline) Run(ctx context.Context, req domain.OutlookRequest) (Result, error) {
	start := time.Now()
	res := Result{RunID: uuid.NewString()}
	key := domain.NewArchiveKey(req.Date, req.Day, req.Type)
	logger := p.logger.With(
		"run_id", res.RunID,
		"date", key.DateString(),
		"day", int(key.Day),
		"type", string(key.Type),
	)

	err := p.run(ctx, logger, key, req, &res)
	p.metrics.PipelineRuns.WithLabelValues(runOutcome(err)).Inc()
	if err != nil {
		return res, err
	}
	p.metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, key domain.ArchiveKey, req domain.OutlookRequest, res *Result) error {
	archive, err := p.fetcher.Fetch(ctx, key)
	if err != nil {
		logger.Warn("archive fetch failed", "error", err)
		return fmt.Errorf("fetch %s: %w", key, err)
	}
	res.Archive = archive
	logger.Info("archive fetched", "variant", archive.Variant, "bytes", len(archive.Data))

	if req.DownloadOnly {
		return nil
	}

	manifest, err := p.decoder.Decode(archive)
	if err != nil {
		logger.Warn("archive decode failed", "error", err)
		return fmt.Errorf("decode %s: %w", key, err)
	}

	selected := domain.SelectCycles(manifest, req)
	for _, c := range selected.Unscheduled {
		logger.Warn("archive carries unscheduled cycle", "cycle", c.Label())
	}

	set := domain.NewResultSet(key)
	res.Set = set
	p.addDiagnostics(logger, set, selected.Diagnostics...)

	if err := p.Assemble(ctx, logger, selected.Layers, req, set); err != nil {
		return err
	}

	if !set.HasData() {
		return fmt.Errorf("%s cycles %s: %w (%d diagnostics)", key, req.Cycles, domain.ErrNoResults, len(set.Diagnostics()))
	}
	logger.Info("result set assembled", "entries", set.Len(), "diagnostics", len(set.Diagnostics()))
	return nil
}

// Assemble extracts every (cycle, requested hazard) pair into set using a
// bounded worker group. Missing hazards become diagnostics; only context
// cancellation aborts the assembly.
func (p *Pipeline) Assemble(ctx context.Context, logger *slog.Logger, layers []domain.CycleLayer, req domain.OutlookRequest, set *domain.ResultSet) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, layer := range layers {
		for _, h := range req.Hazards {
			spec, ok := domain.LookupHazard(req.Type, h)
			if !ok {
				continue
			}
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				p.extractPair(logger, layer, spec, req, set)
				return nil
			})
		}
	}
	return g.Wait()
}

func (p *Pipeline) extractPair(logger *slog.Logger, layer domain.CycleLayer, spec domain.HazardSpec, req domain.OutlookRequest, set *domain.ResultSet) {
	c, err := domain.Extract(layer, spec, req.Preference)
	if errors.Is(err, domain.ErrHazardUnavailable) {
		p.addDiagnostics(logger, set, domain.Diagnostic{Err: domain.ErrHazardUnavailable, Cycle: layer.Cycle, Hazard: spec.Hazard})
		if req.KeepEmpty {
			set.Put(c)
		}
		return
	}

	if c.Dropped > 0 {
		logger.Debug("records dropped", "cycle", c.Cycle.Label(), "hazard", string(c.Hazard), "dropped", c.Dropped)
	}
	if c.Reordered {
		logger.Debug("layered bands reordered", "cycle", c.Cycle.Label(), "hazard", string(c.Hazard))
	}

	if c.Empty() {
		if req.KeepEmpty {
			set.Put(c)
		}
		return
	}
	set.Put(c)
	p.metrics.CollectionsExtracted.WithLabelValues(string(c.Hazard)).Inc()
}

func (p *Pipeline) addDiagnostics(logger *slog.Logger, set *domain.ResultSet, diags ...domain.Diagnostic) {
	for _, d := range diags {
		kind := diagnosticKind(d)
		p.metrics.Diagnostics.WithLabelValues(kind).Inc()
		logger.Info("diagnostic", "kind", kind, "cycle", d.Cycle.Label(), "hazard", string(d.Hazard))
	}
	set.AddDiagnostic(diags...)
}

func diagnosticKind(d domain.Diagnostic) string {
	switch {
	case errors.Is(d, domain.ErrCycleNotIssued):
		return "cycle_not_issued"
	case errors.Is(d, domain.ErrHazardUnavailable):
		return "hazard_unavailable"
	default:
		return "other"
	}
}

func runOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNoResults):
		return "no_results"
	case errors.Is(err, domain.ErrNoDataAvailable):
		return "no_data"
	default:
		return "error"
	}
}
