package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/spc-outlook-etl/internal/config"
	"github.com/couchcryptid/spc-outlook-etl/internal/domain"
	"github.com/couchcryptid/spc-outlook-etl/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Runner executes a single outlook request.
type Runner interface {
	Run(ctx context.Context, req domain.OutlookRequest) (Result, error)
}

// Publisher delivers extracted collections downstream.
type Publisher interface {
	Publish(ctx context.Context, runID string, key domain.ArchiveKey, collections []domain.HazardCollection) error
}

const (
	minRetryDelay = 5 * time.Second
)

type publishedKey struct {
	archive domain.ArchiveKey
	cycle   domain.Cycle
	hazard  domain.Hazard
}

// Poller periodically runs today's outlooks and publishes collections
// that have not been published before, so each issued cycle goes out once.
// A collection whose issue time changes is published again.
type Poller struct {
	runner    Runner
	publisher Publisher
	products  []config.Product
	interval  time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool

	mu        sync.Mutex
	published map[publishedKey]string // issue time last published
}

// NewPoller creates a Poller. A nil clock uses real time.
func NewPoller(r Runner, pub Publisher, products []config.Product, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{
		runner:    r,
		publisher: pub,
		products:  products,
		interval:  interval,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		published: make(map[publishedKey]string),
	}
}

// CheckReadiness returns nil once a poll has completed without upstream or
// publish failures.
func (p *Poller) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("poller has not completed a successful poll yet")
	}
	return nil
}

// Run polls until the context is cancelled. Failed polls are retried with
// exponential backoff capped at the poll interval.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", "interval", p.interval, "products", len(p.products))
	p.metrics.PollerRunning.Set(1)
	defer p.metrics.PollerRunning.Set(0)

	backoff := minRetryDelay
	for {
		wait := p.interval
		if err := p.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.Error("poll failed", "error", err, "retry_in", backoff)
			wait = backoff
			backoff = nextBackoff(backoff, p.interval)
		} else {
			backoff = minRetryDelay
		}

		if !sleepWithContext(ctx, p.clock, wait) {
			break
		}
	}
	p.logger.Info("poller stopping", "reason", ctx.Err())
	return nil
}

// PollOnce runs every configured product for the current UTC day of the
// poller's clock and publishes new collections. "No data yet" outcomes are
// normal early in the day and are not failures.
func (p *Poller) PollOnce(ctx context.Context) error {
	today := domain.StartOfDay(p.clock.Now())
	p.forgetBefore(today)

	var errs []error
	for _, prod := range p.products {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.pollProduct(ctx, today, prod); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prod, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	p.ready.Store(true)
	return nil
}

func (p *Poller) pollProduct(ctx context.Context, today time.Time, prod config.Product) error {
	req := domain.OutlookRequest{
		Date:    today,
		Day:     prod.Day,
		Type:    prod.Type,
		Hazards: domain.HazardsFor(prod.Type),
		Cycles:  domain.CycleSelection{Mode: domain.CyclesAll},
	}

	res, err := p.runner.Run(ctx, req)
	switch {
	case errors.Is(err, domain.ErrNoDataAvailable), errors.Is(err, domain.ErrNoResults):
		p.logger.Debug("no outlook data yet", "product", prod.String(), "error", err)
		return nil
	case err != nil:
		return err
	}

	fresh := p.unpublished(res.Set)
	if len(fresh) == 0 {
		return nil
	}
	if err := p.publisher.Publish(ctx, res.RunID, res.Set.Key, fresh); err != nil {
		return err
	}
	p.markPublished(res.Set.Key, fresh)
	p.metrics.CollectionsPublished.Add(float64(len(fresh)))
	p.logger.Info("collections published", "product", prod.String(), "count", len(fresh), "run_id", res.RunID)
	return nil
}

func (p *Poller) unpublished(set *domain.ResultSet) []domain.HazardCollection {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []domain.HazardCollection
	for _, c := range set.Entries() {
		issued, ok := p.published[publishedKey{set.Key, c.Cycle, c.Hazard}]
		if ok && issued == c.Issued {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (p *Poller) markPublished(key domain.ArchiveKey, cs []domain.HazardCollection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range cs {
		p.published[publishedKey{key, c.Cycle, c.Hazard}] = c.Issued
	}
}

// forgetBefore drops publish records for past days.
func (p *Poller) forgetBefore(day time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.published {
		if k.archive.Date.Before(day) {
			delete(p.published, k)
		}
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
