// Package iem fetches SPC outlook archives from the Iowa Environmental
// Mesonet GIS service.
package iem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/couchcryptid/spc-outlook-etl/internal/config"
	"github.com/couchcryptid/spc-outlook-etl/internal/domain"
	"github.com/couchcryptid/spc-outlook-etl/internal/observability"
	"golang.org/x/time/rate"
)

// Variants lists the geometry parameter values upstream is asked for, in
// order. The default is sent without a geom parameter.
var Variants = []string{"", "lyr", "nolyr"}

// errRejected marks a variant upstream refused; the next one is tried.
var errRejected = errors.New("geometry variant rejected")

// maxArchiveSize caps a single response body.
const maxArchiveSize = 512 << 20

// Client implements pipeline.Fetcher against the IEM outlook endpoint.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxAttempts    int
	initialBackoff time.Duration
	logger         *slog.Logger
	metrics        *observability.Metrics
}

// NewClient creates an archive client from the IEM_* settings.
func NewClient(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL:        cfg.IEMBaseURL,
		httpClient:     &http.Client{Timeout: cfg.IEMTimeout},
		limiter:        rate.NewLimiter(rate.Limit(cfg.IEMRateLimit), 1),
		maxAttempts:    cfg.IEMMaxAttempts,
		initialBackoff: cfg.IEMInitialBackoff,
		logger:         logger,
		metrics:        metrics,
	}
}

// Fetch downloads the archive for a key, negotiating the geometry variant.
// A 422 or a variant that keeps failing after its retry budget moves on to
// the next variant. 404 and an empty body yield ErrNoDataAvailable, as does
// every variant rejected. When no variant succeeds and any of them failed
// transiently, the result is ErrFetchFailed.
func (c *Client) Fetch(ctx context.Context, key domain.ArchiveKey) (domain.Archive, error) {
	start := time.Now()
	defer func() { c.metrics.FetchDuration.Observe(time.Since(start).Seconds()) }()

	var failed error
	for _, variant := range Variants {
		data, err := c.fetchVariant(ctx, key, variant)
		switch {
		case err == nil:
			c.logger.Info("archive fetched",
				"date", key.DateString(), "day", int(key.Day), "type", string(key.Type),
				"variant", variantLabel(variant), "bytes", len(data))
			return domain.Archive{Key: key, Data: data, Variant: variant, FetchedAt: domain.Now()}, nil
		case errors.Is(err, errRejected):
			c.logger.Debug("geometry variant rejected, trying next",
				"date", key.DateString(), "variant", variantLabel(variant))
		case errors.Is(err, domain.ErrFetchFailed):
			c.logger.Warn("geometry variant unreachable, trying next",
				"date", key.DateString(), "variant", variantLabel(variant), "error", err)
			failed = err
		default:
			return domain.Archive{}, err
		}
	}
	if failed != nil {
		return domain.Archive{}, failed
	}
	return domain.Archive{}, fmt.Errorf("%s: every geometry variant was rejected: %w", key, domain.ErrNoDataAvailable)
}

func (c *Client) fetchVariant(ctx context.Context, key domain.ArchiveKey, variant string) ([]byte, error) {
	reqURL, err := c.requestURL(key, variant)
	if err != nil {
		return nil, err
	}

	var data []byte
	attempt := 0
	op := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		body, err := c.doRequest(ctx, reqURL)
		if err != nil {
			c.metrics.FetchAttempts.WithLabelValues(variantLabel(variant), outcome(err)).Inc()
			return err
		}
		c.metrics.FetchAttempts.WithLabelValues(variantLabel(variant), "ok").Inc()
		data = body
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("archive fetch failed, retrying",
			"date", key.DateString(), "variant", variantLabel(variant),
			"attempt", attempt, "wait", wait, "error", err)
	}

	err = backoff.RetryNotify(op, c.newBackOff(ctx), notify)
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, errRejected), errors.Is(err, domain.ErrNoDataAvailable), errors.Is(err, domain.ErrMalformedArchive):
		return nil, err
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		return nil, fmt.Errorf("%w: %s after %d attempts: %v", domain.ErrFetchFailed, key, attempt, err)
	}
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	retries := 0
	if c.maxAttempts > 1 {
		retries = c.maxAttempts - 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

func (c *Client) requestURL(key domain.ArchiveKey, variant string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse IEM base url: %w", err)
	}
	q := u.Query()
	q.Set("d", strconv.Itoa(int(key.Day)))
	q.Set("type", key.Type.Code())
	q.Set("sts", key.DateString()+"T00:00Z")
	q.Set("ets", key.Date.AddDate(0, 0, 1).Format(time.DateOnly)+"T00:00Z")
	if variant != "" {
		q.Set("geom", variant)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// doRequest performs one GET. Errors wrapped in backoff.Permanent stop the
// retry loop; anything else is retried.
func (c *Client) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("archive request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(fmt.Errorf("upstream returned 404: %w", domain.ErrNoDataAvailable))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	default:
		return nil, backoff.Permanent(fmt.Errorf("upstream returned status %d: %w", resp.StatusCode, errRejected))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveSize+1))
	if err != nil {
		return nil, fmt.Errorf("read archive body: %w", err)
	}
	if len(body) > maxArchiveSize {
		return nil, backoff.Permanent(fmt.Errorf("%w: archive exceeds %d bytes", domain.ErrMalformedArchive, maxArchiveSize))
	}
	if len(body) == 0 {
		return nil, backoff.Permanent(fmt.Errorf("upstream returned an empty archive: %w", domain.ErrNoDataAvailable))
	}
	return body, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, errRejected):
		return "rejected"
	case errors.Is(err, domain.ErrNoDataAvailable):
		return "no_data"
	default:
		return "error"
	}
}

func variantLabel(v string) string {
	if v == "" {
		return "default"
	}
	return v
}
