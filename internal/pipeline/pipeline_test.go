package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/spc-outlook-etl/internal/adapter/shapefile"
	"github.com/couchcryptid/spc-outlook-etl/internal/domain"
	"github.com/couchcryptid/spc-outlook-etl/internal/observability"
	"github.com/couchcryptid/spc-outlook-etl/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeFetcher struct {
	data  []byte
	err   error
	calls atomic.Int64
}

func (f *fakeFetcher) Fetch(_ context.Context, key domain.ArchiveKey) (domain.Archive, error) {
	f.calls.Add(1)
	if f.err != nil {
		return domain.Archive{}, f.err
	}
	return domain.Archive{Key: key, Data: f.data, Variant: "", FetchedAt: domain.Now()}, nil
}

type countingDecoder struct {
	inner pipeline.Decoder
	calls atomic.Int64
}

func (d *countingDecoder) Decode(a domain.Archive) (domain.Manifest, error) {
	d.calls.Add(1)
	return d.inner.Decode(a)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func archiveBytes(t *testing.T, layers []shapefile.Layer) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, shapefile.WriteArchive(&buf, layers))
	return buf.Bytes()
}

func newPipeline(f pipeline.Fetcher, metrics *observability.Metrics) (*pipeline.Pipeline, *countingDecoder) {
	dec := &countingDecoder{inner: shapefile.NewDecoder(discardLogger())}
	return pipeline.New(f, dec, discardLogger(), metrics, 4), dec
}

func mustRequest(t *testing.T, in domain.RequestInput) domain.OutlookRequest {
	t.Helper()
	req, err := domain.ParseRequest(in)
	require.NoError(t, err)
	return req
}

func withoutCategory(layers []shapefile.Layer, category string) []shapefile.Layer {
	out := make([]shapefile.Layer, len(layers))
	for i, l := range layers {
		out[i] = shapefile.Layer{Name: l.Name}
		for _, f := range l.Features {
			if f.Category != category {
				out[i].Features = append(out[i].Features, f)
			}
		}
	}
	return out
}

var testDate = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

// --- tests ---

func TestPipeline_Run_FullDayConvective(t *testing.T) {
	key := domain.NewArchiveKey(testDate, 1, domain.Convective)
	cycles := domain.ValidCycles(1, domain.Convective)
	f := &fakeFetcher{data: archiveBytes(t, shapefile.SyntheticLayers(key, cycles))}
	metrics := observability.NewMetricsForTesting()
	p, _ := newPipeline(f, metrics)

	res, err := p.Run(context.Background(), mustRequest(t, domain.RequestInput{
		Date: "2025-03-14", Day: 1, Type: "convective", Hazards: "all", Cycles: "all",
	}))
	require.NoError(t, err)
	require.NotNil(t, res.Set)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 25, res.Set.Len())
	assert.Empty(t, res.Set.Diagnostics())
	assert.Equal(t, cycles, res.Set.Cycles())

	cat, ok := res.Set.Get(domain.NewCycle(16, 30), domain.HazardCategorical)
	require.True(t, ok)
	assert.Equal(t, domain.Layered, cat.Encoding)
	thresholds := make([]string, len(cat.Records))
	for i, r := range cat.Records {
		thresholds[i] = r.Threshold
	}
	if diff := cmp.Diff([]string{"TSTM", "MRGL", "SLGT", "ENH"}, thresholds); diff != "" {
		t.Errorf("categorical thresholds mismatch (-want +got):\n%s", diff)
	}

	tstm, ok := res.Set.Get(domain.NewCycle(20, 0), domain.HazardTSTM)
	require.True(t, ok)
	require.Len(t, tstm.Records, 1)
	assert.Equal(t, "TSTM", tstm.Records[0].Threshold)

	assert.InDelta(t, 5, testutil.ToFloat64(metrics.CollectionsExtracted.WithLabelValues("tornado")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.PipelineRuns.WithLabelValues("ok")), 0)
}

func TestPipeline_Run_FireMissingCycle(t *testing.T) {
	key := domain.NewArchiveKey(testDate, 2, domain.Fire)
	f := &fakeFetcher{data: archiveBytes(t, shapefile.SyntheticLayers(key, []domain.Cycle{domain.NewCycle(7, 0)}))}
	metrics := observability.NewMetricsForTesting()
	p, _ := newPipeline(f, metrics)

	res, err := p.Run(context.Background(), mustRequest(t, domain.RequestInput{
		Date: "2025-03-14", Day: 2, Type: "fire", Hazards: "all", Cycles: "all",
	}))
	require.NoError(t, err)

	entries := res.Set.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, domain.HazardFire, entries[0].Hazard)
	assert.Equal(t, domain.HazardDryThunder, entries[1].Hazard)
	for _, e := range entries {
		assert.Equal(t, domain.NewCycle(7, 0), e.Cycle)
	}

	diags := res.Set.Diagnostics()
	require.Len(t, diags, 1)
	assert.ErrorIs(t, diags[0], domain.ErrCycleNotIssued)
	assert.Equal(t, domain.NewCycle(17, 0), diags[0].Cycle)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Diagnostics.WithLabelValues("cycle_not_issued")), 0)
}

func TestPipeline_Run_MissingHazardIsDiagnostic(t *testing.T) {
	key := domain.NewArchiveKey(testDate, 1, domain.Convective)
	layers := withoutCategory(shapefile.SyntheticLayers(key, []domain.Cycle{domain.NewCycle(20, 0)}), "TORNADO")
	f := &fakeFetcher{data: archiveBytes(t, layers)}
	p, _ := newPipeline(f, observability.NewMetricsForTesting())

	res, err := p.Run(context.Background(), mustRequest(t, domain.RequestInput{
		Date: "2025-03-14", Day: 1, Type: "convective", Hazards: "categorical,tornado", Cycles: "20z",
	}))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Set.Len())
	_, ok := res.Set.Get(domain.NewCycle(20, 0), domain.HazardCategorical)
	assert.True(t, ok)
	_, ok = res.Set.Get(domain.NewCycle(20, 0), domain.HazardTornado)
	assert.False(t, ok)

	diags := res.Set.Diagnostics()
	require.Len(t, diags, 1)
	assert.ErrorIs(t, diags[0], domain.ErrHazardUnavailable)
	assert.Equal(t, domain.HazardTornado, diags[0].Hazard)
}

func TestPipeline_Run_KeepEmptyMarksMissingHazard(t *testing.T) {
	key := domain.NewArchiveKey(testDate, 1, domain.Convective)
	layers := withoutCategory(shapefile.SyntheticLayers(key, []domain.Cycle{domain.NewCycle(20, 0)}), "TORNADO")
	f := &fakeFetcher{data: archiveBytes(t, layers)}
	p, _ := newPipeline(f, observability.NewMetricsForTesting())

	res, err := p.Run(context.Background(), mustRequest(t, domain.RequestInput{
		Date: "2025-03-14", Hazards: "categorical,tornado", Cycles: "latest", KeepEmpty: true,
	}))
	require.NoError(t, err)

	tor, ok := res.Set.Get(domain.NewCycle(20, 0), domain.HazardTornado)
	require.True(t, ok)
	assert.True(t, tor.Empty())
	assert.Equal(t, 2, res.Set.Len())
}

func TestPipeline_Run_DownloadOnlySkipsDecode(t *testing.T) {
	f := &fakeFetcher{data: []byte("not even a zip")}
	p, dec := newPipeline(f, observability.NewMetricsForTesting())

	res, err := p.Run(context.Background(), mustRequest(t, domain.RequestInput{
		Date: "2025-03-14", DownloadOnly: true,
	}))
	require.NoError(t, err)

	assert.Nil(t, res.Set)
	assert.Equal(t, []byte("not even a zip"), res.Archive.Data)
	assert.Zero(t, dec.calls.Load())
}

func TestPipeline_Run_NoResults(t *testing.T) {
	key := domain.NewArchiveKey(testDate, 1, domain.Convective)
	layers := withoutCategory(shapefile.SyntheticLayers(key, []domain.Cycle{domain.NewCycle(1, 0)}), "HAIL")
	f := &fakeFetcher{data: archiveBytes(t, layers)}
	metrics := observability.NewMetricsForTesting()
	p, _ := newPipeline(f, metrics)

	res, err := p.Run(context.Background(), mustRequest(t, domain.RequestInput{
		Date: "2025-03-14", Hazards: "hail", Cycles: "01z,20z",
	}))
	require.ErrorIs(t, err, domain.ErrNoResults)

	require.NotNil(t, res.Set)
	assert.Zero(t, res.Set.Len())
	assert.Len(t, res.Set.Diagnostics(), 2)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.PipelineRuns.WithLabelValues("no_results")), 0)
}

func TestPipeline_Run_FetchErrorsPropagate(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outcome string
	}{
		{"no data", domain.ErrNoDataAvailable, "no_data"},
		{"fetch failed", domain.ErrFetchFailed, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := observability.NewMetricsForTesting()
			p, dec := newPipeline(&fakeFetcher{err: tt.err}, metrics)

			_, err := p.Run(context.Background(), mustRequest(t, domain.RequestInput{Date: "2025-03-14"}))
			require.ErrorIs(t, err, tt.err)
			assert.Zero(t, dec.calls.Load())
			assert.InDelta(t, 1, testutil.ToFloat64(metrics.PipelineRuns.WithLabelValues(tt.outcome)), 0)
		})
	}
}

func TestPipeline_Run_MalformedArchive(t *testing.T) {
	p, _ := newPipeline(&fakeFetcher{data: []byte("garbage")}, observability.NewMetricsForTesting())

	_, err := p.Run(context.Background(), mustRequest(t, domain.RequestInput{Date: "2025-03-14"}))
	require.ErrorIs(t, err, domain.ErrMalformedArchive)
}

func TestPipeline_Run_CancelledContext(t *testing.T) {
	key := domain.NewArchiveKey(testDate, 1, domain.Convective)
	f := &fakeFetcher{data: archiveBytes(t, shapefile.SyntheticLayers(key, domain.ValidCycles(1, domain.Convective)))}
	p, _ := newPipeline(f, observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, mustRequest(t, domain.RequestInput{Date: "2025-03-14"}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
