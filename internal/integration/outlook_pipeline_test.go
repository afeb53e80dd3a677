//go:build integration

package integration_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/couchcryptid/spc-outlook-etl/internal/adapter/archive"
	"github.com/couchcryptid/spc-outlook-etl/internal/adapter/iem"
	"github.com/couchcryptid/spc-outlook-etl/internal/adapter/kafka"
	"github.com/couchcryptid/spc-outlook-etl/internal/adapter/shapefile"
	"github.com/couchcryptid/spc-outlook-etl/internal/config"
	"github.com/couchcryptid/spc-outlook-etl/internal/domain"
	"github.com/couchcryptid/spc-outlook-etl/internal/observability"
	"github.com/couchcryptid/spc-outlook-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	gj "github.com/paulmach/go.geojson"
	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testOutlookTopic = "test-outlooks"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("spc-outlook-it"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// fakeIEM serves one synthetic day 1 convective archive for any date.
func fakeIEM(t *testing.T, key domain.ArchiveKey) *httptest.Server {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, shapefile.WriteArchive(&buf, shapefile.SyntheticLayers(key, domain.ValidCycles(key.Day, key.Type))))
	data := buf.Bytes()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("type") != "C" || r.URL.Query().Get("d") != "1" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestPollerEndToEnd wires the IEM client, filesystem store, decoder,
// pipeline, poller and Kafka writer, and checks that one poll publishes
// every (cycle, hazard) of the day exactly once.
func TestPollerEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	now := time.Date(2025, 3, 14, 21, 0, 0, 0, time.UTC)
	fc := clockwork.NewFakeClockAt(now)
	domain.SetClock(fc)
	t.Cleanup(func() { domain.SetClock(nil) })

	key := domain.NewArchiveKey(now, 1, domain.Convective)
	upstream := fakeIEM(t, key)

	broker := startKafka(ctx, t)
	createTopic(t, broker, testOutlookTopic)

	cfg := &config.Config{
		IEMBaseURL:        upstream.URL,
		IEMTimeout:        5 * time.Second,
		IEMMaxAttempts:    2,
		IEMInitialBackoff: 10 * time.Millisecond,
		IEMRateLimit:      100,
		ArchiveDir:        t.TempDir(),
		KafkaBrokers:      []string{broker},
		KafkaOutlookTopic: testOutlookTopic,
	}
	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	store := archive.NewFSStore(cfg.ArchiveDir)
	fetcher := archive.NewCachingFetcher(iem.NewClient(cfg, logger, metrics), store, logger, metrics)
	p := pipeline.New(fetcher, shapefile.NewDecoder(logger), logger, metrics, 4)

	writer := kafka.NewWriter(cfg, logger)
	t.Cleanup(func() { _ = writer.Close() })

	poller := pipeline.NewPoller(p, writer,
		[]config.Product{{Day: 1, Type: domain.Convective}, {Day: 2, Type: domain.Convective}},
		time.Minute, fc, logger, metrics)

	require.NoError(t, poller.PollOnce(ctx))
	require.NoError(t, poller.PollOnce(ctx))
	require.NoError(t, poller.CheckReadiness(ctx))
	assert.InDelta(t, 25, testutil.ToFloat64(metrics.CollectionsPublished), 0)

	_, err := os.Stat(store.Path(key))
	require.NoError(t, err, "archive should be persisted for audit")

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testOutlookTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	keys := make(map[string]bool)
	for range 25 {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from outlook topic")

		keys[string(msg.Key)] = true
		fcoll, err := gj.UnmarshalFeatureCollection(msg.Value)
		require.NoError(t, err)
		assert.NotEmpty(t, fcoll.Features)
	}

	assert.Len(t, keys, 25)
	assert.True(t, keys["2025-03-14:1:convective:1630z:tornado"])
	assert.True(t, keys["2025-03-14:1:convective:20z:tstm"])
}
