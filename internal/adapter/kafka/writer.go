package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/spc-outlook-etl/internal/adapter/geojson"
	"github.com/couchcryptid/spc-outlook-etl/internal/config"
	"github.com/couchcryptid/spc-outlook-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Header keys set on every outlook message.
const (
	HeaderRunID       = "run_id"
	HeaderOutlookType = "outlook_type"
	HeaderDay         = "day"
	HeaderCycle       = "cycle"
	HeaderHazard      = "hazard"
	HeaderIssued      = "issued"
	HeaderPublishedAt = "published_at"
)

// Writer produces hazard collections to a Kafka topic as GeoJSON.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured outlook topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaOutlookTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish writes one message per collection in a single WriteMessages call.
// Messages are keyed by archive, cycle and hazard so reissues of the same
// product land on the same partition.
func (w *Writer) Publish(ctx context.Context, runID string, key domain.ArchiveKey, collections []domain.HazardCollection) error {
	if len(collections) == 0 {
		return nil
	}
	publishedAt := domain.Now()
	msgs := make([]kafkago.Message, len(collections))
	for i := range collections {
		msg, err := serializeToMessage(runID, key, collections[i], publishedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	w.logger.Debug("collections published", "date", key.DateString(), "type", string(key.Type), "count", len(msgs), "run_id", runID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// MessageKey is "<date>:<day>:<type>:<cycle>:<hazard>".
func MessageKey(key domain.ArchiveKey, c domain.HazardCollection) string {
	return fmt.Sprintf("%s:%d:%s:%s:%s", key.DateString(), key.Day, key.Type, c.Cycle.Label(), c.Hazard)
}

// serializeToMessage renders a collection as a GeoJSON Kafka message.
func serializeToMessage(runID string, key domain.ArchiveKey, c domain.HazardCollection, publishedAt time.Time) (kafkago.Message, error) {
	data, err := geojson.Marshal(key, c)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize hazard collection: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(MessageKey(key, c)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: HeaderRunID, Value: []byte(runID)},
			{Key: HeaderOutlookType, Value: []byte(key.Type)},
			{Key: HeaderDay, Value: []byte(fmt.Sprint(int(key.Day)))},
			{Key: HeaderCycle, Value: []byte(c.Cycle.Label())},
			{Key: HeaderHazard, Value: []byte(c.Hazard)},
			{Key: HeaderIssued, Value: []byte(c.Issued)},
			{Key: HeaderPublishedAt, Value: []byte(publishedAt.Format(time.RFC3339))},
		},
	}, nil
}
