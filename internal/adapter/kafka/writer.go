package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/sensingclues/harmonie-grib/internal/config"
	"github.com/sensingclues/harmonie-grib/internal/domain"
)

// Writer announces published runs on a Kafka topic.
// It implements pipeline.Notifier.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured run topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
	return &Writer{writer: w, logger: logger}
}

// Notify publishes the run manifest keyed by run label, so every message
// about one run lands on the same partition.
func (w *Writer) Notify(ctx context.Context, m domain.RunManifest) error {
	msg, err := serializeToMessage(m)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish run %s: %w", m.RunLabel, err)
	}
	w.logger.Info("run announced", "run", m.RunLabel, "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a RunManifest into a Kafka message.
func serializeToMessage(m domain.RunManifest) (kafkago.Message, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run manifest: %w", err)
	}
	degraded := "false"
	if m.Degraded() {
		degraded = "true"
	}
	return kafkago.Message{
		Key:   []byte(m.RunLabel),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_label", Value: []byte(m.RunLabel)},
			{Key: "published_at", Value: []byte(m.PublishedAt.Format(time.RFC3339))},
			{Key: "degraded", Value: []byte(degraded)},
		},
	}, nil
}
