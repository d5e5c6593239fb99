package sourcesink

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"enrich/internal/config"
	"enrich/internal/constants"
	"enrich/internal/logger"
	"enrich/internal/model"
	"enrich/pkg/retry"
	"enrich/pkg/tracing"
)

// KafkaSource is the reference RecordSource driver: one partitioned
// topic, pulled via FetchMessage so that the returned Record's
// AckHandle is the unacknowledged kafka.Message — commit happens only
// when KafkaCheckpointer.Checkpoint is called on it, never on fetch.
type KafkaSource struct {
	reader *kafka.Reader
	logger logger.Logger
}

func NewKafkaSource(cfg config.KafkaIOConfig, log logger.Logger) *KafkaSource {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	return &KafkaSource{reader: reader, logger: log}
}

func (s *KafkaSource) Next(ctx context.Context) (model.Record, error) {
	m, err := s.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return model.Record{}, ctx.Err()
		}
		return model.Record{}, fmt.Errorf("fetch kafka message: %w", err)
	}
	return model.Record{
		Bytes:       m.Value,
		PartitionID: fmt.Sprintf("%s-%d", m.Topic, m.Partition),
		AckHandle:   m,
	}, nil
}

func (s *KafkaSource) Close() error {
	return s.reader.Close()
}

// KafkaCheckpointer commits the offset carried in a Record's
// AckHandle. Idempotent: committing an already-committed offset is a
// no-op as far as the consumer group is concerned.
type KafkaCheckpointer struct {
	source *KafkaSource
}

func NewKafkaCheckpointer(source *KafkaSource) *KafkaCheckpointer {
	return &KafkaCheckpointer{source: source}
}

func (c *KafkaCheckpointer) Checkpoint(ctx context.Context, r model.Record) error {
	m, ok := r.AckHandle.(kafka.Message)
	if !ok {
		return fmt.Errorf("checkpoint: record has no kafka ack handle")
	}
	return c.source.reader.CommitMessages(ctx, m)
}

// KafkaAttributedSink is the reference AttributedSink/ByteSink
// driver. Attributes are carried as Kafka headers; the event_id
// attribute, when present, becomes the message key so related
// records land on the same partition downstream.
type KafkaAttributedSink struct {
	writer *kafka.Writer
	logger logger.Logger
	retryPolicy retry.Policy
}

func NewKafkaAttributedSink(cfg config.KafkaIOConfig, log logger.Logger) *KafkaAttributedSink {
	return &KafkaAttributedSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: constants.KafkaBatchTimeout,
			WriteTimeout: constants.KafkaWriteTimeout,
			Async:        false,
		},
		logger:      log,
		retryPolicy: retryPolicyFrom(cfg.Retry),
	}
}

func retryPolicyFrom(cfg config.RetryConfig) retry.Policy {
	policy := retry.Policy{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
	}
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		policy.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		policy.MaxInterval = cfg.MaxInterval
	}
	if cfg.Multiplier > 0 {
		policy.Multiplier = cfg.Multiplier
	}
	if cfg.MaxElapsedTime > 0 {
		policy.MaxElapsedTime = cfg.MaxElapsedTime
	}
	return policy
}

func (s *KafkaAttributedSink) Write(ctx context.Context, data []byte, attributes map[string]string) error {
	headers := make([]kafka.Header, 0, len(attributes))
	for k, v := range attributes {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	headers = tracing.InjectTraceContext(ctx, headers)

	key := []byte(attributes["event_id"])

	return retry.RetryWithCallback(ctx, s.retryPolicy, func() error {
		return s.writer.WriteMessages(ctx, kafka.Message{
			Key:     key,
			Value:   data,
			Headers: headers,
			Time:    time.Now(),
		})
	}, func(attempt int, err error, nextDelay time.Duration) {
		s.logger.WarnwCtx(ctx, "Retrying sink write",
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
		)
	})
}

func (s *KafkaAttributedSink) Close() error {
	return s.writer.Close()
}

// KafkaByteSink is the bad-row driver: same writer mechanics as
// KafkaAttributedSink, but satisfies ByteSink's narrower contract
// (no attributes) for the one sink that never needs a whitelist.
type KafkaByteSink struct {
	inner *KafkaAttributedSink
}

func NewKafkaByteSink(cfg config.KafkaIOConfig, log logger.Logger) *KafkaByteSink {
	return &KafkaByteSink{inner: NewKafkaAttributedSink(cfg, log)}
}

func (s *KafkaByteSink) Write(ctx context.Context, data []byte) error {
	return s.inner.Write(ctx, data, nil)
}

func (s *KafkaByteSink) Close() error {
	return s.inner.Close()
}
