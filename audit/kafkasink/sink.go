// Package kafkasink publishes goSession audit events to a Kafka topic.
package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DefaultWriteTimeout bounds one publish.
const DefaultWriteTimeout = 5 * time.Second

var (
	ErrNoBrokers = errors.New("kafkasink: no brokers configured")
	ErrNoTopic   = errors.New("kafkasink: empty topic")
)

// MessageWriter is the subset of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink implements [goSession.AuditSink]. Events are JSON encoded and keyed by
// subject id so one subject's events stay ordered within a partition.
type Sink struct {
	writer  MessageWriter
	logger  *zap.Logger
	timeout time.Duration
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger logs publish failures. The default discards them.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger.Named("audit.kafka")
		}
	}
}

// WithWriteTimeout overrides [DefaultWriteTimeout].
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New builds a sink writing to topic on brokers. Call Close on shutdown.
func New(brokers []string, topic string, opts ...Option) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if topic == "" {
		return nil, ErrNoTopic
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return NewWithWriter(w, opts...), nil
}

// NewWithWriter wraps an existing writer.
func NewWithWriter(w MessageWriter, opts ...Option) *Sink {
	s := &Sink{
		writer:  w,
		logger:  zap.NewNop(),
		timeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Emit implements [goSession.AuditSink]. It runs on the dispatcher goroutine,
// so a failed publish is logged and dropped.
func (s *Sink) Emit(ctx context.Context, event goSession.AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("encode audit event", zap.String("event_type", event.EventType), zap.Error(err))
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg := kafka.Message{
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if event.SubjectID != "" {
		msg.Key = []byte(event.SubjectID)
	}

	if err := s.writer.WriteMessages(writeCtx, msg); err != nil {
		s.logger.Warn("publish audit event", zap.String("event_type", event.EventType), zap.Error(err))
	}
}

// Close flushes and closes the writer. Safe on a nil sink.
func (s *Sink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}

var _ goSession.AuditSink = (*Sink)(nil)
