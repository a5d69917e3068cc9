// Package publisher fans committed audit entries out to Kafka for the
// notification and governance collaborators. The database row written with
// the lifecycle transaction is the compliance record of truth; this stream
// is best-effort, so a full buffer drops the event and bumps a counter
// instead of blocking a request handler.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"traincheck/internal/audit"
)

const defaultBufferSize = 1024

var (
	publishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traincheck_audit_published_total",
		Help: "Audit entries successfully published to the broker",
	})
	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traincheck_audit_dropped_total",
		Help: "Audit entries dropped because the publish buffer was full",
	})
	publishErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traincheck_audit_publish_errors_total",
		Help: "Audit entries that failed to publish to the broker",
	})
)

// Emitter is the post-commit hook the lifecycle engine calls. Emit must
// never block.
type Emitter interface {
	Emit(entry *audit.Entry)
}

// Nop drops every entry; used when no broker is configured and in tests.
type Nop struct{}

func (Nop) Emit(*audit.Entry) {}

type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Publisher buffers committed entries and publishes them JSON-encoded,
// keyed by record id so one record's events stay ordered per partition.
type Publisher struct {
	producer producer
	topic    string
	logger   *slog.Logger
	inbox    chan *audit.Entry
}

func New(client *kgo.Client, topic string, logger *slog.Logger) *Publisher {
	return newPublisher(client, topic, logger)
}

func newPublisher(p producer, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{
		producer: p,
		topic:    topic,
		logger:   logger,
		inbox:    make(chan *audit.Entry, defaultBufferSize),
	}
}

func (p *Publisher) Emit(entry *audit.Entry) {
	select {
	case p.inbox <- entry.Clone():
	default:
		droppedTotal.Inc()
		p.logger.Warn("audit publish buffer full, dropping event",
			"event_type", string(entry.EventType),
		)
	}
}

// Run drains the inbox until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-p.inbox:
			p.publish(ctx, entry)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, entry *audit.Entry) {
	payload, err := json.Marshal(wirePayload(entry))
	if err != nil {
		publishErrorsTotal.Inc()
		p.logger.ErrorContext(ctx, "marshal audit entry", "error", err)
		return
	}

	rec := &kgo.Record{
		Topic: p.topic,
		Key:   keyFor(entry),
		Value: payload,
	}
	if err := p.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		publishErrorsTotal.Inc()
		p.logger.ErrorContext(ctx, "publish audit entry",
			"event_type", string(entry.EventType),
			"error", err,
		)
		return
	}
	publishedTotal.Inc()
}

func keyFor(entry *audit.Entry) []byte {
	if entry.RecordID != nil {
		return []byte(entry.RecordID.String())
	}
	return []byte(entry.ID.String())
}

type payload struct {
	ID              string            `json:"id"`
	EventType       string            `json:"event_type"`
	UserID          string            `json:"user_id,omitempty"`
	TrainingID      string            `json:"training_id,omitempty"`
	RecordID        string            `json:"record_id,omitempty"`
	PreviousStatus  string            `json:"previous_status,omitempty"`
	NewStatus       string            `json:"new_status,omitempty"`
	SystemTimestamp string            `json:"system_timestamp"`
	EventSource     string            `json:"event_source"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	IPAddress       string            `json:"ip_address,omitempty"`
}

func wirePayload(e *audit.Entry) payload {
	out := payload{
		ID:              e.ID.String(),
		EventType:       string(e.EventType),
		PreviousStatus:  e.PreviousStatus,
		NewStatus:       e.NewStatus,
		SystemTimestamp: e.SystemTimestamp.Format(time.RFC3339Nano),
		EventSource:     e.EventSource,
		Metadata:        e.Metadata,
		IPAddress:       e.IPAddress,
	}
	if e.UserID != nil {
		out.UserID = e.UserID.String()
	}
	if e.TrainingID != nil {
		out.TrainingID = e.TrainingID.String()
	}
	if e.RecordID != nil {
		out.RecordID = e.RecordID.String()
	}
	return out
}

// EnsureTopic creates the audit topic when it does not exist yet.
func EnsureTopic(ctx context.Context, adm *kadm.Client, topic string) error {
	resps, err := adm.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create audit topic: %w", err)
	}
	for _, resp := range resps {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create audit topic %s: %w", resp.Topic, resp.Err)
		}
	}
	return nil
}
