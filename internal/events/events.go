// Package events publishes DiffCreated notifications to Kafka. It adds
// the producer half of the teacher's sarama usage, which elsewhere in
// the example pack appears only on the consumer side
// (internal/invalidation/kafkaconsumer, pkg/invalidation/kafka).
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kvarga/spatialwatch/internal/metrics"
	"github.com/kvarga/spatialwatch/internal/model"
)

// DiffCreated is the wire payload published for every diff the Change
// Detector writes, one message per diff.
type DiffCreated struct {
	Version   int       `json:"version"`
	DiffID    string    `json:"diff_id"`
	DatasetID string    `json:"dataset_id"`
	Type      string    `json:"type"`
	Confidence float64  `json:"confidence_score"`
	CreatedAt time.Time `json:"created_at"`
}

// Publisher publishes DiffCreated events over a sarama SyncProducer,
// guarding against re-publishing the same diff id within the process
// lifetime. The guard is adapted from pkg/invalidation/kafka's
// versionDedupe: there it tracks "has this layer version already been
// applied", here it tracks "has this diff id already been published".
type Publisher struct {
	topic string
	prod  sarama.SyncProducer
	seen  *lru.Cache[string, struct{}]
}

// NewPublisher dials brokers and returns a Publisher. dedupeSize bounds
// the in-memory set of recently-published diff ids; 0 selects a
// reasonable default.
func NewPublisher(brokers []string, topic string, dedupeSize int) (*Publisher, error) {
	if dedupeSize <= 0 {
		dedupeSize = 4096
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("events: create producer: %w", err)
	}

	seen, err := lru.New[string, struct{}](dedupeSize)
	if err != nil {
		return nil, fmt.Errorf("events: create dedupe cache: %w", err)
	}

	return &Publisher{topic: topic, prod: prod, seen: seen}, nil
}

// PublishDiffCreated emits one DiffCreated message for d. Publishing is
// an additive notification side-channel, not part of the Change
// Detector's transaction discipline (spec.md): a send failure is
// counted in the diff-event metric with outcome "error", and the
// Change Detector discards the returned error rather than failing the
// run.
func (p *Publisher) PublishDiffCreated(d model.Diff) error {
	if p == nil || p.prod == nil {
		return nil
	}
	if _, dup := p.seen.Get(d.ID); dup {
		return nil
	}

	ev := DiffCreated{
		Version:    1,
		DiffID:     d.ID,
		DatasetID:  d.DatasetID,
		Type:       string(d.Type),
		Confidence: d.ConfidenceScore,
		CreatedAt:  d.CreatedAt,
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(d.DatasetID),
		Value: sarama.ByteEncoder(b),
	}
	if _, _, err := p.prod.SendMessage(msg); err != nil {
		metrics.IncDiffEventPublished("error")
		return fmt.Errorf("events: send message: %w", err)
	}

	p.seen.Add(d.ID, struct{}{})
	metrics.IncDiffEventPublished("ok")
	return nil
}

// Close releases the underlying producer connection.
func (p *Publisher) Close() error {
	if p == nil || p.prod == nil {
		return nil
	}
	return p.prod.Close()
}
