package events

import (
	"testing"
	"time"

	"github.com/IBM/sarama/mocks"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kvarga/spatialwatch/internal/model"
)

func newTestPublisher(t *testing.T, expect int) *Publisher {
	t.Helper()
	mp := mocks.NewSyncProducer(t, nil)
	for i := 0; i < expect; i++ {
		mp.ExpectSendMessageAndSucceed()
	}
	seen, err := lru.New[string, struct{}](64)
	if err != nil {
		t.Fatalf("new lru: %v", err)
	}
	return &Publisher{topic: "spatialwatch.diffs", prod: mp, seen: seen}
}

func TestPublishDiffCreatedSendsOnce(t *testing.T) {
	p := newTestPublisher(t, 1)
	defer p.Close()

	d := model.Diff{
		ID:              "diff-1",
		DatasetID:       "ds-1",
		Type:            model.DiffNew,
		ConfidenceScore: 0.9,
		CreatedAt:       time.Now(),
	}

	if err := p.PublishDiffCreated(d); err != nil {
		t.Fatalf("publish: %v", err)
	}
	// second publish of the same diff id must be a no-op, not a second send
	if err := p.PublishDiffCreated(d); err != nil {
		t.Fatalf("republish: %v", err)
	}
}

func TestPublishDiffCreatedNilPublisher(t *testing.T) {
	var p *Publisher
	if err := p.PublishDiffCreated(model.Diff{ID: "x"}); err != nil {
		t.Fatalf("nil publisher should no-op: %v", err)
	}
}
