package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/interfaces"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/service/analyzer"
	"github.com/secmon-lab/synapse/pkg/utils/logging"
)

// EventBuilder turns an observation into a classified, embedded Event.
type EventBuilder struct {
	embedder interfaces.Embedder
	clock    func() time.Time

	mu   sync.Mutex
	last int64
}

func NewEventBuilder(embedder interfaces.Embedder, clock func() time.Time) *EventBuilder {
	return &EventBuilder{embedder: embedder, clock: clock}
}

// Build classifies obs and embeds its text. A non-empty role overrides
// obs.UserRole. The returned keywords are the raw terms of the text.
//
// An embedder failure does not fail the build: the event gets no embedding
// and EmbeddingMissing is set.
func (b *EventBuilder) Build(ctx context.Context, obs *model.Observation, role string) (*model.Event, []string, error) {
	if err := obs.CaseID.Validate(); err != nil {
		return nil, nil, err
	}
	if !obs.Source.IsValid() {
		return nil, nil, goerr.Wrap(model.ErrInvalidInput, "invalid observation source", goerr.V("source", obs.Source))
	}

	keywords := analyzer.ExtractKeywords(obs.Text)
	decision := analyzer.ClassifyDecision(obs.Text)

	id := model.NewEventID()
	if obs.ExternalID != "" {
		id = model.DeriveEventID(obs.Source, obs.CaseID, obs.ExternalID)
	}

	if role == "" {
		role = obs.UserRole
	}

	event := &model.Event{
		ID:           id,
		Timestamp:    b.timestamp(obs.OccurredAt),
		Source:       obs.Source,
		User:         obs.User,
		UserRole:     role,
		Text:         obs.Text,
		DecisionType: decision.Type,
		Reasoning:    decision.Reasoning,
	}

	emb, err := b.embedder.Embed(ctx, obs.Text)
	switch {
	case err != nil:
		if !errors.Is(err, model.ErrEmbeddingUnavailable) {
			err = goerr.Wrap(errors.Join(model.ErrEmbeddingUnavailable, err), "embedder failed")
		}
		logging.From(ctx).Warn("building event without embedding",
			"error", err.Error(),
			"event_id", event.ID,
			"chain_id", obs.CaseID,
		)
		event.EmbeddingMissing = true
	case !model.IsUsableEmbedding(emb):
		logging.From(ctx).Warn("building event without embedding",
			"error", model.ErrEmbeddingUnavailable.Error(),
			"dimension", len(emb),
			"event_id", event.ID,
		)
		event.EmbeddingMissing = true
	default:
		event.Embedding = emb
	}

	return event, keywords, nil
}

// timestamp returns occurredAt when the source system supplied it, otherwise
// the clock, never earlier than a clock timestamp issued before.
func (b *EventBuilder) timestamp(occurredAt time.Time) int64 {
	if !occurredAt.IsZero() {
		return occurredAt.Unix()
	}

	now := b.clock().Unix()

	b.mu.Lock()
	defer b.mu.Unlock()
	if now < b.last {
		now = b.last
	}
	b.last = now
	return now
}
