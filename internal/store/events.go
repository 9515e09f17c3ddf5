package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/noah-isme/kasir-api/internal/domain"
)

// Events appends domain events to the outbox table.
type Events struct {
	DB *DB
}

// InsertEvent persists ev and returns it with id and timestamp assigned.
func (r Events) InsertEvent(ctx context.Context, ev domain.Event) (domain.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	err := r.DB.q(ctx).QueryRow(ctx, `INSERT INTO domain_events (id, business_id, topic, aggregate_id, payload)
		VALUES ($1, $2, $3, $4, $5) RETURNING occurred_at`,
		ev.ID, ev.BusinessID, ev.Topic, ev.AggregateID, ev.Payload).Scan(&ev.OccurredAt)
	return ev, err
}
