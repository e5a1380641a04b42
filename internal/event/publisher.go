package event

import (
	"context"

	"github.com/holidayvote/bridge/internal/model"
)

// VotePublisher forwards accepted votes to an external stream for
// downstream analytics.
type VotePublisher interface {
	Publish(ctx context.Context, event model.VoteEvent, count int) error
	Close() error
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, model.VoteEvent, int) error { return nil }

func (NopPublisher) Close() error { return nil }
