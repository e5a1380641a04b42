package event

import (
	"context"
	"log/slog"
	"time"

	"github.com/holidayvote/bridge/internal/model"
)

type queued struct {
	event model.VoteEvent
	count int
}

// Mirror decouples vote ingestion from publishing: accepted votes are
// offered to a buffered queue drained by one goroutine, so a slow or down
// broker can never stall the read loop. The local store is the source of
// truth; a dropped mirror event loses nothing.
type Mirror struct {
	publisher VotePublisher
	queue     chan queued
	logger    *slog.Logger
}

func NewMirror(p VotePublisher, buffer int, logger *slog.Logger) *Mirror {
	return &Mirror{
		publisher: p,
		queue:     make(chan queued, buffer),
		logger:    logger,
	}
}

// Offer enqueues an accepted vote for publishing. It never blocks; when the
// queue is full the event is dropped and Offer returns false.
func (m *Mirror) Offer(event model.VoteEvent, count int) bool {
	select {
	case m.queue <- queued{event: event, count: count}:
		return true
	default:
		return false
	}
}

// Run drains the queue until the context is cancelled.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-m.queue:
			pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := m.publisher.Publish(pubCtx, q.event, q.count); err != nil {
				m.logger.Warn("vote mirror publish failed",
					"candidate", q.event.Candidate, "error", err)
			}
			cancel()
		}
	}
}
