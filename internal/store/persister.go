package store

import (
	"context"

	"github.com/holidayvote/bridge/internal/model"
)

// Persister writes the two durable artifacts behind the tally store: the
// full-tally snapshot (overwritten on every accepted vote) and the
// append-only audit log. The snapshot alone suffices for recovery; the audit
// log is the external record and the cross-check.
type Persister interface {
	// LoadSnapshot returns the last saved tally. ok is false when no
	// snapshot has been written yet.
	LoadSnapshot(ctx context.Context) (tally model.Tally, ok bool, err error)
	SaveSnapshot(ctx context.Context, tally model.Tally) error
	AppendAudit(ctx context.Context, rec model.AuditRecord) error
	// AuditCount reports how many audit records exist, for the recovery
	// cross-check against the snapshot total.
	AuditCount(ctx context.Context) (int, error)
	Close() error
}
