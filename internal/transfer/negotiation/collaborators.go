package negotiation

import (
	"context"

	"shopkeep.ai/internal/transfer/model"
)

// Directory resolves player names. Resolve may block on I/O; it is the point
// where a negotiation waits before anything is sent.
type Directory interface {
	Resolve(ctx context.Context, name string) (model.Actor, error)
	IsReachable(id model.Identity) bool
}

type OwnershipStore interface {
	ListOwnedAssets(ctx context.Context, owner model.Identity) ([]*model.Asset, error)
}

// Notifier delivers a templated message. Delivery is best effort.
type Notifier interface {
	Send(ctx context.Context, to model.Actor, key string, args ...any) error
}

type Permissions interface {
	HasPermission(ctx context.Context, actor model.Actor, capability string) bool
}

type AuditSink interface {
	RecordOutcome(o model.Outcome)
}
