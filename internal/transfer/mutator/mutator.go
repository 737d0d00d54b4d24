package mutator

import (
	"context"
	"io"
	"log"

	"shopkeep.ai/internal/transfer/model"
)

// PreTransferEvent is raised once per asset before its owner changes.
type PreTransferEvent struct {
	Asset         *model.Asset
	PreviousOwner model.Identity
	ProposedOwner model.Actor
}

// VetoHook returns true to cancel the mutation of ev.Asset.
type VetoHook interface {
	PreTransfer(ctx context.Context, ev PreTransferEvent) (vetoed bool)
}

type VetoFunc func(ctx context.Context, ev PreTransferEvent) bool

func (f VetoFunc) PreTransfer(ctx context.Context, ev PreTransferEvent) bool { return f(ctx, ev) }

// Chain consults hooks in order; the first veto wins.
func Chain(hooks ...VetoHook) VetoHook {
	return VetoFunc(func(ctx context.Context, ev PreTransferEvent) bool {
		for _, h := range hooks {
			if h != nil && h.PreTransfer(ctx, ev) {
				return true
			}
		}
		return false
	})
}

type Store interface {
	Persist(ctx context.Context, asset *model.Asset) error
}

type Mutator struct {
	store Store
	veto  VetoHook
	log   *log.Logger
}

func New(store Store, veto VetoHook, logger *log.Logger) *Mutator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Mutator{store: store, veto: veto, log: logger}
}

// Transfer reports whether asset now belongs to newOwner. A veto or a failed
// write is not an error for the batch; the asset is simply skipped.
func (m *Mutator) Transfer(ctx context.Context, asset *model.Asset, newOwner model.Actor) bool {
	if asset == nil {
		return false
	}
	prev := asset.Owner
	if m.veto != nil && m.veto.PreTransfer(ctx, PreTransferEvent{Asset: asset, PreviousOwner: prev, ProposedOwner: newOwner}) {
		m.log.Printf("transfer vetoed: %s owner=%s proposed=%s", asset, prev, newOwner.ID)
		return false
	}
	asset.Owner = newOwner.ID
	if m.store != nil {
		if err := m.store.Persist(ctx, asset); err != nil {
			asset.Owner = prev
			m.log.Printf("persist %s: %v", asset, err)
			return false
		}
	}
	return true
}

type Tally struct {
	Applied int
	Skipped int
}

// TransferAll walks assets in order and never stops early.
func (m *Mutator) TransferAll(ctx context.Context, assets []*model.Asset, newOwner model.Actor) Tally {
	var t Tally
	for _, a := range assets {
		if m.Transfer(ctx, a, newOwner) {
			t.Applied++
		} else {
			t.Skipped++
		}
	}
	return t
}
