package policy

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"shopkeep.ai/internal/transfer/model"
	"shopkeep.ai/internal/transfer/mutator"
)

func ev(a *model.Asset) mutator.PreTransferEvent {
	return mutator.PreTransferEvent{Asset: a, PreviousOwner: a.Owner, ProposedOwner: model.Actor{ID: uuid.New()}}
}

func TestHooks(t *testing.T) {
	ctx := context.Background()
	plain := &model.Asset{ID: 1, World: "overworld", Item: "DIAMOND"}
	unlimited := &model.Asset{ID: 2, World: "overworld", Unlimited: true}
	frozen := &model.Asset{ID: 3, World: "Nether"}

	h := Hooks(true, []string{"nether"})
	if h.PreTransfer(ctx, ev(plain)) {
		t.Fatalf("plain shop should pass")
	}
	if !h.PreTransfer(ctx, ev(unlimited)) {
		t.Fatalf("unlimited shop should be vetoed")
	}
	if !h.PreTransfer(ctx, ev(frozen)) {
		t.Fatalf("shop in frozen world should be vetoed")
	}

	open := Hooks(false, nil)
	for _, a := range []*model.Asset{plain, unlimited, frozen} {
		if open.PreTransfer(ctx, ev(a)) {
			t.Fatalf("empty policy vetoed %s", a)
		}
	}
}
