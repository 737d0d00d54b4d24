package mutator

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"shopkeep.ai/internal/transfer/model"
)

type memStore struct {
	writes map[int64]int
	fail   map[int64]bool
}

func newMemStore() *memStore {
	return &memStore{writes: map[int64]int{}, fail: map[int64]bool{}}
}

func (s *memStore) Persist(_ context.Context, a *model.Asset) error {
	if s.fail[a.ID] {
		return errors.New("disk full")
	}
	s.writes[a.ID]++
	return nil
}

func TestTransferAll_AbsorbsVeto(t *testing.T) {
	from := uuid.New()
	to := model.Actor{ID: uuid.New(), Name: "bob"}
	assets := []*model.Asset{{ID: 1, Owner: from}, {ID: 2, Owner: from}, {ID: 3, Owner: from}}

	var seen []int64
	veto := VetoFunc(func(_ context.Context, ev PreTransferEvent) bool {
		seen = append(seen, ev.Asset.ID)
		if ev.PreviousOwner != from || ev.ProposedOwner.ID != to.ID {
			t.Fatalf("unexpected event payload: %+v", ev)
		}
		return ev.Asset.ID == 2
	})
	store := newMemStore()
	m := New(store, veto, nil)

	tally := m.TransferAll(context.Background(), assets, to)
	if tally.Applied != 2 || tally.Skipped != 1 {
		t.Fatalf("unexpected tally: %+v", tally)
	}
	if assets[0].Owner != to.ID || assets[2].Owner != to.ID {
		t.Fatalf("expected assets 1 and 3 moved")
	}
	if assets[1].Owner != from {
		t.Fatalf("vetoed asset must keep its owner")
	}
	if len(seen) != 3 || seen[0] != 1 || seen[1] != 2 || seen[2] != 3 {
		t.Fatalf("expected one veto check per asset in order, got %v", seen)
	}
	if store.writes[1] != 1 || store.writes[2] != 0 || store.writes[3] != 1 {
		t.Fatalf("unexpected persistence writes: %v", store.writes)
	}
}

func TestTransfer_PersistFailureRestoresOwner(t *testing.T) {
	from := uuid.New()
	store := newMemStore()
	store.fail[7] = true
	m := New(store, nil, nil)

	a := &model.Asset{ID: 7, Owner: from}
	if m.Transfer(context.Background(), a, model.Actor{ID: uuid.New()}) {
		t.Fatalf("expected failed persist to report not applied")
	}
	if a.Owner != from {
		t.Fatalf("owner must be restored after failed persist")
	}
}

func TestChain_FirstVetoWins(t *testing.T) {
	calls := 0
	yes := VetoFunc(func(context.Context, PreTransferEvent) bool { calls++; return true })
	no := VetoFunc(func(context.Context, PreTransferEvent) bool { calls++; return false })

	if !Chain(no, yes, no).PreTransfer(context.Background(), PreTransferEvent{}) {
		t.Fatalf("expected chain to veto")
	}
	if calls != 2 {
		t.Fatalf("expected chain to stop at first veto, calls=%d", calls)
	}
	if Chain(nil, no).PreTransfer(context.Background(), PreTransferEvent{}) {
		t.Fatalf("expected no veto")
	}
}
