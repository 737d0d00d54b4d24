package shopdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"shopkeep.ai/internal/transfer/model"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "shops.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPlayers_LookupIgnoresCase(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	id := uuid.New()
	if err := db.UpsertPlayer(ctx, Player{ID: id, Name: "Alice"}); err != nil {
		t.Fatalf("UpsertPlayer: %v", err)
	}
	p, err := db.LookupPlayer(ctx, "aLiCe")
	if err != nil {
		t.Fatalf("LookupPlayer: %v", err)
	}
	if p.ID != id || p.Name != "Alice" {
		t.Fatalf("unexpected player: %+v", p)
	}
	if _, err := db.LookupPlayer(ctx, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Rename keeps the identity.
	if err := db.UpsertPlayer(ctx, Player{ID: id, Name: "Alicia"}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := db.LookupPlayer(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old name should no longer resolve: %v", err)
	}
	all, err := db.ListPlayers(ctx)
	if err != nil || len(all) != 1 || all[0].Name != "Alicia" {
		t.Fatalf("ListPlayers: %+v %v", all, err)
	}
}

func TestShops_ListAndPersist(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		a := &model.Asset{Owner: alice, World: "overworld", X: i, Y: 64, Z: 0, Item: "STONE", Unlimited: i == 2}
		if err := db.CreateShop(ctx, a); err != nil {
			t.Fatalf("CreateShop: %v", err)
		}
		if a.ID == 0 {
			t.Fatalf("CreateShop did not assign id")
		}
	}
	owned, err := db.ListOwnedAssets(ctx, alice)
	if err != nil || len(owned) != 3 {
		t.Fatalf("ListOwnedAssets: %d %v", len(owned), err)
	}
	if !owned[2].Unlimited || owned[0].Unlimited {
		t.Fatalf("unlimited flag not round-tripped: %+v", owned)
	}

	owned[0].Owner = bob
	if err := db.Persist(ctx, owned[0]); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	left, _ := db.ListOwnedAssets(ctx, alice)
	got, _ := db.ListOwnedAssets(ctx, bob)
	if len(left) != 2 || len(got) != 1 || got[0].ID != owned[0].ID {
		t.Fatalf("ownership not moved: alice=%d bob=%d", len(left), len(got))
	}

	// Fresh copies: mutating a returned asset does not touch the store.
	left[0].Owner = bob
	again, _ := db.ListOwnedAssets(ctx, alice)
	if len(again) != 2 {
		t.Fatalf("store changed without Persist")
	}

	if err := db.Persist(ctx, &model.Asset{ID: 999, Owner: bob}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing shop, got %v", err)
	}
}

func TestShops_RejectDuplicatePosition(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	a := &model.Asset{Owner: uuid.New(), World: "w", X: 1, Y: 2, Z: 3, Item: "DIRT"}
	if err := db.CreateShop(ctx, a); err != nil {
		t.Fatalf("CreateShop: %v", err)
	}
	b := *a
	if err := db.CreateShop(ctx, &b); err == nil {
		t.Fatalf("expected unique position violation")
	}
}

func TestRecordOutcome_WritesTransferRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shops.sqlite")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	alice := model.Actor{ID: uuid.New(), Name: "alice"}
	bob := model.Actor{ID: uuid.New(), Name: "bob"}
	req, err := model.NewRequest(alice, bob, []*model.Asset{{ID: 1}, {ID: 2}}, time.Now())
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	db.RecordOutcome(model.Outcome{Kind: model.OutcomeCommitted, Request: req, By: bob, At: time.Now(), Applied: 1, Skipped: 1})
	db.RecordOutcome(model.Outcome{Kind: model.OutcomeExpired, Request: req})
	// Close drains the queue.
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	db.RecordOutcome(model.Outcome{Kind: model.OutcomeExpired, Request: req})

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	rows, err := db.ListTransfers(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListTransfers: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows=%d want=2", len(rows))
	}
	if rows[0].Kind != "EXPIRED" || rows[0].ByID != "" {
		t.Fatalf("newest row mismatch: %+v", rows[0])
	}
	if rows[1].Kind != "COMMITTED" || rows[1].Assets != 2 || rows[1].Applied != 1 || rows[1].ByID != bob.ID.String() {
		t.Fatalf("commit row mismatch: %+v", rows[1])
	}
}

func TestAuditStats_CountsDrops(t *testing.T) {
	s := &DB{ch: make(chan model.Outcome, 1)}
	s.RecordOutcome(model.Outcome{Kind: model.OutcomeExpired})
	s.RecordOutcome(model.Outcome{Kind: model.OutcomeExpired})
	st := s.AuditStats()
	if st.Dropped != 1 || st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestPlayers_NewIdentityTakesOverName(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	offline, online := uuid.New(), uuid.New()
	if err := db.UpsertPlayer(ctx, Player{ID: offline, Name: "Steve"}); err != nil {
		t.Fatalf("UpsertPlayer offline: %v", err)
	}
	if err := db.CreateShop(ctx, &model.Asset{Owner: offline, World: "world", X: 1, Y: 2, Z: 3, Item: "DIAMOND"}); err != nil {
		t.Fatalf("CreateShop: %v", err)
	}
	if err := db.UpsertPlayer(ctx, Player{ID: online, Name: "steve"}); err != nil {
		t.Fatalf("UpsertPlayer with reused name: %v", err)
	}
	p, err := db.LookupPlayer(ctx, "STEVE")
	if err != nil {
		t.Fatalf("LookupPlayer: %v", err)
	}
	if p.ID != online {
		t.Fatalf("expected newest identity to own the name, got %s", p.ID)
	}
	shops, err := db.ListOwnedAssets(ctx, offline)
	if err != nil || len(shops) != 1 {
		t.Fatalf("stale identity should keep its shops: %d %v", len(shops), err)
	}

	// The old identity can come back and reclaim the name.
	if err := db.UpsertPlayer(ctx, Player{ID: offline, Name: "Steve"}); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if p, _ := db.LookupPlayer(ctx, "steve"); p.ID != offline {
		t.Fatalf("expected reclaimed name, got %s", p.ID)
	}
	all, err := db.ListPlayers(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("ListPlayers: %+v %v", all, err)
	}
}

func TestRecordOutcome_ConcurrentWithClose(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "shops.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5000; i++ {
			db.RecordOutcome(model.Outcome{Kind: model.OutcomeExpired, At: time.Now()})
		}
	}()
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	<-done
	db.RecordOutcome(model.Outcome{Kind: model.OutcomeExpired})
}
