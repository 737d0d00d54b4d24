package directory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"shopkeep.ai/internal/persistence/shopdb"
	"shopkeep.ai/internal/transfer/model"
	"shopkeep.ai/internal/transfer/negotiation"
)

type online map[model.Identity]bool

func (o online) IsReachable(id model.Identity) bool { return o[id] }

func TestDirectory_ResolveAndReachable(t *testing.T) {
	db, err := shopdb.Open(filepath.Join(t.TempDir(), "shops.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	id := uuid.New()
	if err := db.UpsertPlayer(ctx, shopdb.Player{ID: id, Name: "Bob"}); err != nil {
		t.Fatalf("UpsertPlayer: %v", err)
	}

	d := New(db, online{id: true})
	got, err := d.Resolve(ctx, "bob")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != id || got.Name != "Bob" {
		t.Fatalf("unexpected actor: %+v", got)
	}
	if !d.IsReachable(id) || d.IsReachable(uuid.New()) {
		t.Fatalf("reachability mismatch")
	}

	for _, name := range []string{"nobody", "  "} {
		if _, err := d.Resolve(ctx, name); !errors.Is(err, negotiation.ErrNotFound) {
			t.Fatalf("Resolve(%q): expected ErrNotFound, got %v", name, err)
		}
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := d.Resolve(cancelled, "bob"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDirectory_NilPresenceIsUnreachable(t *testing.T) {
	d := New(nil, nil)
	if d.IsReachable(uuid.New()) {
		t.Fatalf("nil presence should report unreachable")
	}
}
