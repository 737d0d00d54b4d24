package log

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"shopkeep.ai/internal/transfer/model"
)

func TestAuditLogger_RoundTripAndRotation(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	alice := model.Actor{ID: uuid.New(), Name: "alice"}
	bob := model.Actor{ID: uuid.New(), Name: "bob"}
	req, err := model.NewRequest(alice, bob, []*model.Asset{{ID: 7}, {ID: 9}}, clock)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	if err := l.WriteOutcome(model.Outcome{Kind: model.OutcomeCancelled, Request: req, By: bob, At: clock}); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Readable before Close.
	live, err := ReadAuditDir(filepath.Join(dir, "audit"))
	if err != nil || len(live) != 1 {
		t.Fatalf("live read: %d %v", len(live), err)
	}

	clock = clock.Add(2 * time.Minute)
	l.RecordOutcome(model.Outcome{Kind: model.OutcomeCommitted, Request: req, By: bob, At: clock, Applied: 2})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if l.Failed() != 0 {
		t.Fatalf("unexpected failures: %d", l.Failed())
	}

	files, _ := filepath.Glob(filepath.Join(dir, "audit", "transfers-*.jsonl.zst"))
	if len(files) != 2 {
		t.Fatalf("expected hourly rotation into 2 files, got %v", files)
	}
	entries, err := ReadAuditDir(filepath.Join(dir, "audit"))
	if err != nil {
		t.Fatalf("ReadAuditDir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries=%d want=2", len(entries))
	}
	if entries[0].Kind != "CANCELLED" || entries[1].Kind != "COMMITTED" || entries[1].Applied != 2 {
		t.Fatalf("unexpected order or content: %+v", entries)
	}
	if entries[1].Initiator.Name != "alice" || entries[1].By.ID != bob.ID.String() || len(entries[1].Assets) != 2 {
		t.Fatalf("entry fields lost: %+v", entries[1])
	}
}

func TestNewAuditEntry_ExpiryHasNoActor(t *testing.T) {
	req, _ := model.NewRequest(model.Actor{ID: uuid.New()}, model.Actor{ID: uuid.New()}, nil, time.Now())
	e := NewAuditEntry(model.Outcome{Kind: model.OutcomeExpired, Request: req})
	if e.By.ID != "" || e.At == "" || e.Assets == nil {
		t.Fatalf("unexpected entry: %+v", e)
	}
}
