package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"shopkeep.ai/internal/transfer/model"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst under baseDir.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	// Push a complete block so a reader sees the line before rotation.
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 32*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// AuditEntry is the on-disk form of a transfer outcome.
type AuditEntry struct {
	At        string   `json:"at"`
	Kind      string   `json:"kind"`
	RequestID string   `json:"request_id"`
	Initiator AuditRef `json:"initiator"`
	Recipient AuditRef `json:"recipient"`
	By        AuditRef `json:"by"`
	Assets    []int64  `json:"assets"`
	Applied   int      `json:"applied"`
	Skipped   int      `json:"skipped"`
}

type AuditRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

func ref(a model.Actor) AuditRef {
	if a.ID == (model.Identity{}) {
		return AuditRef{Name: a.Name}
	}
	return AuditRef{ID: a.ID.String(), Name: a.Name}
}

func NewAuditEntry(o model.Outcome) AuditEntry {
	at := o.At
	if at.IsZero() {
		at = time.Now()
	}
	ids := []int64{}
	for _, a := range o.Request.Assets() {
		ids = append(ids, a.ID)
	}
	return AuditEntry{
		At:        at.UTC().Format(time.RFC3339Nano),
		Kind:      string(o.Kind),
		RequestID: o.Request.ID.String(),
		Initiator: ref(o.Request.Initiator),
		Recipient: ref(o.Request.Recipient),
		By:        ref(o.By),
		Assets:    ids,
		Applied:   o.Applied,
		Skipped:   o.Skipped,
	}
}

// AuditLogger writes transfer outcomes as compressed JSONL.
type AuditLogger struct {
	w      *JSONLZstdWriter
	failed atomic.Uint64
}

func NewAuditLogger(dataDir string) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "audit"), "transfers")}
}

func (l *AuditLogger) WriteOutcome(o model.Outcome) error { return l.w.Write(NewAuditEntry(o)) }

// RecordOutcome is WriteOutcome for callers that cannot act on an error; see Failed.
func (l *AuditLogger) RecordOutcome(o model.Outcome) {
	if err := l.WriteOutcome(o); err != nil {
		l.failed.Add(1)
	}
}

func (l *AuditLogger) Failed() uint64 { return l.failed.Load() }
func (l *AuditLogger) Close() error   { return l.w.Close() }
