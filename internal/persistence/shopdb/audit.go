package shopdb

import (
	"context"
	"database/sql"
	"time"

	"shopkeep.ai/internal/transfer/model"
)

// TransferRow is one persisted outcome.
type TransferRow struct {
	Seq           int64  `json:"seq"`
	RequestID     string `json:"request_id"`
	Kind          string `json:"kind"`
	InitiatorID   string `json:"initiator_id"`
	InitiatorName string `json:"initiator_name"`
	RecipientID   string `json:"recipient_id"`
	RecipientName string `json:"recipient_name"`
	ByID          string `json:"by_id,omitempty"`
	Assets        int    `json:"assets"`
	Applied       int    `json:"applied"`
	Skipped       int    `json:"skipped"`
	At            string `json:"at"`
}

// RecordOutcome queues o for the transfers table. It never blocks; rows are
// dropped when the writer falls behind and the JSONL log stays authoritative.
func (s *DB) RecordOutcome(o model.Outcome) {
	if s == nil {
		return
	}
	s.chMu.RLock()
	defer s.chMu.RUnlock()
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- o:
	default:
		s.dropAuditTotal.Add(1)
	}
}

func (s *DB) AuditStats() AuditStats {
	if s == nil {
		return AuditStats{}
	}
	return AuditStats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		Written:       s.auditWritten.Load(),
		Dropped:       s.dropAuditTotal.Load(),
	}
}

func (s *DB) loop() {
	ctx := context.Background()
	insert, _ := s.db.Prepare(`INSERT INTO transfers(request_id,kind,initiator_id,initiator_name,recipient_id,recipient_name,by_id,assets,applied,skipped,at) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insert != nil {
			_ = insert.Close()
		}
	}()
	if insert == nil {
		for range s.ch {
			s.dropAuditTotal.Add(1)
		}
		return
	}

	for o := range s.ch {
		var by sql.NullString
		if o.By.ID != (model.Identity{}) {
			by = sql.NullString{String: o.By.ID.String(), Valid: true}
		}
		at := o.At
		if at.IsZero() {
			at = time.Now()
		}
		req := o.Request
		if _, err := insert.ExecContext(ctx,
			req.ID.String(),
			string(o.Kind),
			req.Initiator.ID.String(),
			req.Initiator.Name,
			req.Recipient.ID.String(),
			req.Recipient.Name,
			by,
			req.Len(),
			o.Applied,
			o.Skipped,
			at.UTC().Format(time.RFC3339Nano),
		); err != nil {
			s.dropAuditTotal.Add(1)
			continue
		}
		s.auditWritten.Add(1)
	}
}

// ListTransfers returns the newest rows first.
func (s *DB) ListTransfers(ctx context.Context, limit int) ([]TransferRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq,request_id,kind,initiator_id,initiator_name,recipient_id,recipient_name,COALESCE(by_id,''),assets,applied,skipped,at
		FROM transfers ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TransferRow
	for rows.Next() {
		var r TransferRow
		if err := rows.Scan(&r.Seq, &r.RequestID, &r.Kind, &r.InitiatorID, &r.InitiatorName, &r.RecipientID, &r.RecipientName, &r.ByID, &r.Assets, &r.Applied, &r.Skipped, &r.At); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
