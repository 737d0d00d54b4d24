package shopdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"shopkeep.ai/internal/transfer/model"
)

var ErrNotFound = errors.New("shopdb: not found")

// DB is the authoritative store for players and shop ownership. Ownership
// reads and writes are synchronous; the transfer audit table is fed by a
// background writer.
type DB struct {
	db *sql.DB

	ch   chan model.Outcome
	chMu sync.RWMutex // guards sends on ch against Close
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropAuditTotal atomic.Uint64
	auditWritten   atomic.Uint64
}

type Player struct {
	ID       model.Identity
	Name     string
	LastSeen time.Time
}

type AuditStats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	Written       uint64 `json:"written"`
	Dropped       uint64 `json:"dropped"`
}

func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &DB{
		db: db,
		ch: make(chan model.Outcome, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS players (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			name_lower TEXT NOT NULL,
			last_seen TEXT NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_players_name_lower ON players(name_lower);`,
		`CREATE TABLE IF NOT EXISTS shops (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id TEXT NOT NULL,
			world TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			item TEXT NOT NULL,
			unlimited INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_shops_owner ON shops(owner_id);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_shops_pos ON shops(world, x, y, z);`,
		`CREATE TABLE IF NOT EXISTS transfers (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			initiator_id TEXT NOT NULL,
			initiator_name TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			recipient_name TEXT NOT NULL,
			by_id TEXT,
			assets INTEGER NOT NULL,
			applied INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_request ON transfers(request_id);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains queued audit rows before closing the database.
func (s *DB) Close() error {
	var err error
	s.once.Do(func() {
		s.chMu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.chMu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *DB) UpsertPlayer(ctx context.Context, p Player) error {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return fmt.Errorf("empty player name")
	}
	seen := p.LastSeen
	if seen.IsZero() {
		seen = time.Now()
	}
	id, lower := p.ID.String(), strings.ToLower(name)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert player %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	// The newest identity owns the name. A stale holder keeps its row and shops
	// but is parked under a key no valid name can produce.
	if _, err := tx.ExecContext(ctx,
		`UPDATE players SET name_lower='~'||id WHERE name_lower=? AND id<>?`, lower, id); err != nil {
		return fmt.Errorf("release name %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO players(id,name,name_lower,last_seen) VALUES(?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, name_lower=excluded.name_lower, last_seen=excluded.last_seen`,
		id, name, lower, seen.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("upsert player %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upsert player %s: %w", name, err)
	}
	return nil
}

// LookupPlayer finds a player by display name, ignoring case.
func (s *DB) LookupPlayer(ctx context.Context, name string) (Player, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,name,last_seen FROM players WHERE name_lower=?`, strings.ToLower(strings.TrimSpace(name)))
	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Player{}, ErrNotFound
	}
	return p, err
}

func (s *DB) ListPlayers(ctx context.Context) ([]Player, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,name,last_seen FROM players ORDER BY name_lower`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlayer(r scanner) (Player, error) {
	var id, name, seen string
	if err := r.Scan(&id, &name, &seen); err != nil {
		return Player{}, err
	}
	uid, err := model.ParseIdentity(id)
	if err != nil {
		return Player{}, fmt.Errorf("player %q: bad id %q: %w", name, id, err)
	}
	ts, _ := time.Parse(time.RFC3339Nano, seen)
	return Player{ID: uid, Name: name, LastSeen: ts}, nil
}

// CreateShop inserts a new shop and sets a.ID.
func (s *DB) CreateShop(ctx context.Context, a *model.Asset) error {
	if a == nil {
		return fmt.Errorf("nil shop")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO shops(owner_id,world,x,y,z,item,unlimited,updated_at) VALUES(?,?,?,?,?,?,?,?)`,
		a.Owner.String(), a.World, a.X, a.Y, a.Z, a.Item, boolInt(a.Unlimited), now())
	if err != nil {
		return fmt.Errorf("create shop at %s %d,%d,%d: %w", a.World, a.X, a.Y, a.Z, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

// ListOwnedAssets returns fresh copies of every shop owned by owner, ordered by id.
func (s *DB) ListOwnedAssets(ctx context.Context, owner model.Identity) ([]*model.Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,owner_id,world,x,y,z,item,unlimited FROM shops WHERE owner_id=? ORDER BY id`, owner.String())
	if err != nil {
		return nil, fmt.Errorf("list shops for %s: %w", owner, err)
	}
	defer rows.Close()
	var out []*model.Asset
	for rows.Next() {
		var (
			a         model.Asset
			ownerID   string
			unlimited int
		)
		if err := rows.Scan(&a.ID, &ownerID, &a.World, &a.X, &a.Y, &a.Z, &a.Item, &unlimited); err != nil {
			return nil, err
		}
		if a.Owner, err = model.ParseIdentity(ownerID); err != nil {
			return nil, fmt.Errorf("shop %d: bad owner %q: %w", a.ID, ownerID, err)
		}
		a.Unlimited = unlimited != 0
		out = append(out, &a)
	}
	return out, rows.Err()
}

// Persist writes the asset's current owner.
func (s *DB) Persist(ctx context.Context, a *model.Asset) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE shops SET owner_id=?, updated_at=? WHERE id=?`, a.Owner.String(), now(), a.ID)
	if err != nil {
		return fmt.Errorf("persist shop %d: %w", a.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("persist shop %d: %w", a.ID, ErrNotFound)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }
