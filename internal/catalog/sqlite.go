package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"groupwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// hitRetention bounds the hits table; older rows are pruned opportunistically.
const hitRetention = 30 * 24 * time.Hour

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
}

// Open opens (creating if needed) the sqlite catalog at cfg.Path.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("catalog path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, pruneEvery: 500}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Keywords(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT word FROM keywords ORDER BY word`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SetKeywords(ctx context.Context, terms []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM keywords`); err != nil {
		return err
	}
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO keywords(word) VALUES(?) ON CONFLICT(word) DO NOTHING`, t); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Groups(ctx context.Context) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, title, COALESCE(username, ''), blocked FROM watched_groups ORDER BY chat_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Group
	for rows.Next() {
		var g Group
		var blocked int
		if err := rows.Scan(&g.ChatID, &g.Title, &g.Username, &blocked); err != nil {
			return nil, err
		}
		g.Blocked = blocked != 0
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *sqliteStore) BlockedGroups(ctx context.Context) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id FROM watched_groups WHERE blocked != 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpsertGroup(ctx context.Context, g Group) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watched_groups(chat_id, title, username, blocked, updated_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET
		   title=excluded.title, username=excluded.username,
		   blocked=excluded.blocked, updated_at=excluded.updated_at`,
		g.ChatID, g.Title, nullStr(g.Username), boolInt(g.Blocked), time.Now().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) SetAccountStatus(ctx context.Context, name string, status AccountStatus, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts(name, status, detail, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(name) DO UPDATE SET
		   status=excluded.status, detail=excluded.detail, updated_at=excluded.updated_at`,
		name, string(status), nullStr(detail), time.Now().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) AppendHit(ctx context.Context, h Hit) error {
	if h.At.IsZero() {
		h.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO hits(at, account, origin, event_id, keyword, origin_title)
		 VALUES(?,?,?,?,?,?)`,
		h.At.Format(time.RFC3339Nano), h.Account, h.Origin, h.EventID, h.Keyword, nullStr(h.OriginTitle),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_ = s.pruneHits(pctx)
		cancel()
	}
	return err
}

func (s *sqliteStore) pruneHits(ctx context.Context) error {
	cutoff := time.Now().Add(-hitRetention).Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `DELETE FROM hits WHERE at < ?`, cutoff)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
