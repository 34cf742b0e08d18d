package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"promocast/internal/target"
	logx "promocast/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

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

func (s *sqliteStore) GetTargets(ctx context.Context) ([]target.Target, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, base_value, custom, active FROM targets ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []target.Target
	for rows.Next() {
		var (
			t      target.Target
			custom sql.NullString
			active int
		)
		if err := rows.Scan(&t.ID, &t.BaseFieldValue, &custom, &active); err != nil {
			return nil, err
		}
		t.Active = active != 0
		if custom.Valid && custom.String != "" {
			if err := json.Unmarshal([]byte(custom.String), &t.CustomFields); err != nil {
				s.log.Warn("target custom fields unreadable", logx.String("target", t.ID), logx.Err(err))
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetGroups(ctx context.Context) ([]target.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name, m.target_id
		FROM target_groups g
		LEFT JOIN group_members m ON m.group_id = g.id
		ORDER BY g.rowid, m.pos`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []target.Group
	idx := map[string]int{}
	for rows.Next() {
		var (
			id, name string
			member   sql.NullString
		)
		if err := rows.Scan(&id, &name, &member); err != nil {
			return nil, err
		}
		i, ok := idx[id]
		if !ok {
			i = len(out)
			idx[id] = i
			out = append(out, target.Group{ID: id, Name: name})
		}
		if member.Valid {
			out[i].TargetIDs = append(out[i].TargetIDs, member.String)
		}
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutTarget(ctx context.Context, t target.Target) error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("target id is required")
	}
	var custom any
	if len(t.CustomFields) > 0 {
		b, err := json.Marshal(t.CustomFields)
		if err != nil {
			return err
		}
		custom = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO targets(id, base_value, custom, active) VALUES(?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET base_value=excluded.base_value, custom=excluded.custom, active=excluded.active`,
		t.ID, t.BaseFieldValue, custom, boolInt(t.Active),
	)
	return err
}

func (s *sqliteStore) DeleteTarget(ctx context.Context, id string) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM group_members WHERE target_id = ?`, id)
		return err
	})
}

func (s *sqliteStore) PutGroup(ctx context.Context, g target.Group) error {
	if strings.TrimSpace(g.ID) == "" {
		return errors.New("group id is required")
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO target_groups(id, name) VALUES(?,?)
			 ON CONFLICT(id) DO UPDATE SET name=excluded.name`, g.ID, g.Name); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ?`, g.ID); err != nil {
			return err
		}
		for pos, tid := range g.TargetIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO group_members(group_id, target_id, pos) VALUES(?,?,?)`, g.ID, tid, pos); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqliteStore) DeleteGroup(ctx context.Context, id string) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM target_groups WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ?`, id)
		return err
	})
}

func (s *sqliteStore) GetContent(ctx context.Context, platform string) (json.RawMessage, bool, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM content WHERE platform = ?`, platform).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return json.RawMessage(blob), true, nil
}

func (s *sqliteStore) PutContent(ctx context.Context, platform string, blob json.RawMessage) error {
	if !json.Valid(blob) {
		return errors.New("content must be valid JSON")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO content(platform, blob) VALUES(?,?)
		 ON CONFLICT(platform) DO UPDATE SET blob=excluded.blob`, platform, string(blob))
	return err
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, run_id, source, platforms, ok, fail, err, took_ms, meta)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.RunID, nullStr(e.Trigger), e.Platforms, e.OK, e.Fail,
		nullStr(e.Error), e.TookMS, nullStr(e.MetaJSON),
	)
	return err
}

func (s *sqliteStore) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
