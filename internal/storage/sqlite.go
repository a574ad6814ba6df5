package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"evovis/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// SaveRun upserts the summary and snapshot of a run in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, summary model.RunSummary, snapshot model.RunSnapshot) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	summaryPayload, err := EncodeRunSummary(summary)
	if err != nil {
		return err
	}
	snapshotPayload, err := EncodeRunSnapshot(snapshot)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, loaded_at_utc, saved_seq, schema_version, codec_version, payload)
		VALUES (?, ?, (SELECT COALESCE(MAX(saved_seq), 0) + 1 FROM runs), ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			loaded_at_utc = excluded.loaded_at_utc,
			saved_seq = excluded.saved_seq,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, summary.RunID, summary.LoadedAtUTC, summary.SchemaVersion, summary.CodecVersion, summaryPayload)
	if err != nil {
		return fmt.Errorf("save run summary %s: %w", summary.RunID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO run_snapshots (run_id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, snapshot.RunID, snapshot.SchemaVersion, snapshot.CodecVersion, snapshotPayload)
	if err != nil {
		return fmt.Errorf("save run snapshot %s: %w", snapshot.RunID, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetRunSummary(ctx context.Context, runID string) (model.RunSummary, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.RunSummary{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunSummary{}, false, nil
		}
		return model.RunSummary{}, false, err
	}

	summary, err := DecodeRunSummary(payload)
	if err != nil {
		return model.RunSummary{}, false, fmt.Errorf("decode run summary %s: %w", runID, err)
	}
	return summary, true, nil
}

func (s *SQLiteStore) GetRunSnapshot(ctx context.Context, runID string) (model.RunSnapshot, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.RunSnapshot{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM run_snapshots WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunSnapshot{}, false, nil
		}
		return model.RunSnapshot{}, false, err
	}

	snapshot, err := DecodeRunSnapshot(payload)
	if err != nil {
		return model.RunSnapshot{}, false, fmt.Errorf("decode run snapshot %s: %w", runID, err)
	}
	return snapshot, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.RunSummary, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	query := `SELECT run_id, payload FROM runs ORDER BY loaded_at_utc DESC, saved_seq DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RunSummary
	for rows.Next() {
		var runID string
		var payload []byte
		if err := rows.Scan(&runID, &payload); err != nil {
			return nil, err
		}
		summary, err := DecodeRunSummary(payload)
		if err != nil {
			return nil, fmt.Errorf("decode run summary %s: %w", runID, err)
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.RunSummary{}
	}
	return out, nil
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_snapshots WHERE run_id = ?`, runID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			loaded_at_utc TEXT NOT NULL,
			saved_seq INTEGER NOT NULL DEFAULT 0,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS run_snapshots (
			run_id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
