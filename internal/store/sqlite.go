package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"moodlog-go/internal/moodlog"
	"moodlog-go/internal/store/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore is a DocumentStore backed by a local SQLite file: one
// documents table keyed by path, with the field map stored as JSON and
// createdAt extracted into a column so range queries stay indexable.
// Live-query fan-out is in-process, driven by this store's own committed
// writes.
type SQLiteStore struct {
	db   *sql.DB
	path string
	hub  *hub
}

var _ moodlog.DocumentStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the document database at path and runs
// pending migrations. path can be ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating document database: %w", err)
	}

	return &SQLiteStore{db: db, path: path, hub: newHub()}, nil
}

// OpenConnection opens and configures a SQLite connection with the PRAGMAs
// the store relies on.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Wait for locks instead of failing when a subscription refresh races
	// a write.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CheckMigrations verifies the schema is current without migrating.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

func (s *SQLiteStore) Get(ctx context.Context, path string) (*moodlog.Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT data FROM documents WHERE path = ?", path)

	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("reading document: %w", err)
	}

	data, err := decodeRow(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding document %s: %w", path, err)
	}
	return &moodlog.Document{Path: path, Data: data}, nil
}

func (s *SQLiteStore) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertRow(ctx, tx, path, data, merge); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing write: %w", err)
	}

	s.notifyChanged(path)
	return nil
}

// upsertRow writes one document row inside tx, honoring merge semantics.
func upsertRow(ctx context.Context, tx *sql.Tx, path string, data map[string]any, merge bool) error {
	if merge {
		row := tx.QueryRowContext(ctx, "SELECT data FROM documents WHERE path = ?", path)
		var raw string
		err := row.Scan(&raw)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// No existing document; merge degenerates to create.
		case err != nil:
			return fmt.Errorf("reading document for merge: %w", err)
		default:
			existing, err := decodeRow(raw)
			if err != nil {
				return fmt.Errorf("decoding document for merge: %w", err)
			}
			for k, v := range data {
				existing[k] = v
			}
			data = existing
		}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}

	var createdAt any
	if t, ok := createdAtOf(data); ok {
		createdAt = t.UnixNano()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (path, collection, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   data = excluded.data,
		   created_at = excluded.created_at,
		   updated_at = excluded.updated_at`,
		path, collectionOf(path), string(raw), createdAt, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("writing document: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE path = ?", path); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	s.notifyChanged(path)
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, collection string) ([]moodlog.Document, error) {
	return s.query(ctx,
		"SELECT path, data FROM documents WHERE collection = ? ORDER BY path",
		collection)
}

func (s *SQLiteStore) QueryCreatedRange(ctx context.Context, collection string, start, end time.Time) ([]moodlog.Document, error) {
	return s.query(ctx,
		`SELECT path, data FROM documents
		 WHERE collection = ? AND created_at >= ? AND created_at < ?
		 ORDER BY created_at`,
		collection, start.UnixNano(), end.UnixNano())
}

// rangeDocs returns the documents in collection with keys in
// [startKey, endKey], for subscription refreshes.
func (s *SQLiteStore) rangeDocs(ctx context.Context, collection, startKey, endKey string) ([]moodlog.Document, error) {
	if startKey == "" && endKey == "" {
		return s.List(ctx, collection)
	}
	return s.query(ctx,
		`SELECT path, data FROM documents
		 WHERE collection = ? AND path >= ? AND path <= ?
		 ORDER BY path`,
		collection, collection+"/"+startKey, collection+"/"+endKey)
}

func (s *SQLiteStore) query(ctx context.Context, stmt string, args ...any) ([]moodlog.Document, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []moodlog.Document
	for rows.Next() {
		var path, raw string
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		data, err := decodeRow(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding document %s: %w", path, err)
		}
		docs = append(docs, moodlog.Document{Path: path, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}
	return docs, nil
}

func decodeRow(raw string) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *SQLiteStore) SubscribeRange(ctx context.Context, collection, startKey, endKey string) (moodlog.Subscription, error) {
	docs, err := s.rangeDocs(ctx, collection, startKey, endKey)
	if err != nil {
		return nil, fmt.Errorf("reading initial snapshot: %w", err)
	}
	return s.hub.subscribe(collection, startKey, endKey, moodlog.QuerySnapshot{Docs: docs}), nil
}

func (s *SQLiteStore) Subscribe(ctx context.Context, collection string) (moodlog.Subscription, error) {
	return s.SubscribeRange(ctx, collection, "", "")
}

func (s *SQLiteStore) RunTransaction(ctx context.Context, fn func(tx moodlog.Txn) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	wrapped := &sqliteTxn{ctx: ctx, tx: tx}
	if err := fn(wrapped); err != nil {
		return err
	}
	if wrapped.err != nil {
		return wrapped.err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	for _, path := range wrapped.changed {
		s.notifyChanged(path)
	}
	return nil
}

func (s *SQLiteStore) notifyChanged(path string) {
	collection := collectionOf(path)
	for _, sub := range s.hub.matching(collection, keyOf(path)) {
		docs, err := s.rangeDocs(context.Background(), collection, sub.startKey, sub.endKey)
		if err != nil {
			sub.deliver(moodlog.QuerySnapshot{Err: err})
			continue
		}
		sub.deliver(moodlog.QuerySnapshot{Docs: docs})
	}
}

// sqliteTxn adapts *sql.Tx to the store's transaction view. Writes apply
// inside the SQL transaction, so they commit or roll back as one unit; the
// first write error is latched and fails the transaction.
type sqliteTxn struct {
	ctx     context.Context
	tx      *sql.Tx
	changed []string
	err     error
}

func (t *sqliteTxn) Get(path string) (*moodlog.Document, error) {
	row := t.tx.QueryRowContext(t.ctx, "SELECT data FROM documents WHERE path = ?", path)

	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading document: %w", err)
	}

	data, err := decodeRow(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding document %s: %w", path, err)
	}
	return &moodlog.Document{Path: path, Data: data}, nil
}

func (t *sqliteTxn) Set(path string, data map[string]any, merge bool) {
	if t.err != nil {
		return
	}
	if err := upsertRow(t.ctx, t.tx, path, data, merge); err != nil {
		t.err = err
		return
	}
	t.changed = append(t.changed, path)
}

func (t *sqliteTxn) Delete(path string) {
	if t.err != nil {
		return
	}
	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM documents WHERE path = ?", path); err != nil {
		t.err = fmt.Errorf("deleting document: %w", err)
		return
	}
	t.changed = append(t.changed, path)
}
