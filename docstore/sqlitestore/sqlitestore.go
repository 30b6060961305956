// Package sqlitestore keeps documents in an embedded SQLite file. Filters
// are evaluated in Go after loading the collection, and live subscriptions
// are fed by an in-process broker, so the store is meant for a single
// process.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore"
)

const schema = `
	CREATE TABLE IF NOT EXISTS documents (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		data       TEXT NOT NULL,
		UNIQUE (collection, id)
	);
`

type Store struct {
	db     *sql.DB
	broker *docstore.Broker
}

// Open opens (or creates) the database at path. Use ":memory:" for a
// throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, "sqlitestore.Open.sql.Open")
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqlitestore.Open.schema")
	}
	return &Store{db: db, broker: docstore.NewBroker()}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlitestore.Get.Scan")
	}

	data, err := decode(raw)
	if err != nil {
		return nil, errors.Wrap(err, "sqlitestore.Get.decode")
	}
	return &docstore.Document{ID: id, Data: data}, nil
}

func (s *Store) Put(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlitestore.Put.BeginTx")
	}
	defer tx.Rollback()

	next := data
	if merge {
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&raw)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return errors.Wrap(err, "sqlitestore.Put.Scan")
		default:
			current, err := decode(raw)
			if err != nil {
				return errors.Wrap(err, "sqlitestore.Put.decode")
			}
			for k, v := range data {
				current[k] = v
			}
			next = current
		}
	}

	b, err := json.Marshal(next)
	if err != nil {
		return errors.Wrap(err, "sqlitestore.Put.Marshal")
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data`,
		collection, id, string(b)); err != nil {
		return errors.Wrap(err, "sqlitestore.Put.Exec")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "sqlitestore.Put.Commit")
	}

	s.broker.Notify(collection)
	return nil
}

func (s *Store) Create(ctx context.Context, collection, id string, data map[string]any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "sqlitestore.Create.Marshal")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO documents (collection, id, data) VALUES (?, ?, ?)`,
		collection, id, string(b))
	if err != nil {
		return errors.Wrap(err, "sqlitestore.Create.Exec")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return docstore.ErrExists
	}

	s.broker.Notify(collection)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return errors.Wrap(err, "sqlitestore.Delete.Exec")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.broker.Notify(collection)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, where docstore.Filter) ([]docstore.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM documents WHERE collection = ? ORDER BY seq`, collection)
	if err != nil {
		return nil, errors.Wrap(err, "sqlitestore.Query.Query")
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, errors.Wrap(err, "sqlitestore.Query.Scan")
		}
		data, err := decode(raw)
		if err != nil {
			return nil, errors.Wrap(err, "sqlitestore.Query.decode")
		}
		if where.Match(data) {
			docs = append(docs, docstore.Document{ID: id, Data: data})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlitestore.Query.rows")
	}
	return docs, nil
}

func (s *Store) Subscribe(ctx context.Context, collection string, where docstore.Filter, fn docstore.Listener) (docstore.Subscription, error) {
	changes, stop := s.broker.Listen(collection)
	query := func(ctx context.Context) ([]docstore.Document, error) {
		return s.Query(ctx, collection, where)
	}
	return docstore.Watch(ctx, query, changes, fn, stop), nil
}

func (s *Store) NewID(string) string {
	return uuid.NewString()
}

func decode(raw string) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}
