// Package pgstore keeps documents as jsonb rows in PostgreSQL. Writes are
// announced on a Redis Pub/Sub channel per collection; every subscription
// re-runs its query when its collection's channel fires, so any number of
// server processes see each other's writes.
package pgstore

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore"
)

const channelPrefix = "docstore:"

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		seq        BIGSERIAL,
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		data       JSONB NOT NULL,
		"updatedAt" TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, id)
	)`,
	`CREATE INDEX IF NOT EXISTS documents_collection_seq ON documents (collection, seq)`,
	`CREATE INDEX IF NOT EXISTS documents_data ON documents USING GIN (data jsonb_path_ops)`,
}

type Store struct {
	pool   *pgxpool.Pool
	rdb    *redis.Client
	broker *docstore.Broker
	log    *slog.Logger
}

// Connect opens a pgx pool for dsn and checks it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "pgstore.Connect.New")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "pgstore.Connect.Ping")
	}
	return pool, nil
}

// New builds a store over pool. With a nil rdb, change notifications stay
// inside this process.
func New(pool *pgxpool.Pool, rdb *redis.Client, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{pool: pool, rdb: rdb, broker: docstore.NewBroker(), log: log}
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, query := range migrations {
		if _, err := s.pool.Exec(ctx, query); err != nil {
			return errors.Wrap(err, "pgstore.Migrate.Exec")
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data::text FROM documents WHERE collection = $1 AND id = $2`, collection, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "pgstore.Get.Scan")
	}

	data, err := decode(raw)
	if err != nil {
		return nil, errors.Wrap(err, "pgstore.Get.decode")
	}
	return &docstore.Document{ID: id, Data: data}, nil
}

func (s *Store) Put(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	b, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "pgstore.Put.Marshal")
	}

	update := `data = EXCLUDED.data`
	if merge {
		update = `data = documents.data || EXCLUDED.data`
	}
	query := `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::text::jsonb)
		ON CONFLICT (collection, id) DO
		UPDATE SET ` + update + `, "updatedAt" = CURRENT_TIMESTAMP
	`
	if _, err := s.pool.Exec(ctx, query, collection, id, string(b)); err != nil {
		return errors.Wrap(err, "pgstore.Put.Exec")
	}

	s.announce(ctx, collection)
	return nil
}

func (s *Store) Create(ctx context.Context, collection, id string, data map[string]any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "pgstore.Create.Marshal")
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::text::jsonb)
		ON CONFLICT (collection, id) DO NOTHING
	`, collection, id, string(b))
	if err != nil {
		return errors.Wrap(err, "pgstore.Create.Exec")
	}
	if tag.RowsAffected() == 0 {
		return docstore.ErrExists
	}

	s.announce(ctx, collection)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return errors.Wrap(err, "pgstore.Delete.Exec")
	}
	if tag.RowsAffected() > 0 {
		s.announce(ctx, collection)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, where docstore.Filter) ([]docstore.Document, error) {
	c := &compiler{}
	c.arg(collection)
	cond, err := c.compile(where)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, data::text FROM documents WHERE collection = $1 AND ` + cond + ` ORDER BY seq`
	rows, err := s.pool.Query(ctx, query, c.args...)
	if err != nil {
		return nil, errors.Wrap(err, "pgstore.Query.Query")
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, errors.Wrap(err, "pgstore.Query.Scan")
		}
		data, err := decode(raw)
		if err != nil {
			return nil, errors.Wrap(err, "pgstore.Query.decode")
		}
		docs = append(docs, docstore.Document{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "pgstore.Query.rows")
	}
	return docs, nil
}

func (s *Store) Subscribe(ctx context.Context, collection string, where docstore.Filter, fn docstore.Listener) (docstore.Subscription, error) {
	query := func(ctx context.Context) ([]docstore.Document, error) {
		return s.Query(ctx, collection, where)
	}

	if s.rdb == nil {
		changes, stop := s.broker.Listen(collection)
		return docstore.Watch(ctx, query, changes, fn, stop), nil
	}

	ps := s.rdb.Subscribe(ctx, channelPrefix+collection)
	// Wait for the subscription to be confirmed so no write between here and
	// the first query goes unnoticed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, errors.Wrap(err, "pgstore.Subscribe.Receive")
	}

	changes := make(chan struct{}, 1)
	go func() {
		defer close(changes)
		for range ps.Channel() {
			select {
			case changes <- struct{}{}:
			default:
			}
		}
	}()

	stop := func() {
		if err := ps.Close(); err != nil {
			s.log.Warn("closing change feed", "collection", collection, "err", err)
		}
	}
	return docstore.Watch(ctx, query, changes, fn, stop), nil
}

func (s *Store) NewID(string) string {
	return uuid.NewString()
}

func (s *Store) announce(ctx context.Context, collection string) {
	if s.rdb == nil {
		s.broker.Notify(collection)
		return
	}
	if err := s.rdb.Publish(ctx, channelPrefix+collection, "changed").Err(); err != nil {
		s.log.Warn("publishing change", "collection", collection, "err", err)
	}
}

func decode(raw []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
