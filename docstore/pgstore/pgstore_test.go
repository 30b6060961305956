package pgstore

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/ihazratummar/Neat-Roots-Chat-app/common/logger"
	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore"
	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore/storetest"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("chat"),
		postgres.WithUsername("chat"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Printf("postgres container unavailable, database tests will skip: %s", err)
		os.Exit(m.Run())
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("failed to get connection string: %v", err)
	}
	testPool, err = Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	if err := New(testPool, nil, nil).Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	code := m.Run()

	testPool.Close()
	if err := pgContainer.Terminate(ctx); err != nil {
		log.Printf("failed to terminate container: %s", err)
	}
	os.Exit(code)
}

func newTestStore(t *testing.T, withRedis bool) *Store {
	t.Helper()
	if testPool == nil {
		t.Skip("postgres container unavailable")
	}
	_, err := testPool.Exec(context.Background(), `TRUNCATE TABLE documents RESTART IDENTITY`)
	require.NoError(t, err)

	var rdb *redis.Client
	if withRedis {
		mr := miniredis.RunT(t)
		rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { rdb.Close() })
	}
	return New(testPool, rdb, logger.Discard())
}

func TestStoreWithRedisFeed(t *testing.T) {
	storetest.Run(t, func(t *testing.T) docstore.Store { return newTestStore(t, true) })
}

func TestStoreWithLocalFeed(t *testing.T) {
	storetest.Run(t, func(t *testing.T) docstore.Store { return newTestStore(t, false) })
}

func TestCompileFilter(t *testing.T) {
	c := &compiler{}
	c.arg("chats")
	sql, err := c.compile(docstore.Or(
		docstore.And(docstore.Eq("participantA.userId", "a"), docstore.Eq("participantB.userId", "b")),
		docstore.In("chatId", "a_b"),
	))
	require.NoError(t, err)

	assert.Equal(t,
		"((data #> $2::text[] = $3::text::jsonb AND data #> $4::text[] = $5::text::jsonb) OR "+
			"data #> $6::text[] IN (SELECT jsonb_array_elements($7::text::jsonb)))", sql)
	assert.Equal(t, []any{
		"chats",
		[]string{"participantA", "userId"}, `"a"`,
		[]string{"participantB", "userId"}, `"b"`,
		[]string{"chatId"}, `["a_b"]`,
	}, c.args)
}

func TestCompileRange(t *testing.T) {
	c := &compiler{}
	sql, err := c.compile(docstore.Gt("postedAtMillis", int64(10)))
	require.NoError(t, err)
	assert.Contains(t, sql, "::numeric > $2::numeric")
	assert.Equal(t, float64(10), c.args[1])

	_, err = (&compiler{}).compile(docstore.Lt("x", true))
	assert.Error(t, err)

	sql, err = (&compiler{}).compile(docstore.In("x"))
	require.NoError(t, err)
	assert.Equal(t, "FALSE", sql)

	sql, err = (&compiler{}).compile(docstore.All())
	require.NoError(t, err)
	assert.Equal(t, "TRUE", sql)
}
