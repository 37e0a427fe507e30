package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-recommender/internal/common/config"
)

type stubPinger struct {
	name string
	err  error
}

func (s stubPinger) Name() string { return s.name }
func (s stubPinger) Ping(ctx context.Context) error { return s.err }

func TestCheckAll_CollectsFailures(t *testing.T) {
	failures := CheckAll(context.Background(),
		stubPinger{name: "ok"},
		stubPinger{name: "broken", err: errors.New("refused")},
		nil,
	)

	require.Len(t, failures, 1)
	assert.EqualError(t, failures["broken"], "refused")
}

func TestRedisClient_Ping(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := NewRedis(config.RedisConfig{Address: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	assert.NoError(t, client.Ping(context.Background()))

	mr.Close()
	assert.Error(t, client.Ping(context.Background()))
}

func TestPostgresClient_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("database is starting up"))

	client := &PostgresClient{DB: db, Table: "products"}
	assert.NoError(t, client.Ping(context.Background()))
	assert.ErrorContains(t, client.Ping(context.Background()), "postgres ping failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}
