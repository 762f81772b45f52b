package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_Errors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("READONLY You can't write against a read only replica")

	t.Run("get miss", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectGet("distinct:k").RedisNil()

		_, err := NewRedisStoreFromClient(client).Get(ctx, "distinct:k")
		assert.ErrorIs(t, err, ErrCacheMiss)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get failure is not a miss", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectGet("distinct:k").SetErr(boom)

		_, err := NewRedisStoreFromClient(client).Get(ctx, "distinct:k")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCacheMiss)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("set failure", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectSet("distinct:k", []byte("v"), time.Minute).SetErr(boom)

		err := NewRedisStoreFromClient(client).Set(ctx, "distinct:k", []byte("v"), time.Minute)
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete by prefix stops on delete failure", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectScan(0, "distinct:db/*", 100).SetVal([]string{"distinct:db/a", "distinct:db/b"}, 0)
		mock.ExpectDel("distinct:db/a").SetVal(1)
		mock.ExpectDel("distinct:db/b").SetErr(boom)

		removed, err := NewRedisStoreFromClient(client).DeleteByPrefix(ctx, "distinct:db/")
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, removed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("scan failure", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectScan(0, "distinct:db/*", 100).SetErr(boom)

		removed, err := NewRedisStoreFromClient(client).DeleteByPrefix(ctx, "distinct:db/")
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, removed)
	})
}
