package completion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treatment-review/internal/common/database"
	"treatment-review/internal/common/logger"
	"treatment-review/internal/completion/completiontest"
	"treatment-review/internal/conversation"
)

func TestCached_HitAfterMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	store := database.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	stub := completiontest.Script(`{"a":1}`)
	c := Cached(store, "gpt-test", "tr:", time.Hour, logger.NewTestLogger(t))(stub)

	msgs := []conversation.Message{{Role: conversation.RoleUser, Content: "same"}}
	first, err := c.Complete(context.Background(), msgs)
	require.NoError(t, err)
	second, err := c.Complete(context.Background(), msgs)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, stub.Calls())
	assert.True(t, mr.Exists(CacheKey("tr:", "gpt-test", msgs)))
}

func TestCacheKey_DependsOnModelAndTranscript(t *testing.T) {
	a := []conversation.Message{{Role: conversation.RoleUser, Content: "x"}}
	b := []conversation.Message{{Role: conversation.RoleUser, Content: "y"}}

	assert.Equal(t, CacheKey("p:", "m", a), CacheKey("p:", "m", a))
	assert.NotEqual(t, CacheKey("p:", "m", a), CacheKey("p:", "m", b))
	assert.NotEqual(t, CacheKey("p:", "m", a), CacheKey("p:", "n", a))
}

func TestCached_StoreErrorsFallThrough(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := database.NewRedisFromClient(db)

	msgs := []conversation.Message{{Role: conversation.RoleUser, Content: "q"}}
	key := CacheKey("tr:", "gpt-test", msgs)
	mock.ExpectGet(key).SetErr(errors.New("connection refused"))
	mock.ExpectSet(key, "reply", time.Minute).SetErr(errors.New("connection refused"))

	stub := completiontest.Script("reply")
	c := Cached(store, "gpt-test", "tr:", time.Minute, logger.NewNoOpLogger())(stub)

	reply, err := c.Complete(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, "reply", reply)
	assert.Equal(t, 1, stub.Calls())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCached_ClientErrorNotStored(t *testing.T) {
	mr := miniredis.RunT(t)
	store := database.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	stub := completiontest.New(func([]conversation.Message) (string, error) {
		return "", errors.New("boom")
	})
	c := Cached(store, "m", "tr:", time.Minute, logger.NewNoOpLogger())(stub)

	_, err := c.Complete(context.Background(), nil)
	require.Error(t, err)
	assert.Empty(t, mr.Keys())
}
