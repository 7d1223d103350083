package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { client.Close() })
	return client, mr
}

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSetGet(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k", sample{Name: "Equity", Count: 2}, time.Minute))

	var got sample
	require.NoError(t, client.Get(ctx, "k", &got))
	assert.Equal(t, sample{Name: "Equity", Count: 2}, got)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	require.NoError(t, client.Delete(ctx, "k"))
	assert.ErrorIs(t, client.Get(ctx, "k", &got), ErrNotFound)
}

func TestGetCorruptValue(t *testing.T) {
	client, mr := newTestClient(t)
	require.NoError(t, mr.Set("k", "{broken"))

	var got sample
	err := client.Get(context.Background(), "k", &got)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestPublishSubscribe(t *testing.T) {
	client, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := client.Subscribe(ctx, "updates")
	require.NoError(t, err)

	require.NoError(t, client.Publish(ctx, "updates", sample{Name: "Bond", Count: 1}))

	select {
	case msg := <-messages:
		assert.JSONEq(t, `{"name":"Bond","count":1}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	select {
	case _, ok := <-messages:
		assert.False(t, ok, "channel closes when the context ends")
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not close")
	}
}
