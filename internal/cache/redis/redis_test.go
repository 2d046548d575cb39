package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketrelay/internal/domain"
)

// testClient connects to MARKETRELAY_TEST_REDIS_ADDR or skips.
func testClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("MARKETRELAY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MARKETRELAY_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := New(ctx, ClientConfig{Addr: addr, DialTimeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("market:*"))
	assert.False(t, hasPattern("market:abc"))
}

func TestLockManager_Exclusive(t *testing.T) {
	c := testClient(t)
	lm := NewLockManager(c, "marketrelay-test")
	ctx := context.Background()
	key := "signer:" + time.Now().Format(time.RFC3339Nano)

	unlock, err := lm.Acquire(ctx, key, 10*time.Second)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, key, 10*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	again, err := lm.Acquire(ctx, key, 10*time.Second)
	require.NoError(t, err)
	again()
}

func TestSignalBus_PatternSubscribe(t *testing.T) {
	c := testClient(t)
	bus := NewSignalBus(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := bus.Subscribe(ctx, "marketrelay-test:*")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "marketrelay-test:m1", []byte(`{"x":1}`)))

	select {
	case msg := <-msgs:
		assert.Equal(t, "marketrelay-test:m1", msg.Channel)
		assert.JSONEq(t, `{"x":1}`, string(msg.Payload))
	case <-time.After(3 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	select {
	case _, open := <-msgs:
		assert.False(t, open, "channel closes on cancel")
	case <-time.After(3 * time.Second):
		t.Fatal("subscription not closed")
	}
}
