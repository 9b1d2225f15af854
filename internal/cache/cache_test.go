package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DisabledIsNoop(t *testing.T) {
	c := New(Config{})
	_, ok := c.(Noop)
	require.True(t, ok)

	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), time.Minute))
	_, hit, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	_, hit, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, hit)

	value := []byte("payload")
	require.NoError(t, m.Set(ctx, "k", value, time.Minute))
	value[0] = 'X'

	got, hit, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "payload", string(got))

	now = now.Add(2 * time.Minute)
	_, hit, _ = m.Get(ctx, "k")
	assert.False(t, hit, "entry should expire")

	require.NoError(t, m.Set(ctx, "forever", []byte("x"), 0))
	now = now.Add(24 * time.Hour)
	_, hit, _ = m.Get(ctx, "forever")
	assert.True(t, hit)

	require.NoError(t, m.Close())
	_, hit, _ = m.Get(ctx, "forever")
	assert.False(t, hit)
}

// TestRedis runs against a live server named by ORION_TEST_REDIS_ADDR.
func TestRedis(t *testing.T) {
	addr := os.Getenv("ORION_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ORION_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	r := NewRedis(Config{Addr: addr, Prefix: "orion:test:"})
	defer r.Close()

	require.NoError(t, r.Set(ctx, "k", []byte("v"), time.Minute))
	got, hit, err := r.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "v", string(got))

	_, hit, err = r.Get(ctx, "absent-key")
	require.NoError(t, err)
	assert.False(t, hit)
}
