package loadercache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/trackside/pkg/utils/cache"
)

type counter struct {
	calls map[string]int
	err   error
}

func (c *counter) load(ctx context.Context, key string) (*int, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.calls[key]++
	v := len(key)
	return &v, nil
}

func TestGetLoadsOnce(t *testing.T) {
	cnt := &counter{calls: map[string]int{}}
	now := time.Unix(0, 0)
	c := New(
		WithLoader[string, int](cnt.load),
		WithExpiration[string, int](time.Minute),
		withClock[string, int](func() time.Time { return now }))
	ctx := context.Background()

	for range 3 {
		v, err := c.Get(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, 3, *v)
	}
	assert.Equal(t, 1, cnt.calls["abc"])

	now = now.Add(2 * time.Minute)
	_, err := c.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 2, cnt.calls["abc"])

	c.Invalidate(ctx, "abc")
	_, err = c.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 3, cnt.calls["abc"])

	_, err = c.Get(ctx, "x")
	require.NoError(t, err)
	c.InvalidateAll(ctx)
	_, err = c.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 2, cnt.calls["x"])
}

func TestErrorsAreNotCached(t *testing.T) {
	errLoad := errors.New("boom")
	cnt := &counter{calls: map[string]int{}, err: errLoad}
	c := New(WithLoader[string, int](cnt.load))
	_, err := c.Get(context.Background(), "a")
	assert.ErrorIs(t, err, errLoad)
	cnt.err = nil
	v, err := c.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 1, *v)
}

func TestMissWithoutLoader(t *testing.T) {
	c := New[string, int]()
	_, err := c.Get(context.Background(), "a")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}
