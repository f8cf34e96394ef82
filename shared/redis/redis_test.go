package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushCappedTrimsList(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(Options{URL: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Ping(ctx))

	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, client.PushCapped(ctx, "list", v, 2))
	}

	got, err := client.Range(ctx, "list", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, got)
}

func TestNewRedisClientParsesURL(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(Options{URL: "redis://" + mr.Addr() + "/0"})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.PushCapped(ctx, "k", "v", 0))
	v, err := client.Range(ctx, "k", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"v"}, v)

	_, err = NewRedisClient(Options{URL: "redis://%zz"})
	assert.Error(t, err)
}
