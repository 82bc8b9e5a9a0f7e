package cache

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/letter-workflow-api/pkg/config"
)

func redisConfigFor(t *testing.T, addr string) config.RedisConfig {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return config.RedisConfig{Host: host, Port: p, DialTimeout: time.Second}
}

func TestNewRedisConnects(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedis(context.Background(), redisConfigFor(t, mr.Addr()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	assert.True(t, mr.Exists("k"))
}

func TestNewRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := redisConfigFor(t, mr.Addr())
	mr.Close()

	_, err := NewRedis(context.Background(), cfg)
	assert.Error(t, err)
}
