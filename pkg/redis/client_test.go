package redis

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientFailsWithoutServer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	start := time.Now()
	client, err := NewClient(context.Background(), Config{
		Host:           "127.0.0.1",
		Port:           port,
		ConnectTimeout: 500 * time.Millisecond,
	}, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))

	assert.Nil(t, client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestConfigAddr(t *testing.T) {
	assert.Equal(t, "localhost:6379", Config{Host: "localhost", Port: 6379}.addr())
	assert.Equal(t, "[::1]:6380", Config{Host: "::1", Port: 6380}.addr())
}
