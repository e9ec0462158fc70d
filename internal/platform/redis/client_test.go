package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Unreachable(t *testing.T) {
	t.Parallel()

	_, err := NewClient(context.Background(), ClientOptions{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		PingTimeout: 300 * time.Millisecond,
	})
	assert.Error(t, err)
}

func TestNewClient_Integration(t *testing.T) {
	addr := TestAddr(t)

	client, err := NewClient(context.Background(), ClientOptions{Addr: addr, DB: 15})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	assert.NoError(t, Ping(context.Background(), client, time.Second))
}
