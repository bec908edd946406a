package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/config"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "canvas_sync:latest", Key("latest"))
	assert.Equal(t, "canvas_sync:run:abc", Key("run", "abc"))
}

func TestNewRedisDisabled(t *testing.T) {
	client, err := NewRedis(context.Background(), config.RedisConfig{}, false)
	require.NoError(t, err)
	assert.Nil(t, client)
}
