package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "lock:pavilion:ledger", lockKey("pavilion:ledger"))
	assert.Equal(t, "ratelimit:ip:10.0.0.1", rateLimitKey("ip:10.0.0.1"))
}

func TestIsPattern(t *testing.T) {
	assert.True(t, isPattern("pavilion:events:*"))
	assert.True(t, isPattern("pavilion:events:game_?"))
	assert.True(t, isPattern("pavilion:events:[ab]"))
	assert.False(t, isPattern("pavilion:events:tickets_bought"))
}

func TestClientOptions(t *testing.T) {
	opts := ClientConfig{
		Addr:        "cache:6379",
		Password:    "pw",
		DB:          2,
		PoolSize:    5,
		DialTimeout: time.Second,
		TLSEnabled:  true,
	}.options()
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, time.Second, opts.DialTimeout)
	if assert.NotNil(t, opts.TLSConfig) {
		assert.NotZero(t, opts.TLSConfig.MinVersion)
	}

	assert.Nil(t, ClientConfig{Addr: "x"}.options().TLSConfig)
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
}
