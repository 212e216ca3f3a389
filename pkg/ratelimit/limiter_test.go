package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_DisabledAllowsEverything(t *testing.T) {
	l := NewLimiter(DefaultConfig())
	for i := 0; i < 1000; i++ {
		assert.True(t, l.AllowRequest("U1"))
	}

	var nilLimiter *Limiter
	assert.True(t, nilLimiter.AllowRequest("U1"))
}

func TestLimiter_BurstThenReject(t *testing.T) {
	l := NewLimiter(Config{Enabled: true, RequestsPerMinute: 1, Burst: 3})

	for i := 0; i < 3; i++ {
		assert.True(t, l.AllowRequest("U1"), "request %d", i)
	}
	assert.False(t, l.AllowRequest("U1"))
}

func TestLimiter_PerUserBuckets(t *testing.T) {
	l := NewLimiter(Config{Enabled: true, RequestsPerMinute: 1, Burst: 1})

	assert.True(t, l.AllowRequest("U1"))
	assert.False(t, l.AllowRequest("U1"))
	assert.True(t, l.AllowRequest("U2"))
}

func TestLimiter_ZeroBurstDefaultsToOne(t *testing.T) {
	l := NewLimiter(Config{Enabled: true, RequestsPerMinute: 1})
	assert.True(t, l.AllowRequest(""))
	assert.False(t, l.AllowRequest(""))
}

func TestLimiter_ConcurrentAccess(t *testing.T) {
	l := NewLimiter(Config{Enabled: true, RequestsPerMinute: 1, Burst: 50})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.AllowRequest("U1") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestLimiter_Cleanup(t *testing.T) {
	l := NewLimiter(Config{Enabled: true, RequestsPerMinute: 60, Burst: 1})
	l.AllowRequest("U1")
	l.AllowRequest("U2")

	assert.Equal(t, 0, l.Cleanup(time.Hour))
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 2, l.Cleanup(time.Millisecond))
}
