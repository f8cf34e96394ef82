package worker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chat-risk-analysis/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsTasks(t *testing.T) {
	p, err := NewPool(2, 8, logger.Discard())
	require.NoError(t, err)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			ran.Add(1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(5), ran.Load())
	assert.Equal(t, 8, p.Capacity())
	require.NoError(t, p.Shutdown(time.Second))
}

func TestPoolRejectsWhenSaturated(t *testing.T) {
	p, err := NewPool(1, 1, logger.Discard())
	require.NoError(t, err)

	release := make(chan struct{})
	var ran atomic.Int32
	accepted := 0
	busy := false
	for i := 0; i < 10; i++ {
		err := p.Submit(func() {
			<-release
			ran.Add(1)
		})
		if err != nil {
			assert.ErrorIs(t, err, ErrSchedulerBusy)
			busy = true
			break
		}
		accepted++
	}
	assert.True(t, busy, "pool should refuse work once the backlog is full")
	assert.LessOrEqual(t, accepted, 3)
	assert.Eventually(t, func() bool { return p.Running() == 1 }, time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, p.Pending(), p.Capacity())

	close(release)
	require.NoError(t, p.Shutdown(2*time.Second))
	assert.Equal(t, int32(accepted), ran.Load())
}

func TestPoolSubmitAfterShutdown(t *testing.T) {
	p, err := NewPool(1, 1, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(time.Second))

	assert.ErrorIs(t, p.Submit(func() {}), ErrSchedulerClosed)
	assert.NoError(t, p.Shutdown(time.Second))
}
