package goroutine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManager_RunsAndCollectsErrors(t *testing.T) {
	m := NewManager(4)
	var ran atomic.Int32
	boom := errors.New("boom")

	for i := range 3 {
		assert.True(t, m.Go(context.Background(), func(context.Context) error {
			ran.Add(1)
			if i == 1 {
				return boom
			}
			return nil
		}))
	}

	err := m.Wait()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(3), ran.Load())
}

func TestManager_RecoversPanic(t *testing.T) {
	m := NewManager(1)
	m.Go(context.Background(), func(context.Context) error { panic("kaboom") })
	assert.NoError(t, m.Wait())
}

func TestManager_LimitAndClose(t *testing.T) {
	m := NewManager(1)
	release := make(chan struct{})

	assert.True(t, m.Go(context.Background(), func(context.Context) error {
		<-release
		return nil
	}))
	assert.False(t, m.Go(context.Background(), func(context.Context) error { return nil }), "limit reached")

	close(release)
	assert.NoError(t, m.Wait())
	assert.False(t, m.Go(context.Background(), func(context.Context) error { return nil }), "closed")
}

func TestManager_SkipsCanceledContext(t *testing.T) {
	m := NewManager(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	m.Go(ctx, func(context.Context) error {
		ran.Store(true)
		return nil
	})

	assert.NoError(t, m.Wait())
	assert.False(t, ran.Load())
}

func TestManager_Nil(t *testing.T) {
	var m *Manager
	assert.False(t, m.Go(context.Background(), func(context.Context) error { return nil }))
	assert.NoError(t, m.Wait())
}
