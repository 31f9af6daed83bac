package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSyncEffectRunner_RunsInOrderAndSurvivesFailures(t *testing.T) {
	var got []string
	record := func(name string, err error) Effect {
		return Effect{Name: name, Run: func(context.Context) error {
			got = append(got, name)
			return err
		}}
	}

	r := NewSyncEffectRunner(zap.NewNop())
	r.Run("op", []Effect{
		record("a", nil),
		record("b", errors.New("boom")),
		{Name: "panic", Run: func(context.Context) error { panic("bad effect") }},
		record("c", nil),
	})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestQueueEffectRunner_ExecutesAndDrains(t *testing.T) {
	r := NewQueueEffectRunner(2, 16, zap.NewNop())

	var mu sync.Mutex
	count := 0
	inc := Effect{Name: "inc", Run: func(context.Context) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}}
	for i := 0; i < 10; i++ {
		r.Run("op", []Effect{inc})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 10
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestQueueEffectRunner_DropsWhenFull(t *testing.T) {
	r := NewQueueEffectRunner(1, 1, zap.NewNop())
	noop := Effect{Name: "noop", Run: func(context.Context) error { return nil }}

	r.Run("first", []Effect{noop})
	r.Run("second", []Effect{noop})
	assert.Len(t, r.queue, 1)

	// 空列表不入队
	r.drain()
	r.Run("empty", nil)
	assert.Len(t, r.queue, 0)
}
