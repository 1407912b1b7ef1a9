package sequencer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInbox_PushAndWait(t *testing.T) {
	in := NewInbox(4)
	assert.True(t, in.Push("  oui  "))

	reply, ok, err := in.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "oui", reply)
}

func TestInbox_IgnoresBlank(t *testing.T) {
	in := NewInbox(4)
	in.Push("   ")
	assert.Zero(t, in.Len())
}

func TestInbox_DropsWhenFull(t *testing.T) {
	in := NewInbox(2)
	assert.True(t, in.Push("a"))
	assert.True(t, in.Push("b"))
	assert.False(t, in.Push("c"))
	assert.Equal(t, uint64(1), in.Dropped())
	assert.Equal(t, 2, in.Drain())
	assert.Zero(t, in.Len())
}

func TestInbox_WaitTimeout(t *testing.T) {
	in := NewInbox(1)
	start := time.Now()
	_, ok, err := in.Wait(context.Background(), 30*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestInbox_WaitCancelled(t *testing.T) {
	in := NewInbox(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := in.Wait(ctx, time.Minute)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInbox_ManyProducers(t *testing.T) {
	in := NewInbox(1000)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				in.Push("reply")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 500, in.Len())
}
