package worker

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	p := NewPool(2)
	var n atomic.Int64
	for i := 0; i < 10; i++ {
		p.Submit(func() { n.Add(1) })
	}
	p.Stop()
	assert.Equal(t, int64(10), n.Load())
}

func TestTrySubmitRefusesWhenFull(t *testing.T) {
	// No workers draining and a single-slot queue: the second task has
	// nowhere to go.
	p := &Pool{jobs: make(chan task, 1)}

	assert.True(t, p.TrySubmit(func() {}))
	assert.False(t, p.TrySubmit(func() {}))
	assert.Equal(t, 1, p.Depth())
}
