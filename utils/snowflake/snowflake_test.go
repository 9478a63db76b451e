package snowflake

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNode(t *testing.T) {
	tests := []struct {
		name    string
		id      int64
		wantErr error
	}{
		{"zero", 0, nil},
		{"max", MaxNode, nil},
		{"negative", -1, ErrInvalidNodeID},
		{"too large", MaxNode + 1, ErrInvalidNodeID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNode(tt.id)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGenerate_EncodesNodeAndTime(t *testing.T) {
	node, err := NewNode(7)
	require.NoError(t, err)

	before := time.Now().Truncate(time.Millisecond)
	id, err := node.Generate()
	require.NoError(t, err)

	assert.Positive(t, id)
	assert.EqualValues(t, 7, NodeOf(id))
	assert.WithinDuration(t, before, Time(id), time.Second)
}

func TestGenerate_MonotonicConcurrent(t *testing.T) {
	node, err := NewNode(1)
	require.NoError(t, err)

	const goroutines, perGoroutine = 8, 2000
	ids := make(chan int64, goroutines*perGoroutine)

	var wg sync.WaitGroup
	for range goroutines {
		wg.Go(func() {
			for range perGoroutine {
				id, err := node.Generate()
				if err != nil {
					t.Errorf("generate: %v", err)
					return
				}
				ids <- id
			}
		})
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool, goroutines*perGoroutine)
	for id := range ids {
		require.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestGenerate_ClockSkew(t *testing.T) {
	node, err := NewNode(1)
	require.NoError(t, err)

	base := time.Now()
	current := base
	node.now = func() time.Time { return current }

	first, err := node.Generate()
	require.NoError(t, err)

	current = base.Add(-time.Second)
	_, err = node.Generate()
	assert.ErrorIs(t, err, ErrClockMovedBackwards)

	current = base
	second, err := node.Generate()
	require.NoError(t, err)
	assert.Greater(t, second, first)
}
