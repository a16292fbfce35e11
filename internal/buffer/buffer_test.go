package buffer

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferBound(t *testing.T) {
	b := New(10)
	for i := 0; i < 25; i++ {
		b.Add(i)
		assert.LessOrEqual(t, b.Len(), 10)
	}
	assert.Equal(t, 10, b.Len())
}

func TestOverflowDropsOldest(t *testing.T) {
	b := New(5)
	for i := 0; i < 5+3; i++ {
		b.Add(i)
	}
	got := b.Drain()
	require.Len(t, got, 5)
	want := []int{3, 4, 5, 6, 7}
	for i, v := range got {
		assert.Equal(t, want[i], v)
	}
	assert.Equal(t, int64(3), b.Dropped())
}

func TestDrainEmptiesBuffer(t *testing.T) {
	b := New(100)
	b.Add(1)
	b.Add(2)
	_ = b.Drain()
	assert.Equal(t, 0, b.Len())
	assert.False(t, b.IsNotEmpty())
}

func TestClear(t *testing.T) {
	b := New(100)
	b.Add(1)
	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Nil(t, b.Drain())
}

// TestDrainCompletenessUnderConcurrency verifies invariant 3: the multiset
// union of all drains equals the multiset of all adds when total adds does
// not exceed capacity.
func TestDrainCompletenessUnderConcurrency(t *testing.T) {
	const producers = 8
	const perProducer = 500
	capacity := producers * perProducer
	b := New(capacity)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				b.Add(base*perProducer + i)
			}
		}(p)
	}
	wg.Wait()

	all := b.Drain()
	require.Len(t, all, capacity)

	seen := make([]int, 0, capacity)
	for _, v := range all {
		seen = append(seen, v.(int))
	}
	sort.Ints(seen)
	for i, v := range seen {
		assert.Equal(t, i, v)
	}
}
