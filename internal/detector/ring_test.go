package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing_PushWithinCapacity(t *testing.T) {
	r := NewRing[int](3)
	_, ok := r.Last()
	assert.False(t, ok)

	r.Push(1)
	r.Push(2)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []int{1, 2}, r.Slice())
	last, ok := r.Last()
	assert.True(t, ok)
	assert.Equal(t, 2, last)
}

func TestRing_EvictsOldest(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 7; i++ {
		r.Push(i)
		assert.LessOrEqual(t, r.Len(), 3)
	}

	assert.Equal(t, []int{5, 6, 7}, r.Slice())
	last, _ := r.Last()
	assert.Equal(t, 7, last)
}

func TestRing_LastAfterWrap(t *testing.T) {
	r := NewRing[string](2)
	r.Push("a")
	r.Push("b")
	last, _ := r.Last()
	assert.Equal(t, "b", last)

	r.Push("c")
	last, _ = r.Last()
	assert.Equal(t, "c", last)
}
