package fifo

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestIndexFIFO_FIFOOrder(t *testing.T) {
	f := New(8)
	for i := uint64(0); i < 8; i++ {
		require.True(t, f.TryPush(i))
	}
	require.False(t, f.TryPush(99), "push into a full queue must fail, never block")

	got := f.TryPopBatch(8)
	require.Len(t, got, 8)
	for i, v := range got {
		require.Equal(t, uint64(i), v)
	}
}

func TestIndexFIFO_PartialPop(t *testing.T) {
	f := New(4)
	for i := uint64(0); i < 4; i++ {
		require.True(t, f.TryPush(i))
	}
	first := f.TryPopBatch(2)
	require.Equal(t, []uint64{0, 1}, first)
	require.Equal(t, 2, f.Len())

	// Room is freed, producer can push again without losing FIFO order.
	require.True(t, f.TryPush(4))
	rest := f.TryPopBatch(10)
	require.Equal(t, []uint64{2, 3, 4}, rest)
}

// TestIndexFIFO_PreservesOrderUnderAnySequence is a property-based check
// (spec §8, properties are universally quantified, not example-only):
// whatever interleaving of pushes/pop-batches is applied, anything that
// is eventually popped comes out in the order it was pushed, and pushes
// into a full queue never succeed.
func TestIndexFIFO_PreservesOrderUnderAnySequence(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 32).Draw(rt, "capacity")
		f := New(capacity)

		var pushed []uint64
		var popped []uint64
		next := uint64(0)

		steps := rapid.IntRange(1, 200).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(rt, "doPop") {
				max := rapid.IntRange(1, 8).Draw(rt, "max")
				popped = append(popped, f.TryPopBatch(max)...)
				continue
			}
			before := f.Len()
			ok := f.TryPush(next)
			if before >= f.Capacity() {
				require.False(rt, ok, "push must fail once the ring is at capacity")
			} else if ok {
				pushed = append(pushed, next)
				next++
			}
		}
		popped = append(popped, f.TryPopBatch(1<<20)...)

		require.LessOrEqual(rt, len(popped), len(pushed))
		require.Equal(rt, pushed[:len(popped)], popped)
	})
}
