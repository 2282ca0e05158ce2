package pool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPool_ExhaustionAndRelease(t *testing.T) {
	p := New(2, func() int { return 0 })

	i1, _, err := p.TryReserve()
	require.NoError(t, err)
	_, _, err = p.TryReserve()
	require.NoError(t, err)

	_, _, err = p.TryReserve()
	require.ErrorIs(t, err, ErrExhausted)

	p.Release(i1)
	require.Equal(t, 1, p.FreeCount())

	_, _, err = p.TryReserve()
	require.NoError(t, err)
}

// TestPool_ReuseProperty is spec Property 1: for any pool of capacity N,
// after any sequence of reserve/release operations ending with equal
// counts, the pool reports exactly N free slots and the next N reserve
// calls all succeed.
func TestPool_ReuseProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 64).Draw(rt, "capacity")
		p := New(capacity, func() int { return 0 })

		var outstanding []uint32
		steps := rapid.IntRange(1, 300).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			if len(outstanding) > 0 && rapid.Bool().Draw(rt, "release") {
				j := rapid.IntRange(0, len(outstanding)-1).Draw(rt, "which")
				p.Release(outstanding[j])
				outstanding = append(outstanding[:j], outstanding[j+1:]...)
				continue
			}
			idx, _, err := p.TryReserve()
			if err != nil {
				require.True(rt, errors.Is(err, ErrExhausted))
				continue
			}
			outstanding = append(outstanding, idx)
		}

		for _, idx := range outstanding {
			p.Release(idx)
		}

		require.Equal(rt, capacity, p.FreeCount())
		for i := 0; i < capacity; i++ {
			_, _, err := p.TryReserve()
			require.NoError(rt, err)
		}
		_, _, err := p.TryReserve()
		require.ErrorIs(rt, err, ErrExhausted)
	})
}
