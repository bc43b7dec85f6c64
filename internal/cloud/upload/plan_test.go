package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPlanCoversFileExactly checks contiguity, no overlap and full coverage over many sizes.
func TestPlanCoversFileExactly(t *testing.T) {
	for total := int64(1); total <= 300; total += 7 {
		for chunk := int64(1); chunk <= 40; chunk += 3 {
			p, err := Plan(total, chunk)
			require.NoError(t, err)
			want := p.Len()

			ranges := p.Ranges()
			require.Len(t, ranges, want, "total=%d chunk=%d", total, chunk)

			var next int64
			for i, r := range ranges {
				if r.Start != next {
					t.Fatalf("total=%d chunk=%d: range %d starts at %d, want %d", total, chunk, i, r.Start, next)
				}
				if r.Len() <= 0 || r.Len() > chunk {
					t.Fatalf("total=%d chunk=%d: range %d has length %d", total, chunk, i, r.Len())
				}
				if i < len(ranges)-1 && r.Len() != chunk {
					t.Fatalf("total=%d chunk=%d: only the last range may be short", total, chunk)
				}
				next = r.End
			}
			if next != total {
				t.Fatalf("total=%d chunk=%d: ranges end at %d", total, chunk, next)
			}
		}
	}
}

func TestPlan45MiBIn20MiBParts(t *testing.T) {
	const mib = 1024 * 1024
	p, err := Plan(45*mib, 20*mib)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())

	assert.Equal(t, []ByteRange{
		{Start: 0, End: 20 * mib},
		{Start: 20 * mib, End: 40 * mib},
		{Start: 40 * mib, End: 45 * mib},
	}, p.Ranges())
}

func TestPlanIsSinglePass(t *testing.T) {
	p, err := Plan(10, 4)
	require.NoError(t, err)
	assert.Len(t, p.Ranges(), 3)

	_, ok := p.Next()
	assert.False(t, ok)
	assert.Empty(t, p.Ranges())
	assert.Equal(t, 3, p.Len(), "Len reports the plan size, not what is left")
}

func TestPlanEmptyFile(t *testing.T) {
	p, err := Plan(0, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Len())
	_, ok := p.Next()
	assert.False(t, ok)
}

func TestPlanRejectsBadChunkSize(t *testing.T) {
	for _, chunk := range []int64{0, -1} {
		_, err := Plan(10, chunk)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindInvalidInput))
		assert.ErrorIs(t, err, ErrInvalidChunkSize)
	}
}
