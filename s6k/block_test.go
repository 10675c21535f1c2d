package s6k

import (
	"encoding/hex"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

func TestBlock_Encode(t *testing.T) {
	g := goldie.New(t)

	full := newBlock(Identity{Batch: 1, SeamSeries: 1, Seam: 1}, 3)
	full.set(2, Pair{Primary: 0x1234, Secondary: -32768})
	full.set(0, Pair{Primary: 1, Secondary: 2})
	full.set(1, Pair{Primary: -1, Secondary: 256})

	partial := newBlock(Identity{Batch: 1, SeamSeries: 1, Seam: 2}, 2)

	g.Assert(t, "block_three_images", []byte(hex.EncodeToString(full.Encode())))
	g.Assert(t, "block_missing_images", []byte(hex.EncodeToString(partial.Encode())))
}

func TestBlock_Set(t *testing.T) {
	require := require.New(t)

	b := newBlock(Identity{Batch: 9, SeamSeries: 1, Seam: 1}, 2)
	require.True(b.set(0, Pair{Primary: 5}))
	require.False(b.set(0, Pair{Primary: 6}), "repeated image")
	require.False(b.set(2, Pair{}), "out of range")
	require.False(b.set(-1, Pair{}), "negative image")
	require.False(b.Complete())
	require.Equal(1, b.Count())
	require.Equal(int16(5), b.Pairs[0].Primary)

	require.True(b.set(1, Pair{}))
	require.True(b.Complete())
}

func TestIdentity_String(t *testing.T) {
	require.Equal(t, "42/2/7", Identity{Batch: 42, SeamSeries: 2, Seam: 7}.String())
}
