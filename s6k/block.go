package s6k

import (
	"encoding/binary"
	"fmt"
)

// PairSize is the encoded size of one measurement pair on the result block output.
const PairSize = 4

// Identity is the batch/seam-series/seam triple published by the line controller. The zero
// value means no part is being processed.
type Identity struct {
	Batch      uint32
	SeamSeries int
	Seam       int
}

func (id Identity) String() string {
	return fmt.Sprintf("%d/%d/%d", id.Batch, id.SeamSeries, id.Seam)
}

// Pair is the measurement of one image.
type Pair struct {
	Primary   int16
	Secondary int16
}

// Measurement is a pair reported by the image processing collaborator. Image is numbered from 0
// within the seam.
type Measurement struct {
	ID    Identity
	Image int
	Pair  Pair
}

// Block collects the pairs of one seam.
type Block struct {
	ID    Identity
	Pairs []Pair

	filled []bool
	count  int
}

func newBlock(id Identity, images int) *Block {
	return &Block{ID: id, Pairs: make([]Pair, images), filled: make([]bool, images)}
}

// Complete reports whether every image of the block has a pair.
func (b *Block) Complete() bool {
	return b.count == len(b.Pairs)
}

// Count returns the number of images with a pair.
func (b *Block) Count() int {
	return b.count
}

// set stores the pair of an image. It reports false for an out of range or repeated image.
func (b *Block) set(image int, p Pair) bool {
	if image < 0 || image >= len(b.Pairs) || b.filled[image] {
		return false
	}
	b.Pairs[image] = p
	b.filled[image] = true
	b.count++

	return true
}

// Encode returns the result block payload: the pairs in image order, each as two big-endian
// 16-bit values.
func (b *Block) Encode() []byte {
	out := make([]byte, 0, len(b.Pairs)*PairSize)
	for _, p := range b.Pairs {
		out = binary.BigEndian.AppendUint16(out, uint16(p.Primary))
		out = binary.BigEndian.AppendUint16(out, uint16(p.Secondary))
	}

	return out
}
