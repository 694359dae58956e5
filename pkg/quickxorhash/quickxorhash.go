// Package quickxorhash implements QuickXorHash, the content hash OneDrive
// reports for files on Personal and Business drives.
//
// Each input byte is XORed into a 160-bit circular buffer at a bit offset
// that advances by 11 per byte. The digest is the buffer in little-endian
// order with the total input length XORed into its last eight bytes.
package quickxorhash

import (
	"encoding/binary"
	"hash"
)

const (
	// Size is the length, in bytes, of a QuickXorHash digest.
	Size = 20

	// BlockSize is the preferred input block size for the hash, in bytes.
	BlockSize = 64

	widthInBits = Size * 8
	shift       = 11
	lengthBytes = 8
)

type digest struct {
	buf    [Size]byte
	offset int // bit offset of the next byte, in [0, widthInBits)
	length uint64
}

// New returns a new hash.Hash computing the QuickXorHash checksum.
func New() hash.Hash {
	return &digest{}
}

// Write always returns len(p), nil.
func (d *digest) Write(p []byte) (int, error) {
	for _, b := range p {
		idx := d.offset / 8
		bit := uint(d.offset % 8)

		d.buf[idx] ^= b << bit
		if bit != 0 {
			// Spill the high bits into the next byte; the buffer wraps at Size.
			d.buf[(idx+1)%Size] ^= b >> (8 - bit)
		}

		d.offset = (d.offset + shift) % widthInBits
	}

	d.length += uint64(len(p))

	return len(p), nil
}

func (d *digest) Sum(b []byte) []byte {
	out := d.buf

	var n [lengthBytes]byte
	binary.LittleEndian.PutUint64(n[:], d.length)

	for i, v := range n {
		out[Size-lengthBytes+i] ^= v
	}

	return append(b, out[:]...)
}

func (d *digest) Reset() {
	*d = digest{}
}

func (d *digest) Size() int {
	return Size
}

func (d *digest) BlockSize() int {
	return BlockSize
}
