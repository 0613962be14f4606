package protocol

import (
	"fmt"
	"hash/crc32"
)

// CRC32 computes the standard CRC-32 (IEEE 802.3) of data as an unsigned value.
//
// Example:
//
//	protocol.CRC32([]byte("123456789")) // 0xCBF43926
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// UpdateCRC32 extends a running CRC-32 with more data.
// Start from zero: UpdateCRC32(UpdateCRC32(0, a), b) == CRC32(append(a, b...)).
func UpdateCRC32(crc uint32, data []byte) uint32 {
	return crc32.Update(crc, crc32.IEEETable, data)
}

// Chunker splits an image into fixed-size slices. The final slice may be
// shorter. Slices alias the image; callers must not modify them.
//
// A Chunker can be repositioned with Seek to resume from a saved offset.
type Chunker struct {
	image  []byte
	size   int
	offset int
}

// NewChunker creates a Chunker over image producing slices of at most size bytes.
func NewChunker(image []byte, size int) (*Chunker, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", size)
	}
	return &Chunker{image: image, size: size}, nil
}

// Next returns the next slice, or false when the image is exhausted.
func (c *Chunker) Next() ([]byte, bool) {
	if c.offset >= len(c.image) {
		return nil, false
	}
	end := c.offset + c.size
	if end > len(c.image) {
		end = len(c.image)
	}
	chunk := c.image[c.offset:end]
	c.offset = end
	return chunk, true
}

// Offset returns the number of bytes already returned by Next.
func (c *Chunker) Offset() int {
	return c.offset
}

// Seek repositions the Chunker at offset. The offset must lie on a slice
// boundary or at the end of the image.
func (c *Chunker) Seek(offset int) error {
	if offset < 0 || offset > len(c.image) {
		return fmt.Errorf("offset %d out of range 0-%d", offset, len(c.image))
	}
	if offset%c.size != 0 && offset != len(c.image) {
		return fmt.Errorf("offset %d is not a multiple of chunk size %d", offset, c.size)
	}
	c.offset = offset
	return nil
}

// Count returns the total number of slices: ceil(len(image)/size).
func (c *Chunker) Count() int {
	return (len(c.image) + c.size - 1) / c.size
}

// Chunk splits image into slices of at most size bytes.
func Chunk(image []byte, size int) ([][]byte, error) {
	c, err := NewChunker(image, size)
	if err != nil {
		return nil, err
	}

	chunks := make([][]byte, 0, c.Count())
	for {
		chunk, ok := c.Next()
		if !ok {
			break
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}
