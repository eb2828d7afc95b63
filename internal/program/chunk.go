package program

import (
	"fmt"

	"github.com/stealthpool/client-go/internal/apierrors"
)

// ChunkSize keeps each upload transaction under the ledger's packet ceiling.
// The 1120-byte ciphertext travels as one 600-byte and one 520-byte chunk.
const ChunkSize = 600

// Chunk is a slice of the ciphertext addressed by its byte offset.
type Chunk struct {
	Offset uint16
	Data   []byte
}

// ChunkCiphertext splits ciphertext into chunks of at most size bytes. A
// non-positive size selects ChunkSize.
func ChunkCiphertext(ciphertext []byte, size int) []Chunk {
	if size <= 0 {
		size = ChunkSize
	}
	chunks := make([]Chunk, 0, (len(ciphertext)+size-1)/size)
	for off := 0; off < len(ciphertext); off += size {
		end := min(off+size, len(ciphertext))
		chunks = append(chunks, Chunk{Offset: uint16(off), Data: ciphertext[off:end]})
	}
	return chunks
}

// ApplyChunk writes data into dst at offset. Writing the same bytes twice
// leaves dst unchanged.
func ApplyChunk(dst []byte, offset uint16, data []byte) error {
	end := int(offset) + len(data)
	if len(data) == 0 || end > len(dst) {
		return fmt.Errorf("%w: offset %d length %d exceeds %d", apierrors.ErrInvalidChunk, offset, len(data), len(dst))
	}
	copy(dst[offset:end], data)
	return nil
}
