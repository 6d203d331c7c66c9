package emulator

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

const treeHashChunk = 1 << 20

// A TreeHash computes the SHA256 tree hash of a payload, as Glacier does:
// the SHA256 of each 1 MiB chunk are concatenated pairwise and hashed until one remains.
type TreeHash struct {
	chunk  hash.Hash
	n      int
	hashes [][]byte
}

// NewTreeHash returns a new TreeHash.
func NewTreeHash() *TreeHash {
	return &TreeHash{chunk: sha256.New()}
}

// Write implements io.Writer.
func (h *TreeHash) Write(p []byte) (int, error) {
	written := len(p)
	for len(p) > 0 {
		size := treeHashChunk - h.n
		if size > len(p) {
			size = len(p)
		}

		h.chunk.Write(p[:size])
		h.n += size
		p = p[size:]

		if h.n == treeHashChunk {
			h.flush()
		}
	}
	return written, nil
}

func (h *TreeHash) flush() {
	h.hashes = append(h.hashes, h.chunk.Sum(nil))
	h.chunk.Reset()
	h.n = 0
}

// Sum returns the hex encoded tree hash of the written data.
func (h *TreeHash) Sum() string {
	hashes := h.hashes
	if h.n > 0 || len(hashes) == 0 {
		hashes = append(hashes[:len(hashes):len(hashes)], h.chunk.Sum(nil))
	}

	for len(hashes) > 1 {
		next := make([][]byte, 0, (len(hashes)+1)/2)
		for i := 0; i < len(hashes); i += 2 {
			if i+1 == len(hashes) {
				next = append(next, hashes[i])
				continue
			}

			sum := sha256.Sum256(append(append([]byte{}, hashes[i]...), hashes[i+1]...))
			next = append(next, sum[:])
		}
		hashes = next
	}
	return hex.EncodeToString(hashes[0])
}
