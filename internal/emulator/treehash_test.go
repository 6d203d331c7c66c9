package emulator

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTreeHash(t *testing.T) {
	sum := func(b []byte) []byte {
		s := sha256.Sum256(b)
		return s[:]
	}

	t.Run("empty", func(t *testing.T) {
		h := NewTreeHash()
		assert.Equal(t, hex.EncodeToString(sum(nil)), h.Sum())
	})

	t.Run("single chunk", func(t *testing.T) {
		h := NewTreeHash()
		h.Write([]byte("hello "))
		h.Write([]byte("world"))
		assert.Equal(t, hex.EncodeToString(sum([]byte("hello world"))), h.Sum())
	})

	t.Run("three chunks", func(t *testing.T) {
		data := bytes.Repeat([]byte{'a'}, 2*treeHashChunk+42)
		h := NewTreeHash()
		h.Write(data[:10])
		h.Write(data[10:])

		c1 := sum(data[:treeHashChunk])
		c2 := sum(data[treeHashChunk : 2*treeHashChunk])
		c3 := sum(data[2*treeHashChunk:])
		root := sum(append(sum(append(c1, c2...)), c3...))
		assert.Equal(t, hex.EncodeToString(root), h.Sum())

		// Sum does not alter the state.
		assert.Equal(t, hex.EncodeToString(root), h.Sum())
	})
}
