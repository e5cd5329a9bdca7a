// Copyright (c) 2019 Perlin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

package erasure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObtainChunksCoversData(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")

	for _, n := range []int{1, 2, 5, 7, 16} {
		chunks, err := ObtainChunks(n, data)
		assert.NoError(t, err)
		assert.Len(t, chunks, n)

		var joined []byte
		for _, chunk := range chunks {
			assert.Equal(t, len(chunks[0]), len(chunk))
			joined = append(joined, chunk...)
		}

		assert.Equal(t, data, joined[:len(data)])
	}

	_, err := ObtainChunks(0, data)
	assert.Equal(t, ErrNoChunks, err)
}

func TestObtainChunksEmptyData(t *testing.T) {
	chunks, err := ObtainChunks(4, nil)
	assert.NoError(t, err)
	assert.Len(t, chunks, 4)

	for _, chunk := range chunks {
		assert.Len(t, chunk, 1)
	}
}

func TestEveryBranchVerifiesAgainstRoot(t *testing.T) {
	data := []byte{42, 43, 44}

	for _, n := range []int{1, 2, 3, 5, 8, 13} {
		chunks, err := ObtainChunks(n, data)
		assert.NoError(t, err)

		root := Root(chunks)
		proofs := Branches(chunks)
		assert.Len(t, proofs, n)

		for i, chunk := range chunks {
			anticipated, err := BranchHash(root, proofs[i], uint32(i))
			assert.NoError(t, err)
			assert.Equal(t, ChunkHash(chunk), anticipated)
		}
	}
}

func TestTamperedChunkDoesNotMatchBranch(t *testing.T) {
	chunks, err := ObtainChunks(5, []byte("some availability data"))
	assert.NoError(t, err)

	root := Root(chunks)
	proofs := Branches(chunks)

	tampered := append([]byte{0xFF}, chunks[2]...)

	anticipated, err := BranchHash(root, proofs[2], 2)
	assert.NoError(t, err)
	assert.NotEqual(t, ChunkHash(tampered), anticipated)
}

func TestTamperedProofFailsVerification(t *testing.T) {
	chunks, err := ObtainChunks(5, []byte("some availability data"))
	assert.NoError(t, err)

	root := Root(chunks)
	proofs := Branches(chunks)

	// Flip a byte inside a sibling node.
	proofs[1][1][0] ^= 0xFF

	_, err = BranchHash(root, proofs[1], 1)
	assert.Equal(t, ErrBranchMismatch, err)

	// A proof at the wrong index folds to a different root.
	_, err = BranchHash(root, proofs[2], 3)
	assert.Equal(t, ErrBranchMismatch, err)

	_, err = BranchHash(root, nil, 0)
	assert.Equal(t, ErrEmptyProof, err)

	_, err = BranchHash(root, [][]byte{{1, 2, 3}}, 0)
	assert.Equal(t, ErrMalformedNode, err)
}
