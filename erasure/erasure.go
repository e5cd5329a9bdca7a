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

// Package erasure produces per-validator chunks of candidate block data
// together with Merkle branch proofs against the erasure root, and verifies
// such branches. Leaf and node hashes are 256-bit blake2b.
package erasure

import (
	"github.com/perlin-network/avail/common"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrNoChunks       = errors.New("erasure: chunk count must be at least one")
	ErrEmptyProof     = errors.New("erasure: branch proof is empty")
	ErrMalformedNode  = errors.New("erasure: branch proof node has wrong length")
	ErrBranchMismatch = errors.New("erasure: branch does not verify against root")
)

// ObtainChunks splits data into n chunks of equal length, padding the tail
// with zeroes. Every chunk carries at least one byte, so empty data still
// produces n one-byte (zero) chunks.
func ObtainChunks(n int, data []byte) ([][]byte, error) {
	if n < 1 {
		return nil, ErrNoChunks
	}

	size := (len(data) + n - 1) / n
	if size == 0 {
		size = 1
	}

	chunks := make([][]byte, n)

	for i := 0; i < n; i++ {
		chunk := make([]byte, size)

		if off := i * size; off < len(data) {
			copy(chunk, data[off:])
		}

		chunks[i] = chunk
	}

	return chunks, nil
}

// Root computes the erasure root: the Merkle root over the blake2b hashes of
// all chunks.
func Root(chunks [][]byte) common.Hash {
	levels := buildLevels(chunks)
	return levels[len(levels)-1][0]
}

// Branches returns one branch proof per chunk index. A proof starts with the
// leaf hash of the chunk, followed by the sibling hashes from leaf level
// upwards.
func Branches(chunks [][]byte) [][][]byte {
	levels := buildLevels(chunks)

	proofs := make([][][]byte, len(chunks))

	for i := range chunks {
		proof := make([][]byte, 0, len(levels))

		leaf := levels[0][i]
		proof = append(proof, leaf[:])

		idx := i
		for _, level := range levels[:len(levels)-1] {
			sibling := level[idx^1]
			proof = append(proof, sibling[:])
			idx >>= 1
		}

		proofs[i] = proof
	}

	return proofs
}

// BranchHash folds a branch proof back up to the erasure root and, on
// success, returns the leaf hash the proof commits to at the given index.
// The caller is expected to compare the result against the hash of the chunk
// it received.
func BranchHash(root common.Hash, proof [][]byte, index uint32) (common.Hash, error) {
	if len(proof) == 0 {
		return common.ZeroHash, ErrEmptyProof
	}

	var leaf common.Hash

	for _, node := range proof {
		if len(node) != common.SizeHash {
			return common.ZeroHash, ErrMalformedNode
		}
	}

	copy(leaf[:], proof[0])

	h := leaf
	idx := index

	for _, sibling := range proof[1:] {
		var sib common.Hash
		copy(sib[:], sibling)

		if idx&1 == 0 {
			h = nodeHash(h, sib)
		} else {
			h = nodeHash(sib, h)
		}

		idx >>= 1
	}

	if h != root {
		return common.ZeroHash, ErrBranchMismatch
	}

	return leaf, nil
}

// ChunkHash is the leaf hash of a single chunk.
func ChunkHash(chunk []byte) common.Hash {
	return blake2b.Sum256(chunk)
}

// buildLevels computes the full Merkle tree bottom-up. The leaf level is
// padded to a power of two with zero hashes so that every node has a sibling.
func buildLevels(chunks [][]byte) [][]common.Hash {
	width := 1
	for width < len(chunks) {
		width <<= 1
	}

	leaves := make([]common.Hash, width)
	for i, chunk := range chunks {
		leaves[i] = blake2b.Sum256(chunk)
	}

	levels := [][]common.Hash{leaves}

	for len(levels[len(levels)-1]) > 1 {
		prev := levels[len(levels)-1]
		next := make([]common.Hash, len(prev)/2)

		for i := range next {
			next[i] = nodeHash(prev[2*i], prev[2*i+1])
		}

		levels = append(levels, next)
	}

	return levels
}

func nodeHash(left, right common.Hash) common.Hash {
	buf := make([]byte, 0, 2*common.SizeHash)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)

	return blake2b.Sum256(buf)
}
