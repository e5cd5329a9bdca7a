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

package avail

import (
	"bytes"

	"github.com/perlin-network/avail/common"
	"github.com/perlin-network/noise/payload"
	"github.com/pkg/errors"
)

// TagChunk is the only message of version 1 of the validation protocol at
// this layer.
const TagChunk byte = 0x00

var ErrUnknownMessageTag = errors.New("unknown validation protocol message tag")

// ErasureChunk is a single erasure-coded piece of a candidate's block data,
// accompanied by its Merkle branch against the candidate's erasure root.
type ErasureChunk struct {
	Chunk []byte
	Index common.ValidatorIndex
	Proof [][]byte
}

func (c *ErasureChunk) Equal(other *ErasureChunk) bool {
	if c.Index != other.Index || !bytes.Equal(c.Chunk, other.Chunk) {
		return false
	}

	if len(c.Proof) != len(other.Proof) {
		return false
	}

	for i := range c.Proof {
		if !bytes.Equal(c.Proof[i], other.Proof[i]) {
			return false
		}
	}

	return true
}

// AvailabilityGossipMessage pushes a single erasure chunk of a live candidate
// to a peer.
type AvailabilityGossipMessage struct {
	CandidateHash common.CandidateHash
	ErasureChunk  ErasureChunk
}

func (m *AvailabilityGossipMessage) Equal(other *AvailabilityGossipMessage) bool {
	return m.CandidateHash == other.CandidateHash && m.ErasureChunk.Equal(&other.ErasureChunk)
}

// Marshal encodes the message for the wire, prefixed with its protocol tag.
func (m AvailabilityGossipMessage) Marshal() []byte {
	w := payload.NewWriter(nil)

	w.WriteByte(TagChunk)
	w.WriteBytes(m.CandidateHash[:])
	w.WriteUint32(uint32(m.ErasureChunk.Index))
	w.WriteBytes(m.ErasureChunk.Chunk)
	w.WriteUint32(uint32(len(m.ErasureChunk.Proof)))

	for _, node := range m.ErasureChunk.Proof {
		w.WriteBytes(node)
	}

	return w.Bytes()
}

// UnmarshalChunkMessage decodes a wire frame previously produced by Marshal.
func UnmarshalChunkMessage(buf []byte) (*AvailabilityGossipMessage, error) {
	r := payload.NewReader(buf)

	tag, err := r.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read message tag")
	}

	if tag != TagChunk {
		return nil, ErrUnknownMessageTag
	}

	hash, err := r.ReadBytes()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read candidate hash")
	}

	if len(hash) != common.SizeCandidateHash {
		return nil, errors.Errorf("candidate hash must be %d bytes", common.SizeCandidateHash)
	}

	var msg AvailabilityGossipMessage
	copy(msg.CandidateHash[:], hash)

	index, err := r.ReadUint32()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read chunk index")
	}

	msg.ErasureChunk.Index = common.ValidatorIndex(index)

	chunk, err := r.ReadBytes()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read chunk body")
	}

	msg.ErasureChunk.Chunk = chunk

	count, err := r.ReadUint32()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read proof length")
	}

	for i := uint32(0); i < count; i++ {
		node, err := r.ReadBytes()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read proof node %d", i)
		}

		msg.ErasureChunk.Proof = append(msg.ErasureChunk.Proof, node)
	}

	return &msg, nil
}
