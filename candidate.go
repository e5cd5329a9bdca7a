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
	"github.com/perlin-network/avail/common"
	"github.com/perlin-network/noise/payload"
	"golang.org/x/crypto/blake2b"
)

// CandidateDescriptor is the metadata of a parachain candidate that the
// distribution protocol needs: where it anchors, and the root its chunks
// verify against.
type CandidateDescriptor struct {
	ParaID      common.ParaID
	RelayParent common.RelayHash
	PovHash     common.Hash
	ErasureRoot common.Hash
}

// CandidateCommitments carries the outputs the candidate commits to. Only
// the head data is retained at this layer.
type CandidateCommitments struct {
	HeadData []byte
}

// CommittedCandidateReceipt is a candidate receipt along with its
// commitments.
type CommittedCandidateReceipt struct {
	Descriptor  CandidateDescriptor
	Commitments CandidateCommitments
}

// Marshal encodes the receipt for hashing and transport.
func (r *CommittedCandidateReceipt) Marshal() []byte {
	w := payload.NewWriter(nil)

	w.WriteUint32(uint32(r.Descriptor.ParaID))
	w.WriteBytes(r.Descriptor.RelayParent[:])
	w.WriteBytes(r.Descriptor.PovHash[:])
	w.WriteBytes(r.Descriptor.ErasureRoot[:])
	w.WriteBytes(r.Commitments.HeadData)

	return w.Bytes()
}

// Hash identifies the candidate.
func (r *CommittedCandidateReceipt) Hash() common.CandidateHash {
	return common.CandidateHash(blake2b.Sum256(r.Marshal()))
}

// CoreState reports what an availability core is doing at a given relay
// parent.
type CoreState interface {
	coreState()
}

// OccupiedCore holds a candidate pending availability for a parachain.
type OccupiedCore struct {
	ParaID common.ParaID
}

// ScheduledCore is assigned to a parachain but holds no candidate yet.
type ScheduledCore struct {
	ParaID common.ParaID
}

// FreeCore is not assigned to any parachain.
type FreeCore struct{}

func (OccupiedCore) coreState()  {}
func (ScheduledCore) coreState() {}
func (FreeCore) coreState()      {}
