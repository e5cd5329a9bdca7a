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

package common

import "encoding/hex"

const (
	SizeHash          = 32
	SizeRelayHash     = 32
	SizeCandidateHash = 32
	SizeValidatorID   = 32
	SizePeerID        = 32
)

type (
	// Hash is a 32-byte blake2b digest.
	Hash [SizeHash]byte

	// RelayHash identifies a relay-chain block.
	RelayHash [SizeRelayHash]byte

	// CandidateHash identifies a parachain candidate by the hash of its receipt.
	CandidateHash [SizeCandidateHash]byte

	// ValidatorID is a validator session public key.
	ValidatorID [SizeValidatorID]byte

	// PeerID identifies a gossip peer for the lifetime of its connection.
	PeerID [SizePeerID]byte

	ParaID         uint32
	ValidatorIndex uint32
	SessionIndex   uint32
)

var (
	ZeroHash          Hash
	ZeroRelayHash     RelayHash
	ZeroCandidateHash CandidateHash
	ZeroValidatorID   ValidatorID
	ZeroPeerID        PeerID
)

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h RelayHash) String() string {
	return hex.EncodeToString(h[:])
}

func (h CandidateHash) String() string {
	return hex.EncodeToString(h[:])
}

func (id ValidatorID) String() string {
	return hex.EncodeToString(id[:])
}

func (id PeerID) String() string {
	return hex.EncodeToString(id[:])
}
