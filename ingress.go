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
	"sort"

	"github.com/perlin-network/avail/common"
	"github.com/perlin-network/avail/erasure"
	"github.com/perlin-network/avail/log"
	"github.com/perlin-network/avail/sys"
)

// handlePeerMessage validates an inbound chunk message and reacts with
// exactly one reputation report, except when storing our own chunk fails:
// that message is then dropped without a report. Valid chunks land in the candidate's
// message vault, are stored locally when they carry our index, and are
// forwarded to every other peer interested in the candidate.
//
// Forwarding is lazy: the set of interested-but-not-yet-served peers is
// re-evaluated on every ingress of a vault-matching message, not just the
// first, so peers that became interested late still get the chunk.
func (p *Protocol) handlePeerMessage(peer common.PeerID, message AvailabilityGossipMessage) {
	logger := log.Avail("ingress")

	if p.metrics != nil {
		p.metrics.receivedChunks.Mark(1)
	}

	candidate, ok := p.state.PerCandidate[message.CandidateHash]
	if !ok {
		p.reportPeer(peer, sys.CostNotALiveCandidate)
		return
	}

	if !p.state.PeerViews[peer].IntersectsSet(candidate.LiveIn) {
		p.reportPeer(peer, sys.CostMessageNotInView)
		return
	}

	index := uint32(message.ErasureChunk.Index)

	if index >= uint32(len(candidate.Validators)) {
		p.reportPeer(peer, sys.CostWrongValidatorIndex)
		return
	}

	if existing, ok := candidate.MessageVault[index]; ok && existing.Equal(&message) {
		p.forwardToInterested(candidate, index, message, peer)

		if candidate.received(peer, index) {
			p.reportPeer(peer, sys.CostPeerDuplicateMessage)
			return
		}

		candidate.markReceived(peer, index)
		p.reportPeer(peer, sys.BenefitValidMessage)
		return
	}

	anticipated, err := erasure.BranchHash(
		candidate.Descriptor.ErasureRoot,
		message.ErasureChunk.Proof,
		index,
	)

	if err != nil || anticipated != erasure.ChunkHash(message.ErasureChunk.Chunk) {
		p.reportPeer(peer, sys.CostMerkleProofInvalid)
		return
	}

	if candidate.ValidatorIndex != nil && message.ErasureChunk.Index == *candidate.ValidatorIndex {
		err := p.storeChunk(message.CandidateHash, candidate.Descriptor.RelayParent, message.ErasureChunk)
		if err != nil {
			logger.Warn().Err(err).
				Str("candidate", message.CandidateHash.String()).
				Msg("Failed to store our erasure chunk.")
			return
		}
	}

	candidate.MessageVault[index] = message
	candidate.markReceived(peer, index)

	p.forwardToInterested(candidate, index, message, peer)
	p.reportPeer(peer, sys.BenefitValidMessageFirst)

	p.publishToFeed(message)
}

// forwardToInterested sends a vault message to every connected peer whose
// view intersects the candidate's live set and who neither has been served
// this chunk index before nor gave it to us. Sends are recorded so no peer
// ever gets a chunk from us twice.
func (p *Protocol) forwardToInterested(
	candidate *PerCandidate,
	index uint32,
	message AvailabilityGossipMessage,
	exclude common.PeerID,
) {
	var peers []common.PeerID

	for peer, view := range p.state.PeerViews {
		if peer == exclude {
			continue
		}

		if !view.IntersectsSet(candidate.LiveIn) {
			continue
		}

		if candidate.sent(peer, index) || candidate.received(peer, index) {
			continue
		}

		peers = append(peers, peer)
	}

	if len(peers) == 0 {
		return
	}

	sort.Slice(peers, func(i, j int) bool {
		return bytes.Compare(peers[i][:], peers[j][:]) < 0
	})

	for _, peer := range peers {
		candidate.markSent(peer, index)
	}

	p.sendGossip(peers, message)
}
