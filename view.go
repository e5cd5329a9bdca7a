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
	"github.com/perlin-network/avail/log"
	"github.com/perlin-network/avail/sys"
)

// handleOurViewChange brings the protocol state in line with a new local
// view: newly added heads get their session validators, in-session ancestry
// and live candidates resolved and registered, removed heads are torn down,
// and the receipts cache is pruned to the new horizon.
//
// Runtime failures abort the affected head only. The state they leave behind
// is consistent; the next view change heals the set.
func (p *Protocol) handleOurViewChange(view View) {
	logger := log.Avail("view")

	old := p.state.View
	added := view.Difference(old)
	removed := old.Difference(view)

	p.state.View = view

	for _, head := range added {
		validators, err := p.queryValidators(head)
		if err != nil {
			logger.Warn().Err(err).Str("relay_parent", head.String()).Msg("Failed to query session validators.")
			continue
		}

		validatorIndex := p.localValidatorIndex(validators)

		ancestors, err := p.ancestorsInSameSession(head, sys.K)
		if err != nil {
			logger.Warn().Err(err).Str("relay_parent", head.String()).Msg("Failed to resolve in-session ancestry.")
			ancestors = nil
		}

		// Ancestors resolve before the head itself.
		heads := append(append([]common.RelayHash(nil), ancestors...), head)

		fetched, err := p.queryPendingAvailabilityAt(heads)
		if err != nil {
			logger.Warn().Err(err).Str("relay_parent", head.String()).Msg("Failed to resolve pending availability.")
			continue
		}

		p.state.AddRelayParent(head, validators, validatorIndex, fetched, ancestors)

		p.recoverOwnChunks(fetched)

		for candidateHash := range fetched {
			candidate, ok := p.state.PerCandidate[candidateHash]
			if !ok {
				continue
			}

			for _, index := range sortedVaultIndices(candidate) {
				message := candidate.MessageVault[index]
				p.forwardToInterested(candidate, index, message, common.ZeroPeerID)
			}
		}
	}

	for _, head := range removed {
		p.state.RemoveRelayParent(head)
	}

	p.state.CleanUpReceiptsCache()
}

// recoverOwnChunks asks the availability store whether it already holds our
// chunk for any of the given candidates, seeding their message vaults. The
// store is probed candidate by candidate until it reports data at all; only
// then are the individual chunks queried.
func (p *Protocol) recoverOwnChunks(fetched map[common.CandidateHash]FetchedLiveCandidate) {
	logger := log.Avail("view")

	var needy []common.CandidateHash

	for candidateHash := range fetched {
		candidate, ok := p.state.PerCandidate[candidateHash]
		if !ok || len(candidate.MessageVault) != 0 {
			continue
		}

		if candidate.ValidatorIndex == nil || int(*candidate.ValidatorIndex) >= len(candidate.Validators) {
			continue
		}

		needy = append(needy, candidateHash)
	}

	if len(needy) == 0 {
		return
	}

	sort.Slice(needy, func(i, j int) bool {
		return bytes.Compare(needy[i][:], needy[j][:]) < 0
	})

	available := false

	for _, candidateHash := range needy {
		has, err := p.queryDataAvailability(candidateHash)
		if err != nil {
			logger.Warn().Err(err).Str("candidate", candidateHash.String()).Msg("Failed to query data availability.")
			return
		}

		if has {
			available = true
			break
		}
	}

	if !available {
		return
	}

	for _, candidateHash := range needy {
		candidate := p.state.PerCandidate[candidateHash]

		chunk, err := p.queryChunk(candidateHash, *candidate.ValidatorIndex)
		if err != nil {
			logger.Warn().Err(err).Str("candidate", candidateHash.String()).Msg("Failed to query our chunk.")
			return
		}

		if chunk == nil {
			continue
		}

		candidate.MessageVault[uint32(chunk.Index)] = AvailabilityGossipMessage{
			CandidateHash: candidateHash,
			ErasureChunk:  *chunk,
		}
	}
}

func sortedVaultIndices(candidate *PerCandidate) []uint32 {
	indices := make([]uint32, 0, len(candidate.MessageVault))

	for index := range candidate.MessageVault {
		indices = append(indices, index)
	}

	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	return indices
}
