package avail

import (
	"github.com/perlin-network/avail/common"
)

// FetchedLiveCandidate describes how a live candidate was discovered during
// a single resolution pass.
type FetchedLiveCandidate interface {
	fetchedLiveCandidate()
}

// CachedLiveCandidate marks a candidate already observed before, under any
// head.
type CachedLiveCandidate struct{}

// FreshLiveCandidate marks a candidate discovered for the first time, along
// with its descriptor.
type FreshLiveCandidate struct {
	Descriptor CandidateDescriptor
}

func (CachedLiveCandidate) fetchedLiveCandidate() {}
func (FreshLiveCandidate) fetchedLiveCandidate()  {}

// queryPendingAvailabilityAt resolves the candidates pending availability
// under each of the given heads. Heads present in the receipts cache are
// answered without runtime calls; the rest are queried core by core and the
// result recorded into the cache.
//
// A candidate is reported Fresh at most once, and only if it was never seen
// before anywhere in our horizon.
func (p *Protocol) queryPendingAvailabilityAt(heads []common.RelayHash) (map[common.CandidateHash]FetchedLiveCandidate, error) {
	fetched := make(map[common.CandidateHash]FetchedLiveCandidate)

	for _, head := range heads {
		if cached, ok := p.state.Receipts[head]; ok {
			for candidateHash := range cached {
				if _, seen := fetched[candidateHash]; !seen {
					fetched[candidateHash] = CachedLiveCandidate{}
				}
			}

			continue
		}

		cores, err := p.queryAvailabilityCores(head)
		if err != nil {
			return nil, err
		}

		pending := make(map[common.CandidateHash]struct{})

		for _, core := range cores {
			occupied, ok := core.(OccupiedCore)
			if !ok {
				continue
			}

			receipt, err := p.queryCandidatePendingAvailability(head, occupied.ParaID)
			if err != nil {
				return nil, err
			}

			if receipt == nil {
				continue
			}

			candidateHash := receipt.Hash()
			pending[candidateHash] = struct{}{}

			if _, seen := fetched[candidateHash]; seen {
				continue
			}

			if _, known := p.state.PerCandidate[candidateHash]; known {
				fetched[candidateHash] = CachedLiveCandidate{}
			} else {
				fetched[candidateHash] = FreshLiveCandidate{Descriptor: receipt.Descriptor}
			}
		}

		p.state.Receipts[head] = pending
	}

	return fetched, nil
}
