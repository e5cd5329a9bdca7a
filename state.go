package avail

import (
	"github.com/perlin-network/avail/common"
)

// View is the ordered set of relay heads a node currently considers
// interesting. Order is incidental; membership is what matters.
type View []common.RelayHash

func (v View) Contains(hash common.RelayHash) bool {
	for _, h := range v {
		if h == hash {
			return true
		}
	}

	return false
}

// IntersectsSet reports whether any head of the view is contained in the
// given set.
func (v View) IntersectsSet(set map[common.RelayHash]struct{}) bool {
	for _, h := range v {
		if _, ok := set[h]; ok {
			return true
		}
	}

	return false
}

// Difference returns the heads of v that are not in other.
func (v View) Difference(other View) []common.RelayHash {
	var out []common.RelayHash

	for _, h := range v {
		if !other.Contains(h) {
			out = append(out, h)
		}
	}

	return out
}

// PerCandidate tracks a candidate for as long as at least one relay parent
// in our horizon pins it live.
type PerCandidate struct {
	Descriptor     CandidateDescriptor
	Validators     []common.ValidatorID
	ValidatorIndex *common.ValidatorIndex

	// MessageVault holds every valid chunk message ever seen for this
	// candidate, keyed by chunk index. It grows monotonically while the
	// candidate is pinned.
	MessageVault map[uint32]AvailabilityGossipMessage

	// ReceivedMessages records (peer, chunk index) pairs accepted from each
	// peer, for duplicate detection.
	ReceivedMessages map[common.PeerID]map[uint32]struct{}

	// SentMessages records (peer, chunk index) pairs we have forwarded, so
	// no peer receives the same chunk from us twice.
	SentMessages map[common.PeerID]map[uint32]struct{}

	// LiveIn is the set of relay parents under which this candidate is
	// currently live.
	LiveIn map[common.RelayHash]struct{}
}

func newPerCandidate() *PerCandidate {
	return &PerCandidate{
		MessageVault:     make(map[uint32]AvailabilityGossipMessage),
		ReceivedMessages: make(map[common.PeerID]map[uint32]struct{}),
		SentMessages:     make(map[common.PeerID]map[uint32]struct{}),
		LiveIn:           make(map[common.RelayHash]struct{}),
	}
}

func (c *PerCandidate) markReceived(peer common.PeerID, index uint32) {
	set, ok := c.ReceivedMessages[peer]
	if !ok {
		set = make(map[uint32]struct{})
		c.ReceivedMessages[peer] = set
	}

	set[index] = struct{}{}
}

func (c *PerCandidate) received(peer common.PeerID, index uint32) bool {
	_, ok := c.ReceivedMessages[peer][index]
	return ok
}

func (c *PerCandidate) markSent(peer common.PeerID, index uint32) {
	set, ok := c.SentMessages[peer]
	if !ok {
		set = make(map[uint32]struct{})
		c.SentMessages[peer] = set
	}

	set[index] = struct{}{}
}

func (c *PerCandidate) sent(peer common.PeerID, index uint32) bool {
	_, ok := c.SentMessages[peer][index]
	return ok
}

func (c *PerCandidate) sentAny(peer common.PeerID) bool {
	return len(c.SentMessages[peer]) > 0
}

// PerRelayParent tracks a relay head in our view along with its resolved
// in-session ancestors. Ancestors get no entry of their own unless they are
// view heads themselves.
type PerRelayParent struct {
	Ancestors      []common.RelayHash
	LiveCandidates map[common.CandidateHash]struct{}
}

func newPerRelayParent(ancestors []common.RelayHash) *PerRelayParent {
	return &PerRelayParent{
		Ancestors:      ancestors,
		LiveCandidates: make(map[common.CandidateHash]struct{}),
	}
}

// ProtocolState is the entire in-memory data model of the distribution
// protocol. It is owned by a single task; see Protocol.
//
// PerCandidate.LiveIn and PerRelayParent.LiveCandidates are two parallel
// indexes into the same relation. Both are mutated only here, which keeps
// them consistent by construction.
type ProtocolState struct {
	View      View
	PeerViews map[common.PeerID]View

	PerRelayParent map[common.RelayHash]*PerRelayParent
	PerCandidate   map[common.CandidateHash]*PerCandidate

	// Receipts memoizes the candidates pending availability at every relay
	// parent ever queried, pruned at each view change.
	Receipts map[common.RelayHash]map[common.CandidateHash]struct{}
}

func NewProtocolState() *ProtocolState {
	return &ProtocolState{
		PeerViews:      make(map[common.PeerID]View),
		PerRelayParent: make(map[common.RelayHash]*PerRelayParent),
		PerCandidate:   make(map[common.CandidateHash]*PerCandidate),
		Receipts:       make(map[common.RelayHash]map[common.CandidateHash]struct{}),
	}
}

// AddRelayParent registers a relay parent along with the candidates live
// under it. Fresh candidates get their descriptor and session validator info
// populated; candidates already known are only pinned.
func (s *ProtocolState) AddRelayParent(
	relay common.RelayHash,
	validators []common.ValidatorID,
	validatorIndex *common.ValidatorIndex,
	fetched map[common.CandidateHash]FetchedLiveCandidate,
	ancestors []common.RelayHash,
) {
	entry, ok := s.PerRelayParent[relay]
	if !ok {
		entry = newPerRelayParent(ancestors)
		s.PerRelayParent[relay] = entry
	}

	for candidateHash, state := range fetched {
		candidate, ok := s.PerCandidate[candidateHash]
		if !ok {
			candidate = newPerCandidate()

			if fresh, isFresh := state.(FreshLiveCandidate); isFresh {
				candidate.Descriptor = fresh.Descriptor
				candidate.Validators = validators
				candidate.ValidatorIndex = validatorIndex
			}

			s.PerCandidate[candidateHash] = candidate
		}

		candidate.LiveIn[relay] = struct{}{}
		entry.LiveCandidates[candidateHash] = struct{}{}
	}
}

// RemoveRelayParent unpins every candidate live under the given relay parent
// and deletes candidates whose last pin this was.
func (s *ProtocolState) RemoveRelayParent(relay common.RelayHash) {
	entry, ok := s.PerRelayParent[relay]
	if !ok {
		return
	}

	for candidateHash := range entry.LiveCandidates {
		candidate, ok := s.PerCandidate[candidateHash]
		if !ok {
			continue
		}

		delete(candidate.LiveIn, relay)

		if len(candidate.LiveIn) == 0 {
			delete(s.PerCandidate, candidateHash)
		}
	}

	delete(s.PerRelayParent, relay)
}

// CleanUpReceiptsCache retains only receipts for heads in our view or listed
// as an ancestor of a head in our view.
func (s *ProtocolState) CleanUpReceiptsCache() {
	pinned := make(map[common.RelayHash]struct{}, len(s.View))

	for _, h := range s.View {
		pinned[h] = struct{}{}

		if entry, ok := s.PerRelayParent[h]; ok {
			for _, ancestor := range entry.Ancestors {
				pinned[ancestor] = struct{}{}
			}
		}
	}

	for hash := range s.Receipts {
		if _, ok := pinned[hash]; !ok {
			delete(s.Receipts, hash)
		}
	}
}
