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
	"testing"
	"time"

	"github.com/perlin-network/avail/common"
	"github.com/perlin-network/avail/erasure"
	"github.com/perlin-network/avail/sys"
	"github.com/perlin-network/noise/skademlia"
	"github.com/stretchr/testify/assert"
)

const testTimeout = time.Second

func relayHash(b byte) common.RelayHash {
	var h common.RelayHash
	for i := range h {
		h[i] = b
	}
	return h
}

func peerID(b byte) common.PeerID {
	var id common.PeerID
	for i := range id {
		id[i] = b
	}
	return id
}

type testState struct {
	chainIDs    []common.ParaID
	keys        *skademlia.Keypair
	validators  []common.ValidatorID
	ourIndex    common.ValidatorIndex
	relayParent common.RelayHash
	ancestors   []common.RelayHash
}

// defaultTestState mirrors a session of five validators in which this node
// is the last one.
func defaultTestState(t *testing.T) *testState {
	keys, err := skademlia.NewKeys(sys.KademliaC1, sys.KademliaC2)
	assert.NoError(t, err)

	validators := make([]common.ValidatorID, 5)
	for i := 0; i < 4; i++ {
		for j := range validators[i] {
			validators[i][j] = byte(i + 1)
		}
	}

	publicKey := keys.PublicKey()
	copy(validators[4][:], publicKey[:])

	return &testState{
		chainIDs:    []common.ParaID{1, 2},
		keys:        keys,
		validators:  validators,
		ourIndex:    4,
		relayParent: relayHash(0x05),
		ancestors: []common.RelayHash{
			relayHash(0x44),
			relayHash(0x33),
			relayHash(0x22),
			relayHash(0x11),
		},
	}
}

func makeCandidate(t *testing.T, para common.ParaID, relay common.RelayHash, pov []byte, nValidators int) CommittedCandidateReceipt {
	chunks, err := erasure.ObtainChunks(nValidators, pov)
	assert.NoError(t, err)

	return CommittedCandidateReceipt{
		Descriptor: CandidateDescriptor{
			ParaID:      para,
			RelayParent: relay,
			PovHash:     erasure.ChunkHash(pov),
			ErasureRoot: erasure.Root(chunks),
		},
		Commitments: CandidateCommitments{HeadData: []byte{4, 5, 6}},
	}
}

func makeGossip(t *testing.T, candidateHash common.CandidateHash, index common.ValidatorIndex, pov []byte, nValidators int) AvailabilityGossipMessage {
	chunks, err := erasure.ObtainChunks(nValidators, pov)
	assert.NoError(t, err)

	proofs := erasure.Branches(chunks)

	return AvailabilityGossipMessage{
		CandidateHash: candidateHash,
		ErasureChunk: ErasureChunk{
			Chunk: chunks[index],
			Index: index,
			Proof: proofs[index],
		},
	}
}

// seededState pins candidates a and b live under the relay parent and its
// first ancestor, with peerA watching the relay parent and peerB the
// ancestor.
func seededState(ts *testState, candidates []CommittedCandidateReceipt, peerA, peerB common.PeerID) *ProtocolState {
	hashA := candidates[0].Hash()
	hashB := candidates[1].Hash()

	state := NewProtocolState()

	state.View = View{ts.relayParent}
	state.PeerViews[peerA] = View{ts.relayParent}
	state.PeerViews[peerB] = View{ts.ancestors[0]}

	state.Receipts[ts.relayParent] = map[common.CandidateHash]struct{}{hashA: {}, hashB: {}}
	state.Receipts[ts.ancestors[0]] = map[common.CandidateHash]struct{}{hashA: {}, hashB: {}}

	for i, hash := range []common.CandidateHash{hashA, hashB} {
		index := ts.ourIndex

		candidate := newPerCandidate()
		candidate.Descriptor = candidates[i].Descriptor
		candidate.Validators = ts.validators
		candidate.ValidatorIndex = &index
		candidate.LiveIn[ts.relayParent] = struct{}{}
		candidate.LiveIn[ts.ancestors[0]] = struct{}{}

		state.PerCandidate[hash] = candidate
	}

	state.PerRelayParent[ts.relayParent] = &PerRelayParent{
		Ancestors:      []common.RelayHash{ts.ancestors[0], ts.ancestors[1]},
		LiveCandidates: map[common.CandidateHash]struct{}{hashA: {}, hashB: {}},
	}

	state.PerRelayParent[ts.ancestors[0]] = &PerRelayParent{
		Ancestors:      []common.RelayHash{ts.ancestors[1], ts.ancestors[2]},
		LiveCandidates: map[common.CandidateHash]struct{}{hashA: {}, hashB: {}},
	}

	return state
}

type harness struct {
	t *testing.T
	p *Protocol
}

func newHarness(t *testing.T, keys *skademlia.Keypair, state *ProtocolState) *harness {
	p := NewProtocol(keys, NewMetrics())

	if state != nil {
		p.WithState(state)
	}

	go p.Run()

	return &harness{t: t, p: p}
}

func (h *harness) stop() {
	h.p.Stop()
	<-h.p.Done()
}

func (h *harness) signal(s Signal) {
	select {
	case h.p.SignalIn <- s:
	case <-time.After(testTimeout):
		h.t.Fatal("timed out sending signal")
	}
}

func (h *harness) network(e NetworkEvent) {
	select {
	case h.p.NetworkIn <- e:
	case <-time.After(testTimeout):
		h.t.Fatal("timed out sending network event")
	}
}

func (h *harness) expectValidators(relay common.RelayHash, reply []common.ValidatorID) {
	select {
	case evt := <-h.p.ValidatorsOut:
		assert.Equal(h.t, relay, evt.Relay)
		evt.Result <- reply
	case <-time.After(testTimeout):
		h.t.Fatal("timed out waiting for validators request")
	}
}

func (h *harness) expectSessionIndex(relay common.RelayHash, reply common.SessionIndex) {
	select {
	case evt := <-h.p.SessionIndexOut:
		assert.Equal(h.t, relay, evt.Relay)
		evt.Result <- reply
	case <-time.After(testTimeout):
		h.t.Fatal("timed out waiting for session index request")
	}
}

func (h *harness) expectAncestors(hash common.RelayHash, k int, reply []common.RelayHash) {
	select {
	case evt := <-h.p.AncestorsOut:
		assert.Equal(h.t, hash, evt.Hash)
		assert.Equal(h.t, k, evt.K)
		evt.Result <- reply
	case <-time.After(testTimeout):
		h.t.Fatal("timed out waiting for ancestors request")
	}
}

func (h *harness) expectAvailabilityCores(relay common.RelayHash, reply []CoreState) {
	select {
	case evt := <-h.p.AvailabilityCoresOut:
		assert.Equal(h.t, relay, evt.Relay)
		evt.Result <- reply
	case <-time.After(testTimeout):
		h.t.Fatal("timed out waiting for availability cores request")
	}
}

func (h *harness) expectPendingAvailability(relay common.RelayHash, para common.ParaID, reply *CommittedCandidateReceipt) {
	select {
	case evt := <-h.p.PendingAvailabilityOut:
		assert.Equal(h.t, relay, evt.Relay)
		assert.Equal(h.t, para, evt.Para)
		evt.Result <- reply
	case <-time.After(testTimeout):
		h.t.Fatal("timed out waiting for pending availability request")
	}
}

func (h *harness) expectQueryDataAvailability(reply bool) common.CandidateHash {
	select {
	case evt := <-h.p.QueryDataAvailabilityOut:
		evt.Result <- reply
		return evt.Candidate
	case <-time.After(testTimeout):
		h.t.Fatal("timed out waiting for data availability query")
		return common.ZeroCandidateHash
	}
}

func (h *harness) expectQueryChunk(reply func(common.CandidateHash, common.ValidatorIndex) *ErasureChunk) common.CandidateHash {
	select {
	case evt := <-h.p.QueryChunkOut:
		evt.Result <- reply(evt.Candidate, evt.Index)
		return evt.Candidate
	case <-time.After(testTimeout):
		h.t.Fatal("timed out waiting for chunk query")
		return common.ZeroCandidateHash
	}
}

func (h *harness) expectStoreChunk() EventStoreChunk {
	select {
	case evt := <-h.p.StoreChunkOut:
		evt.Result <- nil
		return evt
	case <-time.After(testTimeout):
		h.t.Fatal("timed out waiting for store chunk request")
		return EventStoreChunk{}
	}
}

func (h *harness) expectGossip() EventGossip {
	select {
	case evt := <-h.p.GossipOut:
		return evt
	case <-time.After(testTimeout):
		h.t.Fatal("timed out waiting for gossip")
		return EventGossip{}
	}
}

func (h *harness) expectReport(peer common.PeerID, reputation sys.Reputation) {
	select {
	case evt := <-h.p.ReportPeerOut:
		assert.Equal(h.t, peer, evt.Peer)
		assert.Equal(h.t, reputation, evt.Reputation)
	case <-time.After(testTimeout):
		h.t.Fatal("timed out waiting for reputation report")
	}
}

// expectSilence asserts that no gossip or report is emitted for a while.
func (h *harness) expectSilence() {
	select {
	case evt := <-h.p.GossipOut:
		h.t.Fatalf("unexpected gossip to %d peers", len(evt.Peers))
	case evt := <-h.p.ReportPeerOut:
		h.t.Fatalf("unexpected report for peer %s", evt.Peer)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestViewSetupQueries(t *testing.T) {
	ts := defaultTestState(t)

	povA := []byte{42, 43, 44}
	povB := []byte{45, 46, 47}

	candidateA := makeCandidate(t, ts.chainIDs[0], ts.relayParent, povA, len(ts.validators))
	candidateB := makeCandidate(t, ts.chainIDs[1], ts.relayParent, povB, len(ts.validators))

	hashA := candidateA.Hash()
	hashB := candidateB.Hash()

	povOf := map[common.CandidateHash][]byte{hashA: povA, hashB: povB}

	peerA := peerID(0xA1)
	peerB := peerID(0xB2)

	h := newHarness(t, ts.keys, nil)

	current := ts.relayParent
	genesis := relayHash(0xAA)

	h.signal(SignalActiveLeaves{Activated: []common.RelayHash{current}})

	h.expectValidators(current, ts.validators)
	h.expectAncestors(current, sys.K+1, []common.RelayHash{ts.ancestors[0], genesis})
	h.expectSessionIndex(current, 1)

	// Genesis answers for the session of its child, but is itself excluded
	// from the ancestry.
	h.expectSessionIndex(genesis, 1)

	h.expectAvailabilityCores(ts.ancestors[0], []CoreState{
		OccupiedCore{ParaID: ts.chainIDs[0]},
		OccupiedCore{ParaID: ts.chainIDs[1]},
	})

	h.expectPendingAvailability(ts.ancestors[0], ts.chainIDs[0], &candidateA)
	h.expectPendingAvailability(ts.ancestors[0], ts.chainIDs[1], &candidateB)

	h.expectAvailabilityCores(current, []CoreState{
		OccupiedCore{ParaID: ts.chainIDs[0]},
		FreeCore{},
		FreeCore{},
		OccupiedCore{ParaID: ts.chainIDs[1]},
		FreeCore{},
		FreeCore{},
	})

	h.expectPendingAvailability(current, ts.chainIDs[0], &candidateA)
	h.expectPendingAvailability(current, ts.chainIDs[1], &candidateB)

	// The store is probed for data, then asked for our chunk of each
	// candidate. Only the first candidate has one.
	probed := h.expectQueryDataAvailability(true)
	assert.Contains(t, []common.CandidateHash{hashA, hashB}, probed)

	var recovered common.CandidateHash

	for i := 0; i < 2; i++ {
		first := i == 0

		queried := h.expectQueryChunk(func(candidate common.CandidateHash, index common.ValidatorIndex) *ErasureChunk {
			assert.Equal(t, ts.ourIndex, index)

			if !first {
				return nil
			}

			recovered = candidate
			gossip := makeGossip(t, candidate, index, povOf[candidate], len(ts.validators))
			return &gossip.ErasureChunk
		})

		assert.Contains(t, []common.CandidateHash{hashA, hashB}, queried)
	}

	// Applying the same view again is observationally silent.
	h.network(EventOurViewChange{View: View{current}})
	h.expectSilence()

	// Peer a cares about the current head, peer b about the ancestor. Peer a
	// gets the backlog of the chunk we recovered from the store.
	h.network(EventPeerConnected{Peer: peerA, Role: RoleFull})
	h.network(EventPeerViewChange{Peer: peerA, View: View{current}})

	gossip := h.expectGossip()
	assert.Equal(t, []common.PeerID{peerA}, gossip.Peers)
	assert.Equal(t, recovered, gossip.Message.CandidateHash)
	assert.Equal(t, ts.ourIndex, gossip.Message.ErasureChunk.Index)

	// Peer b only watches the ancestor. The candidates are live under the
	// current head alone, so nothing is sent its way.
	h.network(EventPeerConnected{Peer: peerB, Role: RoleFull})
	h.network(EventPeerViewChange{Peer: peerB, View: View{ts.ancestors[0]}})

	h.expectSilence()

	h.signal(SignalConclude{})
	h.stop()

	state := h.p.State()

	assert.Equal(t, View{current}, state.View)
	assert.Equal(t, View{current}, state.PeerViews[peerA])
	assert.Equal(t, View{ts.ancestors[0]}, state.PeerViews[peerB])

	expectedReceipts := map[common.CandidateHash]struct{}{hashA: {}, hashB: {}}
	assert.Equal(t, expectedReceipts, state.Receipts[current])
	assert.Equal(t, expectedReceipts, state.Receipts[ts.ancestors[0]])
	assert.Len(t, state.Receipts, 2)
}

func TestReputationVerification(t *testing.T) {
	ts := defaultTestState(t)

	povA := []byte{42, 43, 44}
	povB := []byte{45, 46, 47}
	povC := []byte{48, 49, 50}

	candidates := []CommittedCandidateReceipt{
		makeCandidate(t, ts.chainIDs[0], ts.relayParent, povA, len(ts.validators)),
		makeCandidate(t, ts.chainIDs[1], ts.relayParent, povB, len(ts.validators)),
		makeCandidate(t, ts.chainIDs[1], relayHash(0xFA), povC, len(ts.validators)),
	}

	hashA := candidates[0].Hash()

	peerA := peerID(0xA1)
	peerB := peerID(0xB2)

	h := newHarness(t, ts.keys, seededState(ts, candidates, peerA, peerB))

	valid := makeGossip(t, hashA, 2, povA, len(ts.validators))

	// First valid ingress from b: forwarded to a, then rewarded.
	h.network(EventPeerMessage{Peer: peerB, Message: valid})

	gossip := h.expectGossip()
	assert.Equal(t, []common.PeerID{peerA}, gossip.Peers)
	assert.Equal(t, hashA, gossip.Message.CandidateHash)
	assert.True(t, valid.ErasureChunk.Equal(&gossip.Message.ErasureChunk))

	h.expectReport(peerB, sys.BenefitValidMessageFirst)

	// The same message again from b: everybody interested has been served
	// already, so only the duplicate cost remains.
	h.network(EventPeerMessage{Peer: peerB, Message: valid})
	h.expectReport(peerB, sys.CostPeerDuplicateMessage)

	// The same message from a is a second valid source, and nothing gets
	// forwarded: a was served by us, b served us.
	h.network(EventPeerMessage{Peer: peerA, Message: valid})
	h.expectReport(peerA, sys.BenefitValidMessage)

	// Peer a is not interested in anything anymore.
	h.network(EventPeerViewChange{Peer: peerA, View: View{}})

	// With an empty view, a's resend is outside its advertised interest.
	h.network(EventPeerMessage{Peer: peerA, Message: valid})
	h.expectReport(peerA, sys.CostMessageNotInView)

	// Reconnecting b starts from an empty view again.
	h.network(EventPeerDisconnected{Peer: peerB})
	h.network(EventPeerConnected{Peer: peerB, Role: RoleFull})

	// A message about a candidate outside our horizon.
	valid2 := makeGossip(t, candidates[2].Hash(), 1, povC, len(ts.validators))

	h.network(EventPeerMessage{Peer: peerA, Message: valid2})
	h.expectReport(peerA, sys.CostNotALiveCandidate)

	h.expectSilence()
	h.stop()
}

func TestReputationMultiplePeersSameChunk(t *testing.T) {
	ts := defaultTestState(t)

	povA := []byte{42, 43, 44}
	povB := []byte{45, 46, 47}

	candidates := []CommittedCandidateReceipt{
		makeCandidate(t, ts.chainIDs[0], ts.relayParent, povA, len(ts.validators)),
		makeCandidate(t, ts.chainIDs[1], ts.relayParent, povB, len(ts.validators)),
	}

	hashB := candidates[1].Hash()

	peerA := peerID(0xA1)
	peerB := peerID(0xB2)

	h := newHarness(t, ts.keys, seededState(ts, candidates, peerA, peerB))

	current := ts.relayParent

	h.network(EventPeerViewChange{Peer: peerA, View: View{current}})
	h.network(EventPeerViewChange{Peer: peerB, View: View{current}})

	valid := makeGossip(t, hashB, 2, povB, len(ts.validators))

	// First from a: forwarded to b, a rewarded as first source.
	h.network(EventPeerMessage{Peer: peerA, Message: valid})

	gossip := h.expectGossip()
	assert.Equal(t, []common.PeerID{peerB}, gossip.Peers)
	assert.Equal(t, hashB, gossip.Message.CandidateHash)
	assert.True(t, valid.ErasureChunk.Equal(&gossip.Message.ErasureChunk))

	h.expectReport(peerA, sys.BenefitValidMessageFirst)

	// The same chunk from b: a second valid source, no further forwarding.
	h.network(EventPeerMessage{Peer: peerB, Message: valid})
	h.expectReport(peerB, sys.BenefitValidMessage)

	h.expectSilence()
	h.stop()
}

func TestMerkleInvalidChunk(t *testing.T) {
	ts := defaultTestState(t)

	povA := []byte{42, 43, 44}
	povB := []byte{45, 46, 47}

	candidates := []CommittedCandidateReceipt{
		makeCandidate(t, ts.chainIDs[0], ts.relayParent, povA, len(ts.validators)),
		makeCandidate(t, ts.chainIDs[1], ts.relayParent, povB, len(ts.validators)),
	}

	hashA := candidates[0].Hash()

	peerA := peerID(0xA1)
	peerB := peerID(0xB2)

	h := newHarness(t, ts.keys, seededState(ts, candidates, peerA, peerB))

	corrupted := makeGossip(t, hashA, 2, povA, len(ts.validators))
	corrupted.ErasureChunk.Chunk = append([]byte{0xFF}, corrupted.ErasureChunk.Chunk...)

	h.network(EventPeerMessage{Peer: peerB, Message: corrupted})
	h.expectReport(peerB, sys.CostMerkleProofInvalid)

	// An index beyond the validator set is rejected before any proof work.
	outOfRange := makeGossip(t, hashA, 2, povA, len(ts.validators))
	outOfRange.ErasureChunk.Index = common.ValidatorIndex(len(ts.validators))

	h.network(EventPeerMessage{Peer: peerB, Message: outOfRange})
	h.expectReport(peerB, sys.CostWrongValidatorIndex)

	h.expectSilence()
	h.stop()

	assert.Empty(t, h.p.State().PerCandidate[hashA].MessageVault)
}

func TestStoreOurChunk(t *testing.T) {
	ts := defaultTestState(t)

	povA := []byte{42, 43, 44}
	povB := []byte{45, 46, 47}

	candidates := []CommittedCandidateReceipt{
		makeCandidate(t, ts.chainIDs[0], ts.relayParent, povA, len(ts.validators)),
		makeCandidate(t, ts.chainIDs[0], ts.ancestors[0], povB, len(ts.validators)),
	}

	hashB := candidates[1].Hash()

	peerA := peerID(0xA1)
	peerB := peerID(0xB2)

	state := seededState(ts, candidates, peerA, peerB)
	state.PeerViews[peerA] = View{ts.ancestors[0]}
	state.PeerViews[peerB] = View{ts.ancestors[0]}

	h := newHarness(t, ts.keys, state)

	// A chunk carrying our own validator index is persisted before anything
	// else happens.
	ours := makeGossip(t, hashB, ts.ourIndex, povB, len(ts.validators))

	h.network(EventPeerMessage{Peer: peerA, Message: ours})

	stored := h.expectStoreChunk()
	assert.Equal(t, hashB, stored.Candidate)
	assert.Equal(t, ts.ancestors[0], stored.Relay)
	assert.Equal(t, ts.ourIndex, stored.Chunk.Index)

	gossip := h.expectGossip()
	assert.Equal(t, []common.PeerID{peerB}, gossip.Peers)

	h.expectReport(peerA, sys.BenefitValidMessageFirst)

	// A foreign-index chunk is not stored.
	other := makeGossip(t, hashB, 1, povB, len(ts.validators))

	h.network(EventPeerMessage{Peer: peerB, Message: other})

	gossip = h.expectGossip()
	assert.Equal(t, []common.PeerID{peerA}, gossip.Peers)

	h.expectReport(peerB, sys.BenefitValidMessageFirst)

	// Repeated by a: second valid source, nothing left to forward.
	h.network(EventPeerMessage{Peer: peerA, Message: other})
	h.expectReport(peerA, sys.BenefitValidMessage)

	h.expectSilence()
	h.stop()

	vault := h.p.State().PerCandidate[hashB].MessageVault
	assert.Len(t, vault, 2)
	assert.Contains(t, vault, uint32(ts.ourIndex))
	assert.Contains(t, vault, uint32(1))
}

func TestViewTeardown(t *testing.T) {
	ts := defaultTestState(t)

	povA := []byte{42, 43, 44}
	povB := []byte{45, 46, 47}

	candidates := []CommittedCandidateReceipt{
		makeCandidate(t, ts.chainIDs[0], ts.relayParent, povA, len(ts.validators)),
		makeCandidate(t, ts.chainIDs[0], ts.ancestors[0], povB, len(ts.validators)),
	}

	peerA := peerID(0xA1)
	peerB := peerID(0xB2)

	state := seededState(ts, candidates, peerA, peerB)
	state.View = View{ts.relayParent, ts.ancestors[0]}

	h := newHarness(t, ts.keys, state)

	// Finality is not a view change.
	h.signal(SignalBlockFinalized{Hash: ts.relayParent})

	// Clearing the view tears everything down without emitting a thing.
	h.network(EventOurViewChange{View: View{}})

	h.expectSilence()
	h.stop()

	final := h.p.State()

	assert.Empty(t, final.PerCandidate)
	assert.Empty(t, final.PerRelayParent)
	assert.Empty(t, final.Receipts)
}
