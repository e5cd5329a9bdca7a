package avail

import (
	"github.com/perlin-network/avail/common"
	"github.com/perlin-network/avail/log"
)

// handlePeerConnected registers a peer with an empty view. Nothing is
// gossiped until the peer advertises interest.
func (p *Protocol) handlePeerConnected(peer common.PeerID, role ObservedRole) {
	log.Avail("peer").Info().
		Str("peer", peer.String()).
		Uint8("role", uint8(role)).
		Msg("Peer connected.")

	p.state.PeerViews[peer] = View{}
}

// handlePeerDisconnected forgets the peer's view. Per-candidate
// received/sent bookkeeping is left in place: peer identities are fresh per
// connection, so a reconnect never observes the stale entries, and candidate
// teardown reclaims them.
func (p *Protocol) handlePeerDisconnected(peer common.PeerID) {
	delete(p.state.PeerViews, peer)
}

// handlePeerViewChange replaces the peer's advertised view and sends the
// vault backlog of every candidate the peer is now interested in. Candidates
// for which the peer has already been sent any chunk are skipped.
func (p *Protocol) handlePeerViewChange(peer common.PeerID, view View) {
	p.state.PeerViews[peer] = view

	for _, candidate := range p.state.PerCandidate {
		if !view.IntersectsSet(candidate.LiveIn) {
			continue
		}

		if candidate.sentAny(peer) {
			continue
		}

		for _, index := range sortedVaultIndices(candidate) {
			if candidate.sent(peer, index) {
				continue
			}

			candidate.markSent(peer, index)
			p.sendGossip([]common.PeerID{peer}, candidate.MessageVault[index])
		}
	}
}
