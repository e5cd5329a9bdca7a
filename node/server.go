package node

import (
	"github.com/golang/snappy"
	"github.com/perlin-network/avail"
	"github.com/perlin-network/avail/common"
	"github.com/perlin-network/avail/log"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/peer"
)

var ErrUnknownPeer = errors.New("node: no gossip stream for peer")

// gossipServer feeds inbound gossip frames into the protocol as network
// bridge events.
type gossipServer struct {
	protocol *avail.Protocol
	limiter  *rate.Limiter
}

func (s *gossipServer) Gossip(stream Availability_GossipServer) error {
	address := "unknown"
	if remote, ok := peer.FromContext(stream.Context()); ok {
		address = remote.Addr.String()
	}

	id := PeerIDOf(address)

	if !deliver(s.protocol, avail.EventPeerConnected{Peer: id, Role: avail.RoleFull}) {
		return avail.ErrStopped
	}

	defer deliver(s.protocol, avail.EventPeerDisconnected{Peer: id})

	for {
		frame, err := stream.Recv()
		if err != nil {
			return err
		}

		if !processFrame(s.protocol, s.limiter, id, frame) {
			return avail.ErrStopped
		}
	}
}

// processFrame translates one gossip frame into network bridge events.
// Chunks beyond the rate limit are dropped, not processed. Returns false
// once the protocol has stopped.
func processFrame(p *avail.Protocol, limiter *rate.Limiter, id common.PeerID, frame *Frame) bool {
	logger := log.Network("server")

	if len(frame.View) > 0 {
		view := make(avail.View, 0, len(frame.View))

		for _, raw := range frame.View {
			if len(raw) != common.SizeRelayHash {
				continue
			}

			var hash common.RelayHash
			copy(hash[:], raw)

			if !view.Contains(hash) {
				view = append(view, hash)
			}
		}

		if !deliver(p, avail.EventPeerViewChange{Peer: id, View: view}) {
			return false
		}
	}

	for _, raw := range frame.Chunks {
		if !limiter.Allow() {
			logger.Warn().Str("peer", id.String()).Msg("Dropping chunk over rate limit.")
			continue
		}

		data, err := snappy.Decode(nil, raw)
		if err != nil {
			logger.Warn().Err(err).Str("peer", id.String()).Msg("Failed to decompress frame.")
			continue
		}

		message, err := avail.UnmarshalChunkMessage(data)
		if err != nil {
			logger.Warn().Err(err).Str("peer", id.String()).Msg("Failed to decode chunk message.")
			continue
		}

		if !deliver(p, avail.EventPeerMessage{Peer: id, Message: *message}) {
			return false
		}
	}

	return true
}

func deliver(p *avail.Protocol, event avail.NetworkEvent) bool {
	select {
	case p.NetworkIn <- event:
		return true
	case <-p.Done():
		return false
	}
}
