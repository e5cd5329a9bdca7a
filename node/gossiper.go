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

package node

import (
	"context"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/perlin-network/avail"
	"github.com/perlin-network/avail/common"
	"github.com/perlin-network/avail/debouncer"
	"github.com/perlin-network/avail/log"
	"github.com/perlin-network/avail/sys"
	"github.com/perlin-network/noise/skademlia"
	"golang.org/x/crypto/blake2b"
)

// Gossiper bridges the protocol's outbound side onto skademlia/grpc gossip
// streams. Streams are cached per peer and dropped on send failure; view
// announcements are batched through a debouncer.
type Gossiper struct {
	client  *skademlia.Client
	metrics *avail.Metrics

	streams     map[common.PeerID]Availability_GossipClient
	streamsLock sync.Mutex

	scores     map[common.PeerID]sys.Reputation
	scoresLock sync.Mutex

	debouncer *debouncer.BatchDebouncer
}

func NewGossiper(ctx context.Context, client *skademlia.Client, metrics *avail.Metrics) *Gossiper {
	g := &Gossiper{
		client:  client,
		metrics: metrics,

		streams: make(map[common.PeerID]Availability_GossipClient),
		scores:  make(map[common.PeerID]sys.Reputation),
	}

	g.debouncer = debouncer.NewBatchDebouncer(ctx, g.broadcast, 50*time.Millisecond, 16384)

	return g
}

// PeerIDOf derives the bridge-level peer identity of a transport address.
func PeerIDOf(address string) common.PeerID {
	return common.PeerID(blake2b.Sum256([]byte(address)))
}

// Run drains a protocol's gossip and reputation channels until it stops.
func (g *Gossiper) Run(p *avail.Protocol) {
	logger := log.Network("gossip")

	for {
		select {
		case <-p.Done():
			return

		case evt := <-p.GossipOut:
			frame := &Frame{Chunks: [][]byte{snappy.Encode(nil, evt.Message.Marshal())}}

			for _, peer := range evt.Peers {
				if err := g.send(peer, frame); err != nil {
					logger.Warn().Err(err).Str("peer", peer.String()).Msg("Failed to send chunk.")
				}
			}

		case evt := <-p.ReportPeerOut:
			g.report(p, evt.Peer, evt.Reputation)
		}
	}
}

// AnnounceView schedules a broadcast of our current view to all peers.
func (g *Gossiper) AnnounceView(view avail.View) {
	data := make([]byte, 0, len(view)*common.SizeRelayHash)
	for _, h := range view {
		data = append(data, h[:]...)
	}

	g.debouncer.Add(data, len(data), "view")
}

// register binds an established stream to a peer identity.
func (g *Gossiper) register(peer common.PeerID, stream Availability_GossipClient) {
	g.streamsLock.Lock()
	g.streams[peer] = stream
	g.streamsLock.Unlock()
}

func (g *Gossiper) unregister(peer common.PeerID) {
	g.streamsLock.Lock()
	delete(g.streams, peer)
	g.streamsLock.Unlock()
}

func (g *Gossiper) send(peer common.PeerID, frame *Frame) error {
	g.streamsLock.Lock()
	stream, exists := g.streams[peer]
	g.streamsLock.Unlock()

	if !exists {
		return ErrUnknownPeer
	}

	if err := stream.Send(frame); err != nil {
		g.unregister(peer)
		return err
	}

	return nil
}

// broadcast flushes debounced view announcements to the closest peers.
func (g *Gossiper) broadcast(batch []interface{}) {
	if len(batch) == 0 {
		return
	}

	// Only the most recent view announcement matters.
	data, ok := batch[len(batch)-1].([]byte)
	if !ok {
		return
	}

	var view [][]byte
	for off := 0; off+common.SizeRelayHash <= len(data); off += common.SizeRelayHash {
		view = append(view, data[off:off+common.SizeRelayHash])
	}

	frame := &Frame{View: view}

	conns := g.client.ClosestPeers()

	var wg sync.WaitGroup
	wg.Add(len(conns))

	for _, conn := range conns {
		peer := PeerIDOf(conn.Target())

		go func() {
			defer wg.Done()

			if err := g.send(peer, frame); err != nil {
				logger := log.Network("gossip")
				logger.Warn().Err(err).Msg("Failed to announce view.")
			}
		}()
	}

	wg.Wait()
}

// report tallies reputation deltas and drops peers that sink below the
// graylist threshold.
func (g *Gossiper) report(p *avail.Protocol, peer common.PeerID, delta sys.Reputation) {
	g.scoresLock.Lock()
	g.scores[peer] += delta
	score := g.scores[peer]
	g.scoresLock.Unlock()

	if score >= sys.CostGraylist {
		return
	}

	log.Network("gossip").Info().
		Str("peer", peer.String()).
		Int32("score", int32(score)).
		Msg("Dropping peer below graylist threshold.")

	g.unregister(peer)

	select {
	case p.NetworkIn <- avail.EventPeerDisconnected{Peer: peer}:
	case <-p.Done():
	}
}
