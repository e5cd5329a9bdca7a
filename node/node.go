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

// Package node assembles the availability-distribution protocol with its
// collaborators: the skademlia/grpc gossip transport, the LevelDB-backed
// availability store, and the relay-chain runtime client.
package node

import (
	"context"
	"net"
	"time"

	"github.com/perlin-network/avail"
	"github.com/perlin-network/avail/common"
	"github.com/perlin-network/avail/log"
	"github.com/perlin-network/avail/store"
	"github.com/perlin-network/avail/sys"
	"github.com/perlin-network/noise"
	"github.com/perlin-network/noise/cipher"
	"github.com/perlin-network/noise/handshake"
	"github.com/perlin-network/noise/skademlia"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
)

type Options struct {
	ListenAddr     string
	DatabasePath   string
	RelayEndpoint  string
	BootstrapPeers []string
}

type Node struct {
	opts Options

	Protocol *avail.Protocol
	Metrics  *avail.Metrics

	client     *skademlia.Client
	gossiper   *Gossiper
	runtime    *RuntimeClient
	kv         store.KV
	availStore *avail.AvailabilityStore
	limiter    *rate.Limiter

	cancel context.CancelFunc
}

func New(keys *skademlia.Keypair, opts Options) (*Node, error) {
	var kv store.KV
	var err error

	if opts.DatabasePath != "" {
		kv, err = store.NewLevelDB(opts.DatabasePath)
		if err != nil {
			return nil, err
		}
	} else {
		kv = store.NewInmem()
	}

	metrics := avail.NewMetrics()
	protocol := avail.NewProtocol(keys, metrics)

	ctx, cancel := context.WithCancel(context.Background())

	client := skademlia.NewClient(
		opts.ListenAddr, keys,
		skademlia.WithC1(sys.KademliaC1),
		skademlia.WithC2(sys.KademliaC2),
	)

	client.SetCredentials(noise.NewCredentials(
		opts.ListenAddr, handshake.NewECDH(), cipher.NewAEAD(), client.Protocol(),
	))

	n := &Node{
		opts: opts,

		Protocol: protocol,
		Metrics:  metrics,

		client:     client,
		gossiper:   NewGossiper(ctx, client, metrics),
		runtime:    NewRuntimeClient(opts.RelayEndpoint),
		kv:         kv,
		availStore: avail.NewAvailabilityStore(kv),
		limiter:    rate.NewLimiter(rate.Limit(sys.ChunkRateLimit), sys.ChunkRateBurst),

		cancel: cancel,
	}

	client.OnPeerJoin(func(conn *grpc.ClientConn, id *skademlia.ID) {
		n.attach(conn)
	})

	client.OnPeerLeave(func(conn *grpc.ClientConn, id *skademlia.ID) {
		peerID := PeerIDOf(conn.Target())

		n.gossiper.unregister(peerID)
		deliver(n.Protocol, avail.EventPeerDisconnected{Peer: peerID})
	})

	return n, nil
}

// Start launches the protocol task and every collaborator, then dials the
// configured bootstrap peers.
func (n *Node) Start() error {
	logger := log.Node()

	listener, err := net.Listen("tcp", n.opts.ListenAddr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", n.opts.ListenAddr)
	}

	server := n.client.Listen()
	RegisterAvailabilityServer(server, &gossipServer{protocol: n.Protocol, limiter: n.limiter})

	go n.Protocol.Run()
	go n.availStore.Serve(n.Protocol)
	go n.gossiper.Run(n.Protocol)
	go n.runtime.Serve(n.Protocol)
	go n.trackHeads()

	go func() {
		if err := server.Serve(listener); err != nil {
			logger.Warn().Err(err).Msg("Gossip server stopped.")
		}
	}()

	for _, address := range n.opts.BootstrapPeers {
		if _, err := n.client.Dial(address); err != nil {
			logger.Warn().Err(err).Str("address", address).Msg("Failed to dial bootstrap peer.")
		}
	}

	n.client.Bootstrap()

	logger.Info().Str("address", n.opts.ListenAddr).Msg("Node started.")

	return nil
}

// Stop concludes the protocol and releases transport and storage resources.
func (n *Node) Stop() {
	n.Protocol.Stop()
	n.cancel()

	if err := n.kv.Close(); err != nil {
		log.Node().Warn().Err(err).Msg("Failed to close store.")
	}
}

// headPollInterval paces how often the relay chain is asked for its current
// heads.
const headPollInterval = 6 * time.Second

// trackHeads keeps the protocol's view in sync with the relay chain and
// announces every change to our peers.
func (n *Node) trackHeads() {
	logger := log.Node()

	ticker := time.NewTicker(headPollInterval)
	defer ticker.Stop()

	var last avail.View

	for {
		select {
		case <-n.Protocol.Done():
			return

		case <-ticker.C:
			view, err := n.runtime.Leaves()
			if err != nil {
				logger.Warn().Err(err).Msg("Failed to query relay chain heads.")
				continue
			}

			if viewsEqual(view, last) {
				continue
			}

			last = view

			if !deliver(n.Protocol, avail.EventOurViewChange{View: view}) {
				return
			}

			n.gossiper.AnnounceView(view)
		}
	}
}

func viewsEqual(a, b avail.View) bool {
	if len(a) != len(b) {
		return false
	}

	for _, h := range a {
		if !b.Contains(h) {
			return false
		}
	}

	return true
}

// attach opens the outbound gossip stream of a freshly joined peer and
// starts reading its side of the stream.
func (n *Node) attach(conn *grpc.ClientConn) {
	logger := log.Node()

	peerID := PeerIDOf(conn.Target())

	stream, err := NewAvailabilityClient(conn).Gossip(context.Background())
	if err != nil {
		logger.Warn().Err(err).Str("peer", peerID.String()).Msg("Failed to open gossip stream.")
		return
	}

	n.gossiper.register(peerID, stream)

	if !deliver(n.Protocol, avail.EventPeerConnected{Peer: peerID, Role: avail.RoleFull}) {
		return
	}

	go n.readStream(peerID, stream)
}

func (n *Node) readStream(peerID common.PeerID, stream Availability_GossipClient) {
	defer func() {
		n.gossiper.unregister(peerID)
		deliver(n.Protocol, avail.EventPeerDisconnected{Peer: peerID})
	}()

	for {
		frame, err := stream.Recv()
		if err != nil {
			return
		}

		if !processFrame(n.Protocol, n.limiter, peerID, frame) {
			return
		}
	}
}
