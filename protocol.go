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
	"sync"

	"github.com/perlin-network/avail/common"
	"github.com/perlin-network/avail/log"
	"github.com/perlin-network/avail/sys"
	"github.com/perlin-network/noise/skademlia"
	"github.com/pkg/errors"
)

var ErrStopped = errors.New("protocol stopped")

// ObservedRole is the role a peer advertised when it connected.
type ObservedRole byte

const (
	RoleFull ObservedRole = iota
	RoleLight
	RoleAuthority
)

// Signal is an overseer signal.
type Signal interface {
	signal()
}

type SignalActiveLeaves struct {
	Activated   []common.RelayHash
	Deactivated []common.RelayHash
}

type SignalBlockFinalized struct {
	Hash common.RelayHash
}

type SignalConclude struct{}

func (SignalActiveLeaves) signal()   {}
func (SignalBlockFinalized) signal() {}
func (SignalConclude) signal()       {}

// NetworkEvent is an event forwarded by the network bridge.
type NetworkEvent interface {
	networkEvent()
}

type EventPeerConnected struct {
	Peer common.PeerID
	Role ObservedRole
}

type EventPeerDisconnected struct {
	Peer common.PeerID
}

type EventPeerViewChange struct {
	Peer common.PeerID
	View View
}

type EventOurViewChange struct {
	View View
}

type EventPeerMessage struct {
	Peer    common.PeerID
	Message AvailabilityGossipMessage
}

func (EventPeerConnected) networkEvent()    {}
func (EventPeerDisconnected) networkEvent() {}
func (EventPeerViewChange) networkEvent()   {}
func (EventOurViewChange) networkEvent()    {}
func (EventPeerMessage) networkEvent()      {}

// Request events issued to external collaborators. Every request carries
// disposable reply channels; the protocol task suspends on them until the
// collaborator answers.

type EventValidators struct {
	Relay common.RelayHash

	Result chan []common.ValidatorID
	Error  chan error
}

type EventSessionIndexForChild struct {
	Relay common.RelayHash

	Result chan common.SessionIndex
	Error  chan error
}

type EventAvailabilityCores struct {
	Relay common.RelayHash

	Result chan []CoreState
	Error  chan error
}

type EventCandidatePendingAvailability struct {
	Relay common.RelayHash
	Para  common.ParaID

	Result chan *CommittedCandidateReceipt
	Error  chan error
}

type EventAncestors struct {
	Hash common.RelayHash
	K    int

	Result chan []common.RelayHash
	Error  chan error
}

type EventQueryDataAvailability struct {
	Candidate common.CandidateHash

	Result chan bool
	Error  chan error
}

type EventQueryChunk struct {
	Candidate common.CandidateHash
	Index     common.ValidatorIndex

	Result chan *ErasureChunk
	Error  chan error
}

type EventStoreChunk struct {
	Candidate common.CandidateHash
	Relay     common.RelayHash
	Chunk     ErasureChunk

	Result chan error
}

// EventGossip directs a single validation protocol message to a set of
// peers.
type EventGossip struct {
	Peers   []common.PeerID
	Message AvailabilityGossipMessage
}

// EventReportPeer adjusts a peer's reputation.
type EventReportPeer struct {
	Peer       common.PeerID
	Reputation sys.Reputation
}

// EventStatus requests a read-only snapshot of protocol state.
type EventStatus struct {
	Result chan Status
}

// Protocol is the availability-distribution state machine. A single task
// started with Run owns all of ProtocolState; collaborators interact with it
// exclusively through the channel pairs below.
type Protocol struct {
	keys    *skademlia.Keypair
	metrics *Metrics
	state   *ProtocolState

	SignalIn chan<- Signal
	signalIn <-chan Signal

	NetworkIn chan<- NetworkEvent
	networkIn <-chan NetworkEvent

	StatusIn chan<- EventStatus
	statusIn <-chan EventStatus

	ValidatorsOut <-chan EventValidators
	validatorsOut chan<- EventValidators

	SessionIndexOut <-chan EventSessionIndexForChild
	sessionIndexOut chan<- EventSessionIndexForChild

	AvailabilityCoresOut <-chan EventAvailabilityCores
	availabilityCoresOut chan<- EventAvailabilityCores

	PendingAvailabilityOut <-chan EventCandidatePendingAvailability
	pendingAvailabilityOut chan<- EventCandidatePendingAvailability

	AncestorsOut <-chan EventAncestors
	ancestorsOut chan<- EventAncestors

	QueryDataAvailabilityOut <-chan EventQueryDataAvailability
	queryDataAvailabilityOut chan<- EventQueryDataAvailability

	QueryChunkOut <-chan EventQueryChunk
	queryChunkOut chan<- EventQueryChunk

	StoreChunkOut <-chan EventStoreChunk
	storeChunkOut chan<- EventStoreChunk

	GossipOut <-chan EventGossip
	gossipOut chan<- EventGossip

	ReportPeerOut <-chan EventReportPeer
	reportPeerOut chan<- EventReportPeer

	Feed <-chan AvailabilityGossipMessage
	feed chan<- AvailabilityGossipMessage

	kill     chan struct{}
	killOnce sync.Once
}

func NewProtocol(keys *skademlia.Keypair, metrics *Metrics) *Protocol {
	signalIn := make(chan Signal, sys.SignalQueueCap)
	networkIn := make(chan NetworkEvent, sys.NetworkQueueCap)
	statusIn := make(chan EventStatus, 1)

	validatorsOut := make(chan EventValidators, sys.RequestQueueCap)
	sessionIndexOut := make(chan EventSessionIndexForChild, sys.RequestQueueCap)
	availabilityCoresOut := make(chan EventAvailabilityCores, sys.RequestQueueCap)
	pendingAvailabilityOut := make(chan EventCandidatePendingAvailability, sys.RequestQueueCap)
	ancestorsOut := make(chan EventAncestors, sys.RequestQueueCap)
	queryDataAvailabilityOut := make(chan EventQueryDataAvailability, sys.RequestQueueCap)
	queryChunkOut := make(chan EventQueryChunk, sys.RequestQueueCap)
	storeChunkOut := make(chan EventStoreChunk, sys.RequestQueueCap)
	gossipOut := make(chan EventGossip, sys.GossipQueueCap)
	reportPeerOut := make(chan EventReportPeer, sys.GossipQueueCap)
	feed := make(chan AvailabilityGossipMessage, sys.FeedQueueCap)

	return &Protocol{
		keys:    keys,
		metrics: metrics,
		state:   NewProtocolState(),

		SignalIn: signalIn,
		signalIn: signalIn,

		NetworkIn: networkIn,
		networkIn: networkIn,

		StatusIn: statusIn,
		statusIn: statusIn,

		ValidatorsOut: validatorsOut,
		validatorsOut: validatorsOut,

		SessionIndexOut: sessionIndexOut,
		sessionIndexOut: sessionIndexOut,

		AvailabilityCoresOut: availabilityCoresOut,
		availabilityCoresOut: availabilityCoresOut,

		PendingAvailabilityOut: pendingAvailabilityOut,
		pendingAvailabilityOut: pendingAvailabilityOut,

		AncestorsOut: ancestorsOut,
		ancestorsOut: ancestorsOut,

		QueryDataAvailabilityOut: queryDataAvailabilityOut,
		queryDataAvailabilityOut: queryDataAvailabilityOut,

		QueryChunkOut: queryChunkOut,
		queryChunkOut: queryChunkOut,

		StoreChunkOut: storeChunkOut,
		storeChunkOut: storeChunkOut,

		GossipOut: gossipOut,
		gossipOut: gossipOut,

		ReportPeerOut: reportPeerOut,
		reportPeerOut: reportPeerOut,

		Feed: feed,
		feed: feed,

		kill: make(chan struct{}),
	}
}

// WithState replaces the protocol's state. Meant for restoring a snapshot
// before Run is started.
func (p *Protocol) WithState(state *ProtocolState) *Protocol {
	p.state = state
	return p
}

// State exposes the protocol state for inspection. Only safe once Run has
// returned, or before it ever started.
func (p *Protocol) State() *ProtocolState {
	return p.state
}

// Done is closed once the protocol has been stopped or concluded.
func (p *Protocol) Done() <-chan struct{} {
	return p.kill
}

// Stop terminates Run and unblocks any suspended request.
func (p *Protocol) Stop() {
	p.killOnce.Do(func() {
		close(p.kill)
	})
}

// Run processes overseer signals and network events to completion, one at a
// time, until a Conclude signal or Stop. It is the only goroutine that may
// touch ProtocolState.
func (p *Protocol) Run() {
	logger := log.Avail("protocol")

	for {
		select {
		case <-p.kill:
			return

		case signal := <-p.signalIn:
			switch s := signal.(type) {
			case SignalActiveLeaves:
				view := make(View, 0, len(p.state.View)+len(s.Activated))

				for _, h := range p.state.View {
					deactivated := false
					for _, d := range s.Deactivated {
						if h == d {
							deactivated = true
							break
						}
					}

					if !deactivated {
						view = append(view, h)
					}
				}

				for _, h := range s.Activated {
					if !view.Contains(h) {
						view = append(view, h)
					}
				}

				p.handleOurViewChange(view)
			case SignalBlockFinalized:
				// Finality does not change the availability horizon.
			case SignalConclude:
				logger.Info().Msg("Concluding.")
				p.Stop()
				return
			}

		case event := <-p.networkIn:
			switch e := event.(type) {
			case EventPeerConnected:
				p.handlePeerConnected(e.Peer, e.Role)
			case EventPeerDisconnected:
				p.handlePeerDisconnected(e.Peer)
			case EventPeerViewChange:
				p.handlePeerViewChange(e.Peer, e.View)
			case EventOurViewChange:
				p.handleOurViewChange(e.View)
			case EventPeerMessage:
				p.handlePeerMessage(e.Peer, e.Message)
			}

		case status := <-p.statusIn:
			status.Result <- p.status()
		}
	}
}

// localValidatorIndex resolves our own index within a session validator set
// by matching our public key. A nil result means we are not a validator for
// that session.
func (p *Protocol) localValidatorIndex(validators []common.ValidatorID) *common.ValidatorIndex {
	if p.keys == nil {
		return nil
	}

	var id common.ValidatorID

	publicKey := p.keys.PublicKey()
	copy(id[:], publicKey[:])

	for i, validator := range validators {
		if validator == id {
			index := common.ValidatorIndex(i)
			return &index
		}
	}

	return nil
}

func (p *Protocol) queryValidators(relay common.RelayHash) ([]common.ValidatorID, error) {
	evt := EventValidators{
		Relay:  relay,
		Result: make(chan []common.ValidatorID, 1),
		Error:  make(chan error, 1),
	}

	select {
	case p.validatorsOut <- evt:
	case <-p.kill:
		return nil, ErrStopped
	}

	select {
	case validators := <-evt.Result:
		return validators, nil
	case err := <-evt.Error:
		return nil, err
	case <-p.kill:
		return nil, ErrStopped
	}
}

func (p *Protocol) querySessionIndexForChild(relay common.RelayHash) (common.SessionIndex, error) {
	evt := EventSessionIndexForChild{
		Relay:  relay,
		Result: make(chan common.SessionIndex, 1),
		Error:  make(chan error, 1),
	}

	select {
	case p.sessionIndexOut <- evt:
	case <-p.kill:
		return 0, ErrStopped
	}

	select {
	case session := <-evt.Result:
		return session, nil
	case err := <-evt.Error:
		return 0, err
	case <-p.kill:
		return 0, ErrStopped
	}
}

func (p *Protocol) queryAvailabilityCores(relay common.RelayHash) ([]CoreState, error) {
	evt := EventAvailabilityCores{
		Relay:  relay,
		Result: make(chan []CoreState, 1),
		Error:  make(chan error, 1),
	}

	select {
	case p.availabilityCoresOut <- evt:
	case <-p.kill:
		return nil, ErrStopped
	}

	select {
	case cores := <-evt.Result:
		return cores, nil
	case err := <-evt.Error:
		return nil, err
	case <-p.kill:
		return nil, ErrStopped
	}
}

func (p *Protocol) queryCandidatePendingAvailability(relay common.RelayHash, para common.ParaID) (*CommittedCandidateReceipt, error) {
	evt := EventCandidatePendingAvailability{
		Relay:  relay,
		Para:   para,
		Result: make(chan *CommittedCandidateReceipt, 1),
		Error:  make(chan error, 1),
	}

	select {
	case p.pendingAvailabilityOut <- evt:
	case <-p.kill:
		return nil, ErrStopped
	}

	select {
	case receipt := <-evt.Result:
		return receipt, nil
	case err := <-evt.Error:
		return nil, err
	case <-p.kill:
		return nil, ErrStopped
	}
}

func (p *Protocol) queryAncestors(hash common.RelayHash, k int) ([]common.RelayHash, error) {
	evt := EventAncestors{
		Hash:   hash,
		K:      k,
		Result: make(chan []common.RelayHash, 1),
		Error:  make(chan error, 1),
	}

	select {
	case p.ancestorsOut <- evt:
	case <-p.kill:
		return nil, ErrStopped
	}

	select {
	case ancestors := <-evt.Result:
		return ancestors, nil
	case err := <-evt.Error:
		return nil, err
	case <-p.kill:
		return nil, ErrStopped
	}
}

func (p *Protocol) queryDataAvailability(candidate common.CandidateHash) (bool, error) {
	evt := EventQueryDataAvailability{
		Candidate: candidate,
		Result:    make(chan bool, 1),
		Error:     make(chan error, 1),
	}

	select {
	case p.queryDataAvailabilityOut <- evt:
	case <-p.kill:
		return false, ErrStopped
	}

	select {
	case available := <-evt.Result:
		return available, nil
	case err := <-evt.Error:
		return false, err
	case <-p.kill:
		return false, ErrStopped
	}
}

func (p *Protocol) queryChunk(candidate common.CandidateHash, index common.ValidatorIndex) (*ErasureChunk, error) {
	evt := EventQueryChunk{
		Candidate: candidate,
		Index:     index,
		Result:    make(chan *ErasureChunk, 1),
		Error:     make(chan error, 1),
	}

	select {
	case p.queryChunkOut <- evt:
	case <-p.kill:
		return nil, ErrStopped
	}

	select {
	case chunk := <-evt.Result:
		return chunk, nil
	case err := <-evt.Error:
		return nil, err
	case <-p.kill:
		return nil, ErrStopped
	}
}

func (p *Protocol) storeChunk(candidate common.CandidateHash, relay common.RelayHash, chunk ErasureChunk) error {
	evt := EventStoreChunk{
		Candidate: candidate,
		Relay:     relay,
		Chunk:     chunk,
		Result:    make(chan error, 1),
	}

	select {
	case p.storeChunkOut <- evt:
	case <-p.kill:
		return ErrStopped
	}

	select {
	case err := <-evt.Result:
		return err
	case <-p.kill:
		return ErrStopped
	}
}

func (p *Protocol) sendGossip(peers []common.PeerID, message AvailabilityGossipMessage) {
	if len(peers) == 0 {
		return
	}

	select {
	case p.gossipOut <- EventGossip{Peers: peers, Message: message}:
	case <-p.kill:
		return
	}

	if p.metrics != nil {
		p.metrics.gossipedChunks.Mark(int64(len(peers)))
	}
}

func (p *Protocol) reportPeer(peer common.PeerID, reputation sys.Reputation) {
	select {
	case p.reportPeerOut <- EventReportPeer{Peer: peer, Reputation: reputation}:
	case <-p.kill:
		return
	}

	if p.metrics != nil {
		p.metrics.reports.Mark(1)
	}
}

// publishToFeed mirrors an accepted chunk onto the observer feed. Slow
// observers miss messages rather than stall the protocol.
func (p *Protocol) publishToFeed(message AvailabilityGossipMessage) {
	select {
	case p.feed <- message:
	default:
	}
}
