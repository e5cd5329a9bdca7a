package avail

import (
	"github.com/perlin-network/avail/common"
)

// Status is a read-only snapshot of protocol state, served on the protocol
// task for observers such as the HTTP API.
type Status struct {
	View         []common.RelayHash
	RelayParents int
	Peers        int
	Candidates   []CandidateStatus
}

type CandidateStatus struct {
	Hash       common.CandidateHash
	Para       common.ParaID
	LiveIn     int
	ChunksHeld int
	Validators int
}

func (p *Protocol) status() Status {
	status := Status{
		View:         append([]common.RelayHash(nil), p.state.View...),
		RelayParents: len(p.state.PerRelayParent),
		Peers:        len(p.state.PeerViews),
	}

	for candidateHash, candidate := range p.state.PerCandidate {
		status.Candidates = append(status.Candidates, CandidateStatus{
			Hash:       candidateHash,
			Para:       candidate.Descriptor.ParaID,
			LiveIn:     len(candidate.LiveIn),
			ChunksHeld: len(candidate.MessageVault),
			Validators: len(candidate.Validators),
		})
	}

	return status
}

// QueryStatus requests a snapshot from a running protocol.
func QueryStatus(p *Protocol) (Status, error) {
	evt := EventStatus{Result: make(chan Status, 1)}

	select {
	case p.StatusIn <- evt:
	case <-p.kill:
		return Status{}, ErrStopped
	}

	select {
	case status := <-evt.Result:
		return status, nil
	case <-p.kill:
		return Status{}, ErrStopped
	}
}
