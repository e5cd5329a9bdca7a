package avail

import (
	"github.com/perlin-network/avail/common"
)

// ancestorsInSameSession returns up to k strict ancestors of head that share
// head's session index, ordered nearest-first.
//
// The chain API is asked for k+1 ancestors: the session of ancestor i can
// only be learned by querying the session index for the child of ancestor
// i+1. A hash whose session query fails is treated as a session boundary;
// this also excludes genesis, whose session cannot be determined this way.
func (p *Protocol) ancestorsInSameSession(head common.RelayHash, k int) ([]common.RelayHash, error) {
	ancestors, err := p.queryAncestors(head, k+1)
	if err != nil {
		return nil, err
	}

	if len(ancestors) == 0 {
		return nil, nil
	}

	desired, err := p.querySessionIndexForChild(head)
	if err != nil {
		return nil, err
	}

	result := make([]common.RelayHash, 0, k)

	for i := 1; i < len(ancestors) && len(result) < k; i++ {
		session, err := p.querySessionIndexForChild(ancestors[i])
		if err != nil {
			break
		}

		if session != desired {
			break
		}

		result = append(result, ancestors[i-1])
	}

	return result, nil
}
