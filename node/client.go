package node

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/perlin-network/avail"
	"github.com/perlin-network/avail/common"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fastjson"
)

// RuntimeClient answers the protocol's runtime and chain API requests by
// querying a relay-chain node over JSON-RPC.
type RuntimeClient struct {
	endpoint string
	client   *fasthttp.Client
	parser   fastjson.Parser
}

func NewRuntimeClient(endpoint string) *RuntimeClient {
	return &RuntimeClient{
		endpoint: endpoint,
		client: &fasthttp.Client{
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Serve answers a protocol's runtime and chain requests until the protocol
// stops. Meant to be run on its own goroutine.
func (c *RuntimeClient) Serve(p *avail.Protocol) {
	for {
		select {
		case <-p.Done():
			return

		case evt := <-p.ValidatorsOut:
			validators, err := c.validators(evt.Relay)
			if err != nil {
				evt.Error <- err
				continue
			}

			evt.Result <- validators

		case evt := <-p.SessionIndexOut:
			session, err := c.sessionIndexForChild(evt.Relay)
			if err != nil {
				evt.Error <- err
				continue
			}

			evt.Result <- session

		case evt := <-p.AvailabilityCoresOut:
			cores, err := c.availabilityCores(evt.Relay)
			if err != nil {
				evt.Error <- err
				continue
			}

			evt.Result <- cores

		case evt := <-p.PendingAvailabilityOut:
			receipt, err := c.candidatePendingAvailability(evt.Relay, evt.Para)
			if err != nil {
				evt.Error <- err
				continue
			}

			evt.Result <- receipt

		case evt := <-p.AncestorsOut:
			ancestors, err := c.ancestors(evt.Hash, evt.K)
			if err != nil {
				evt.Error <- err
				continue
			}

			evt.Result <- ancestors
		}
	}
}

// Leaves returns the current relay-chain heads, forming the node's view.
func (c *RuntimeClient) Leaves() (avail.View, error) {
	result, err := c.call("chain_leaves", `[]`)
	if err != nil {
		return nil, err
	}

	items, err := result.Array()
	if err != nil {
		return nil, errors.Wrap(err, "leaves reply is not an array")
	}

	view := make(avail.View, 0, len(items))

	for _, item := range items {
		var head common.RelayHash

		if err := decodeHash(item, head[:]); err != nil {
			return nil, err
		}

		if !view.Contains(head) {
			view = append(view, head)
		}
	}

	return view, nil
}

func (c *RuntimeClient) validators(relay common.RelayHash) ([]common.ValidatorID, error) {
	result, err := c.call("runtime_validators", fmt.Sprintf(`["%s"]`, relay))
	if err != nil {
		return nil, err
	}

	items, err := result.Array()
	if err != nil {
		return nil, errors.Wrap(err, "validators reply is not an array")
	}

	validators := make([]common.ValidatorID, 0, len(items))

	for _, item := range items {
		var id common.ValidatorID

		if err := decodeHash(item, id[:]); err != nil {
			return nil, err
		}

		validators = append(validators, id)
	}

	return validators, nil
}

func (c *RuntimeClient) sessionIndexForChild(relay common.RelayHash) (common.SessionIndex, error) {
	result, err := c.call("runtime_sessionIndexForChild", fmt.Sprintf(`["%s"]`, relay))
	if err != nil {
		return 0, err
	}

	session, err := result.Uint()
	if err != nil {
		return 0, errors.Wrap(err, "session index reply is not an integer")
	}

	return common.SessionIndex(session), nil
}

func (c *RuntimeClient) availabilityCores(relay common.RelayHash) ([]avail.CoreState, error) {
	result, err := c.call("runtime_availabilityCores", fmt.Sprintf(`["%s"]`, relay))
	if err != nil {
		return nil, err
	}

	items, err := result.Array()
	if err != nil {
		return nil, errors.Wrap(err, "availability cores reply is not an array")
	}

	cores := make([]avail.CoreState, 0, len(items))

	for _, item := range items {
		para := common.ParaID(item.GetUint("para_id"))

		switch string(item.GetStringBytes("state")) {
		case "occupied":
			cores = append(cores, avail.OccupiedCore{ParaID: para})
		case "scheduled":
			cores = append(cores, avail.ScheduledCore{ParaID: para})
		default:
			cores = append(cores, avail.FreeCore{})
		}
	}

	return cores, nil
}

func (c *RuntimeClient) candidatePendingAvailability(relay common.RelayHash, para common.ParaID) (*avail.CommittedCandidateReceipt, error) {
	result, err := c.call("runtime_candidatePendingAvailability", fmt.Sprintf(`["%s", %d]`, relay, para))
	if err != nil {
		return nil, err
	}

	if result.Type() == fastjson.TypeNull {
		return nil, nil
	}

	receipt := &avail.CommittedCandidateReceipt{
		Descriptor: avail.CandidateDescriptor{
			ParaID: common.ParaID(result.GetUint("para_id")),
		},
	}

	if err := decodeHash(result.Get("relay_parent"), receipt.Descriptor.RelayParent[:]); err != nil {
		return nil, err
	}

	if err := decodeHash(result.Get("pov_hash"), receipt.Descriptor.PovHash[:]); err != nil {
		return nil, err
	}

	if err := decodeHash(result.Get("erasure_root"), receipt.Descriptor.ErasureRoot[:]); err != nil {
		return nil, err
	}

	if head := result.GetStringBytes("head_data"); len(head) > 0 {
		data, err := hex.DecodeString(string(head))
		if err != nil {
			return nil, errors.Wrap(err, "head data is not hex")
		}

		receipt.Commitments.HeadData = data
	}

	return receipt, nil
}

func (c *RuntimeClient) ancestors(hash common.RelayHash, k int) ([]common.RelayHash, error) {
	result, err := c.call("chain_ancestors", fmt.Sprintf(`["%s", %d]`, hash, k))
	if err != nil {
		return nil, err
	}

	items, err := result.Array()
	if err != nil {
		return nil, errors.Wrap(err, "ancestors reply is not an array")
	}

	ancestors := make([]common.RelayHash, 0, len(items))

	for _, item := range items {
		var ancestor common.RelayHash

		if err := decodeHash(item, ancestor[:]); err != nil {
			return nil, err
		}

		ancestors = append(ancestors, ancestor)
	}

	return ancestors, nil
}

func (c *RuntimeClient) call(method, params string) (*fastjson.Value, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()

	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.endpoint)
	req.Header.SetMethod("POST")
	req.Header.SetContentType("application/json")
	req.SetBodyString(fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"%s","params":%s}`, method, params))

	if err := c.client.Do(req, resp); err != nil {
		return nil, errors.Wrapf(err, "%s request failed", method)
	}

	body, err := c.parser.ParseBytes(resp.Body())
	if err != nil {
		return nil, errors.Wrapf(err, "%s reply is not valid JSON", method)
	}

	if rpcErr := body.Get("error"); rpcErr != nil {
		return nil, errors.Errorf("%s failed: %s", method, rpcErr.String())
	}

	return body.Get("result"), nil
}

func decodeHash(value *fastjson.Value, out []byte) error {
	if value == nil {
		return errors.New("missing hash field")
	}

	raw, err := value.StringBytes()
	if err != nil {
		return errors.Wrap(err, "hash is not a string")
	}

	data, err := hex.DecodeString(string(raw))
	if err != nil {
		return errors.Wrap(err, "hash is not hex")
	}

	if len(data) != len(out) {
		return errors.Errorf("hash must be %d bytes", len(out))
	}

	copy(out, data)
	return nil
}
