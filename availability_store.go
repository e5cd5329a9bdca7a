package avail

import (
	"encoding/binary"

	"github.com/perlin-network/avail/common"
	"github.com/perlin-network/avail/log"
	"github.com/perlin-network/avail/store"
	"github.com/perlin-network/noise/payload"
	"github.com/pkg/errors"
)

var (
	keyChunk     = [...]byte{0x1}
	keyAvailable = [...]byte{0x2}
)

// AvailabilityStore persists erasure chunks per candidate and answers the
// protocol's availability-store requests.
type AvailabilityStore struct {
	kv store.KV
}

func NewAvailabilityStore(kv store.KV) *AvailabilityStore {
	return &AvailabilityStore{kv: kv}
}

// HasData reports whether any availability data is recorded for the
// candidate.
func (s *AvailabilityStore) HasData(candidate common.CandidateHash) (bool, error) {
	return s.kv.Has(merge(keyAvailable[:], candidate[:]))
}

// Chunk loads a stored erasure chunk; a nil chunk means none is stored at
// that index.
func (s *AvailabilityStore) Chunk(candidate common.CandidateHash, index common.ValidatorIndex) (*ErasureChunk, error) {
	buf, err := s.kv.Get(chunkKey(candidate, index))
	if errors.Cause(err) == store.ErrNotFound {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return unmarshalChunk(buf)
}

// StoreChunk persists a chunk and marks the candidate as having availability
// data.
func (s *AvailabilityStore) StoreChunk(candidate common.CandidateHash, relay common.RelayHash, chunk ErasureChunk) error {
	if err := s.kv.Put(chunkKey(candidate, chunk.Index), marshalChunk(chunk)); err != nil {
		return errors.Wrap(err, "failed to persist erasure chunk")
	}

	return s.kv.Put(merge(keyAvailable[:], candidate[:]), relay[:])
}

// Serve answers a protocol's availability-store requests until the protocol
// stops. Meant to be run on its own goroutine.
func (s *AvailabilityStore) Serve(p *Protocol) {
	logger := log.Store()

	for {
		select {
		case <-p.kill:
			return

		case evt := <-p.QueryDataAvailabilityOut:
			has, err := s.HasData(evt.Candidate)
			if err != nil {
				evt.Error <- err
				continue
			}

			evt.Result <- has

		case evt := <-p.QueryChunkOut:
			chunk, err := s.Chunk(evt.Candidate, evt.Index)
			if err != nil {
				evt.Error <- err
				continue
			}

			evt.Result <- chunk

		case evt := <-p.StoreChunkOut:
			err := s.StoreChunk(evt.Candidate, evt.Relay, evt.Chunk)
			if err != nil {
				logger.Error().Err(err).
					Str("candidate", evt.Candidate.String()).
					Msg("Failed to store chunk.")
			}

			evt.Result <- err
		}
	}
}

func chunkKey(candidate common.CandidateHash, index common.ValidatorIndex) []byte {
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], uint32(index))

	return merge(keyChunk[:], candidate[:], idx[:])
}

func marshalChunk(chunk ErasureChunk) []byte {
	w := payload.NewWriter(nil)

	w.WriteUint32(uint32(chunk.Index))
	w.WriteBytes(chunk.Chunk)
	w.WriteUint32(uint32(len(chunk.Proof)))

	for _, node := range chunk.Proof {
		w.WriteBytes(node)
	}

	return w.Bytes()
}

func unmarshalChunk(buf []byte) (*ErasureChunk, error) {
	r := payload.NewReader(buf)

	index, err := r.ReadUint32()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read chunk index")
	}

	body, err := r.ReadBytes()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read chunk body")
	}

	count, err := r.ReadUint32()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read proof length")
	}

	chunk := &ErasureChunk{Chunk: body, Index: common.ValidatorIndex(index)}

	for i := uint32(0); i < count; i++ {
		node, err := r.ReadBytes()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read proof node %d", i)
		}

		chunk.Proof = append(chunk.Proof, node)
	}

	return chunk, nil
}

func merge(parts ...[]byte) []byte {
	var size int
	for _, part := range parts {
		size += len(part)
	}

	out := make([]byte, 0, size)
	for _, part := range parts {
		out = append(out, part...)
	}

	return out
}
