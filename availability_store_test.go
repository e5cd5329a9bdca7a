package avail

import (
	"testing"

	"github.com/perlin-network/avail/common"
	"github.com/perlin-network/avail/store"
	"github.com/stretchr/testify/assert"
)

func TestAvailabilityStoreRoundTrip(t *testing.T) {
	s := NewAvailabilityStore(store.NewInmem())

	candidate := candidateHashOf(0x1A)
	relay := relayHash(0x05)

	has, err := s.HasData(candidate)
	assert.NoError(t, err)
	assert.False(t, has)

	chunk, err := s.Chunk(candidate, 2)
	assert.NoError(t, err)
	assert.Nil(t, chunk)

	original := ErasureChunk{
		Chunk: []byte("chunk body"),
		Index: 2,
		Proof: [][]byte{make([]byte, common.SizeHash)},
	}

	assert.NoError(t, s.StoreChunk(candidate, relay, original))

	has, err = s.HasData(candidate)
	assert.NoError(t, err)
	assert.True(t, has)

	chunk, err = s.Chunk(candidate, 2)
	assert.NoError(t, err)
	assert.NotNil(t, chunk)
	assert.True(t, original.Equal(chunk))

	// Other indices of the same candidate stay empty.
	chunk, err = s.Chunk(candidate, 3)
	assert.NoError(t, err)
	assert.Nil(t, chunk)
}

func TestAvailabilityStoreServesProtocol(t *testing.T) {
	s := NewAvailabilityStore(store.NewInmem())

	p := NewProtocol(nil, nil)
	go s.Serve(p)
	defer p.Stop()

	candidate := candidateHashOf(0x2B)
	relay := relayHash(0x44)

	chunk := ErasureChunk{Chunk: []byte{9, 9, 9}, Index: 1}

	assert.NoError(t, p.storeChunk(candidate, relay, chunk))

	has, err := p.queryDataAvailability(candidate)
	assert.NoError(t, err)
	assert.True(t, has)

	loaded, err := p.queryChunk(candidate, 1)
	assert.NoError(t, err)
	assert.NotNil(t, loaded)
	assert.True(t, chunk.Equal(loaded))

	missing, err := p.queryChunk(candidate, 0)
	assert.NoError(t, err)
	assert.Nil(t, missing)
}
