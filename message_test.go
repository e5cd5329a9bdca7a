package avail

import (
	"testing"

	"github.com/perlin-network/avail/common"
	"github.com/stretchr/testify/assert"
)

func TestChunkMessageRoundTrip(t *testing.T) {
	original := AvailabilityGossipMessage{
		CandidateHash: candidateHashOf(0x42),
		ErasureChunk: ErasureChunk{
			Chunk: []byte("lorem ipsum"),
			Index: 3,
			Proof: [][]byte{
				make([]byte, common.SizeHash),
				append(make([]byte, common.SizeHash-1), 0xFF),
			},
		},
	}

	decoded, err := UnmarshalChunkMessage(original.Marshal())
	assert.NoError(t, err)
	assert.True(t, original.Equal(decoded))
}

func TestChunkMessageRejectsUnknownTag(t *testing.T) {
	msg := AvailabilityGossipMessage{CandidateHash: candidateHashOf(1)}

	buf := msg.Marshal()
	buf[0] = 0x7F

	_, err := UnmarshalChunkMessage(buf)
	assert.Error(t, err)
}

func TestChunkMessageRejectsTruncation(t *testing.T) {
	msg := AvailabilityGossipMessage{
		CandidateHash: candidateHashOf(2),
		ErasureChunk: ErasureChunk{
			Chunk: []byte{1, 2, 3},
			Index: 1,
			Proof: [][]byte{{0xAB}},
		},
	}

	buf := msg.Marshal()

	for _, cut := range []int{1, 5, len(buf) / 2, len(buf) - 1} {
		_, err := UnmarshalChunkMessage(buf[:cut])
		assert.Error(t, err)
	}
}

func TestReceiptHashCommitsToDescriptor(t *testing.T) {
	receipt := CommittedCandidateReceipt{
		Descriptor: CandidateDescriptor{
			ParaID:      7,
			RelayParent: relayHash(0x05),
		},
		Commitments: CandidateCommitments{HeadData: []byte{1, 2, 3}},
	}

	other := receipt
	other.Descriptor.ParaID = 8

	assert.NotEqual(t, receipt.Hash(), other.Hash())

	same := receipt
	assert.Equal(t, receipt.Hash(), same.Hash())
}
