package sys

// Reputation is an additive peer score delta. Benefits are positive,
// costs negative.
type Reputation int32

const (
	// K bounds how many in-session ancestors of a relay head are considered
	// when building the live-candidate horizon.
	K = 3

	BenefitValidMessageFirst Reputation = 15
	BenefitValidMessage      Reputation = 10

	CostPeerDuplicateMessage Reputation = -50
	CostNotALiveCandidate    Reputation = -51
	CostMessageNotInView     Reputation = -52
	CostWrongValidatorIndex  Reputation = -53
	CostMerkleProofInvalid   Reputation = -100

	// CostGraylist is the accumulated score below which the transport drops
	// a peer's streams.
	CostGraylist Reputation = -500
)

const (
	// S/Kademlia proof-of-work difficulty parameters for node identities.
	KademliaC1 = 1
	KademliaC2 = 1

	// ChunkRateLimit bounds how many inbound chunk messages per second the
	// transport admits per node; ChunkRateBurst is the burst allowance.
	ChunkRateLimit = 256
	ChunkRateBurst = 1024
)

const (
	SignalQueueCap  = 16
	NetworkQueueCap = 128
	RequestQueueCap = 16
	GossipQueueCap  = 128
	FeedQueueCap    = 128
)
