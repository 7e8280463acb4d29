package engine

import (
	"bytes"
	"encoding/binary"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Snapshot is a consistent view of every pool at one ledger sequence.
type Snapshot struct {
	Sequence  uint64      `json:"sequence"`
	Timestamp uint64      `json:"timestamp"` // unix millis
	Hash      common.Hash `json:"hash"`
	Pools     []Pool      `json:"pools"`
}

// poolEncodingSize is the byte length of one pool in the canonical encoding.
const poolEncodingSize = 32*3 + 8*4 + 1 + 1

// NewSnapshot sorts pools by ID and seals them with their hash.
// The pools slice is copied.
func NewSnapshot(sequence, timestamp uint64, pools []Pool) Snapshot {
	sorted := make([]Pool, len(pools))
	copy(sorted, pools)
	SortPools(sorted)
	return Snapshot{
		Sequence:  sequence,
		Timestamp: timestamp,
		Hash:      HashPools(sequence, sorted),
		Pools:     sorted,
	}
}

// SortPools orders pools by ID bytes in place.
func SortPools(pools []Pool) {
	slices.SortFunc(pools, func(a, b Pool) int {
		return bytes.Compare(a.ID[:], b.ID[:])
	})
}

// HashPools returns keccak256 over the sequence and the canonical encoding of
// pools, which must already be sorted by ID.
func HashPools(sequence uint64, pools []Pool) common.Hash {
	buf := make([]byte, 0, 8+len(pools)*poolEncodingSize)
	buf = binary.BigEndian.AppendUint64(buf, sequence)
	for i := range pools {
		buf = appendPool(buf, &pools[i])
	}
	return crypto.Keccak256Hash(buf)
}

func appendPool(buf []byte, p *Pool) []byte {
	buf = append(buf, p.ID[:]...)
	buf = append(buf, p.TokenA[:]...)
	buf = append(buf, p.TokenB[:]...)
	buf = binary.BigEndian.AppendUint64(buf, p.ReserveA)
	buf = binary.BigEndian.AppendUint64(buf, p.ReserveB)
	buf = binary.BigEndian.AppendUint64(buf, p.LPSupply)
	buf = binary.BigEndian.AppendUint64(buf, p.FeeBps)
	buf = append(buf, byte(p.Strategy), p.Bump)
	return buf
}

// Verify recomputes the hash of s and reports whether it matches.
func (s Snapshot) Verify() bool {
	return HashPools(s.Sequence, s.Pools) == s.Hash
}
