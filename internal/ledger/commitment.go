package ledger

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/Klingon-tech/klingnet-nft/pkg/crypto"
	"github.com/Klingon-tech/klingnet-nft/pkg/types"
)

// Commitment computes a merkle root over all token records. Each record is
// hashed deterministically, the hashes are sorted and a merkle tree is built
// from them. Returns a zero hash for an empty ledger.
func (l *Ledger) Commitment() (types.Hash, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var hashes []types.Hash
	err := l.records.ForEach(func(rec *TokenRecord) error {
		hashes = append(hashes, hashRecord(rec))
		return nil
	})
	if err != nil {
		return types.Hash{}, fmt.Errorf("ledger commitment: %w", err)
	}
	if len(hashes) == 0 {
		return types.Hash{}, nil
	}

	sort.Slice(hashes, func(i, j int) bool {
		return hashes[i].Less(hashes[j])
	})
	return crypto.MerkleRoot(hashes), nil
}

// hashRecord produces a BLAKE3 hash of the ownership-relevant fields.
func hashRecord(rec *TokenRecord) types.Hash {
	return crypto.Hash(encodeRecord(rec))
}

// encodeRecord lays out the hashed fields.
// Format: len(id)(uvarint) | id | owner(33) | operator(33) | burned(1) | status(4)
// where each account is a presence byte followed by 32 bytes.
func encodeRecord(rec *TokenRecord) []byte {
	var buf []byte
	buf = binary.AppendUvarint(buf, uint64(len(rec.ID)))
	buf = append(buf, rec.ID...)
	buf = appendAccount(buf, rec.Owner)
	buf = appendAccount(buf, rec.Operator)
	if rec.IsBurned {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return binary.BigEndian.AppendUint32(buf, rec.Status)
}

func appendAccount(buf []byte, a *types.AccountID) []byte {
	if a == nil {
		return append(buf, make([]byte, 1+types.AccountIDSize)...)
	}
	buf = append(buf, 1)
	return append(buf, a[:]...)
}
