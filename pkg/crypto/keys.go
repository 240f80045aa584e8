package crypto

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/Klingon-tech/klingnet-nft/pkg/types"
)

// PrivateKey wraps a secp256k1 private key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes creates a PrivateKey from a 32-byte secret.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(b)}, nil
}

// PublicKey returns the compressed 33-byte public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeCompressed()
}

// Serialize returns the 32-byte secret.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Principal returns the self-authenticating principal of this key.
func (pk *PrivateKey) Principal() types.Principal {
	return types.SelfAuthenticatingPrincipal(pk.PublicKey())
}

// Zero securely zeroes the private key memory.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// PrincipalFromPubKey derives the self-authenticating principal of a
// serialized secp256k1 public key. Compressed and uncompressed encodings
// of the same key yield the same principal.
func PrincipalFromPubKey(pubKey []byte) (types.Principal, error) {
	key, err := secp256k1.ParsePubKey(pubKey)
	if err != nil {
		return "", fmt.Errorf("parse public key: %w", err)
	}
	return types.SelfAuthenticatingPrincipal(key.SerializeCompressed()), nil
}

// AccountFromPubKey returns the default-subaccount identifier owned by a
// serialized secp256k1 public key.
func AccountFromPubKey(pubKey []byte) (types.AccountID, error) {
	p, err := PrincipalFromPubKey(pubKey)
	if err != nil {
		return types.AccountID{}, err
	}
	return types.AccountIDOf(p), nil
}
