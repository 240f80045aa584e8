package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// MaxPrincipalSize is the maximum length of a principal in bytes.
const MaxPrincipalSize = 29

// selfAuthenticatingTag marks principals derived from a public key.
const selfAuthenticatingTag = 0x02

// Principal is an opaque caller identity as seen by the network layer.
// It is held as a string so that it is comparable and usable as a map key.
type Principal string

// PrincipalFromBytes copies b into a principal.
func PrincipalFromBytes(b []byte) (Principal, error) {
	if len(b) > MaxPrincipalSize {
		return "", fmt.Errorf("principal must be at most %d bytes, got %d", MaxPrincipalSize, len(b))
	}
	return Principal(b), nil
}

// ParsePrincipal decodes the hex form of a principal.
func ParsePrincipal(s string) (Principal, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("invalid principal hex: %w", err)
	}
	return PrincipalFromBytes(b)
}

// SelfAuthenticatingPrincipal derives the principal owned by a public key:
// SHA-224(pubKey) || 0x02.
func SelfAuthenticatingPrincipal(pubKey []byte) Principal {
	sum := sha256.Sum224(pubKey)
	b := make([]byte, 0, len(sum)+1)
	b = append(b, sum[:]...)
	b = append(b, selfAuthenticatingTag)
	return Principal(b)
}

// IsAnonymous reports whether the principal is empty.
func (p Principal) IsAnonymous() bool {
	return p == ""
}

// Bytes returns a copy of the raw principal bytes.
func (p Principal) Bytes() []byte {
	return []byte(p)
}

// String returns the hex encoding of the principal.
func (p Principal) String() string {
	return hex.EncodeToString([]byte(p))
}

// MarshalJSON encodes the principal as a hex string.
func (p Principal) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a hex string into a principal.
func (p *Principal) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePrincipal(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
