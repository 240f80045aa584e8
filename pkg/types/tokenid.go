package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// ErrInvalidTokenID is returned for token identifiers that are not
// non-negative integers.
var ErrInvalidTokenID = errors.New("invalid token identifier")

// TokenID is an arbitrary-precision non-negative integer identifying one
// non-fungible token. It is stored in canonical decimal form, which keeps
// it comparable and usable as a map key. The zero value is invalid.
type TokenID string

// NewTokenID returns the token identifier for n.
func NewTokenID(n uint64) TokenID {
	return TokenID(new(big.Int).SetUint64(n).String())
}

// TokenIDFromBig returns the token identifier for n.
func TokenIDFromBig(n *big.Int) (TokenID, error) {
	if n == nil || n.Sign() < 0 {
		return "", fmt.Errorf("%w: must be non-negative", ErrInvalidTokenID)
	}
	return TokenID(n.String()), nil
}

// ParseTokenID parses a decimal or 0x-prefixed hex token identifier.
func ParseTokenID(s string) (TokenID, error) {
	s = strings.TrimSpace(s)
	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}
	if digits == "" || strings.HasPrefix(digits, "-") || strings.HasPrefix(digits, "+") {
		return "", fmt.Errorf("%w: %q", ErrInvalidTokenID, s)
	}
	n, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTokenID, s)
	}
	return TokenIDFromBig(n)
}

// Valid reports whether t is in canonical form.
func (t TokenID) Valid() bool {
	if t == "" {
		return false
	}
	n, ok := new(big.Int).SetString(string(t), 10)
	return ok && n.Sign() >= 0 && n.String() == string(t)
}

// Big returns the identifier as a new big.Int. Invalid identifiers yield nil.
func (t TokenID) Big() *big.Int {
	n, ok := new(big.Int).SetString(string(t), 10)
	if !ok {
		return nil
	}
	return n
}

// Cmp compares two identifiers numerically. Canonical decimal strings
// compare by length first, then lexically.
func (t TokenID) Cmp(o TokenID) int {
	switch {
	case len(t) < len(o):
		return -1
	case len(t) > len(o):
		return 1
	}
	return strings.Compare(string(t), string(o))
}

// String returns the decimal form.
func (t TokenID) String() string {
	return string(t)
}

// MarshalJSON encodes the identifier as a decimal string.
func (t TokenID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}

// UnmarshalJSON decodes and canonicalises a decimal or hex string.
func (t *TokenID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTokenID(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// SortTokenIDs sorts ids in ascending numeric order.
func SortTokenIDs(ids []TokenID) {
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Cmp(ids[j]) < 0
	})
}
