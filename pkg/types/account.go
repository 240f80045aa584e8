package types

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
)

// AccountIDSize is the length of an account identifier in bytes:
// a 4-byte checksum followed by a 28-byte hash.
const AccountIDSize = 32

// AccountHashSize is the length of the hash part of an account identifier.
const AccountHashSize = AccountIDSize - checksumSize

const checksumSize = 4

// Account identifier parse errors.
var (
	ErrInvalidLength   = errors.New("invalid account identifier length")
	ErrInvalidChecksum = errors.New("invalid account identifier checksum")
)

// ChecksumError reports an account identifier whose embedded checksum does
// not match the CRC-32 of its hash part.
type ChecksumError struct {
	Input    [AccountIDSize]byte
	Expected [checksumSize]byte
	Found    [checksumSize]byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum failed for %s, expected check bytes %s but found %s",
		hex.EncodeToString(e.Input[:]),
		hex.EncodeToString(e.Expected[:]),
		hex.EncodeToString(e.Found[:]))
}

// Unwrap lets errors.Is match ErrInvalidChecksum.
func (e *ChecksumError) Unwrap() error {
	return ErrInvalidChecksum
}

// AccountID identifies a ledger account.
//
// Layout: CRC32_BE(hash) || hash, where hash is 28 bytes. The zero value is
// not a valid identifier; values obtained from the constructors below
// always carry a correct checksum.
type AccountID [AccountIDSize]byte

// NewAccountID builds an account identifier from its 28-byte hash part.
func NewAccountID(hash [AccountHashSize]byte) AccountID {
	var a AccountID
	sum := accountChecksum(hash[:])
	copy(a[:checksumSize], sum[:])
	copy(a[checksumSize:], hash[:])
	return a
}

// AccountIDFromBytes validates a 32-byte canonical account identifier.
func AccountIDFromBytes(b []byte) (AccountID, error) {
	if len(b) != AccountIDSize {
		return AccountID{}, fmt.Errorf("%w: received %d bytes instead of the expected %d",
			ErrInvalidLength, len(b), AccountIDSize)
	}
	var a AccountID
	copy(a[:], b)
	expected := accountChecksum(a[checksumSize:])
	var found [checksumSize]byte
	copy(found[:], a[:checksumSize])
	if expected != found {
		return AccountID{}, &ChecksumError{Input: a, Expected: expected, Found: found}
	}
	return a, nil
}

// ParseAccountID parses the canonical 64-char hex form of an account identifier.
func ParseAccountID(s string) (AccountID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return AccountID{}, fmt.Errorf("%w: %s is not valid hex: %v", ErrInvalidLength, s, err)
	}
	if len(b) != AccountIDSize {
		return AccountID{}, fmt.Errorf("%w: %s has a length of %d but we expected a length of %d",
			ErrInvalidLength, s, len(s), AccountIDSize*2)
	}
	return AccountIDFromBytes(b)
}

// Checksum returns the embedded checksum bytes.
func (a AccountID) Checksum() [checksumSize]byte {
	var c [checksumSize]byte
	copy(c[:], a[:checksumSize])
	return c
}

// IsZero returns true if the identifier is all zeros.
func (a AccountID) IsZero() bool {
	return a == AccountID{}
}

// String returns the canonical lowercase hex encoding.
func (a AccountID) String() string {
	return hex.EncodeToString(a[:])
}

// Bytes returns a copy of the identifier as a byte slice.
func (a AccountID) Bytes() []byte {
	b := make([]byte, AccountIDSize)
	copy(b, a[:])
	return b
}

// MarshalJSON encodes the identifier as a hex string.
func (a AccountID) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes and validates a hex string.
func (a *AccountID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAccountID(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// SubaccountSize is the length of a subaccount in bytes.
const SubaccountSize = 32

// Subaccount selects one of the accounts controlled by a principal.
type Subaccount [SubaccountSize]byte

// DefaultSubaccount is the all-zero subaccount.
var DefaultSubaccount Subaccount

// accountDomain separates account-id hashing from other SHA-224 uses.
var accountDomain = []byte("\x0Aaccount-id")

// DeriveAccountID computes the account identifier of a principal's subaccount:
// SHA-224(0x0A || "account-id" || principal || subaccount), prefixed with its checksum.
func DeriveAccountID(p Principal, sub Subaccount) AccountID {
	h := sha256.New224()
	h.Write(accountDomain)
	h.Write(p.Bytes())
	h.Write(sub[:])
	var hash [AccountHashSize]byte
	copy(hash[:], h.Sum(nil))
	return NewAccountID(hash)
}

// AccountIDOf returns the default-subaccount identifier of a principal.
func AccountIDOf(p Principal) AccountID {
	return DeriveAccountID(p, DefaultSubaccount)
}

func accountChecksum(hash []byte) [checksumSize]byte {
	var c [checksumSize]byte
	binary.BigEndian.PutUint32(c[:], crc32.ChecksumIEEE(hash))
	return c
}
