package ledger

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-nft/pkg/types"
)

// StatusActive is the status assigned to every freshly minted token.
const StatusActive uint32 = 1

// TokenRecord is the authoritative state of one token. Timestamps are
// nanoseconds as reported by the ledger's Clock.
type TokenRecord struct {
	ID         types.TokenID     `json:"id"`
	Owner      *types.AccountID  `json:"owner,omitempty"`
	Operator   *types.AccountID  `json:"operator,omitempty"`
	IsBurned   bool              `json:"is_burned"`
	Properties map[string]string `json:"properties,omitempty"`

	MintedAt uint64          `json:"minted_at"`
	MintedBy types.AccountID `json:"minted_by"`

	TransferredAt *uint64          `json:"transferred_at,omitempty"`
	TransferredBy *types.AccountID `json:"transferred_by,omitempty"`
	ApprovedAt    *uint64          `json:"approved_at,omitempty"`
	ApprovedBy    *types.AccountID `json:"approved_by,omitempty"`
	BurnedAt      *uint64          `json:"burned_at,omitempty"`
	BurnedBy      *types.AccountID `json:"burned_by,omitempty"`

	Status uint32 `json:"status"`
}

// validateAccounts checks that every account in r would decode again.
func (r *TokenRecord) validateAccounts() error {
	fields := []struct {
		name string
		acct *types.AccountID
	}{
		{"owner", r.Owner},
		{"operator", r.Operator},
		{"minted_by", &r.MintedBy},
		{"transferred_by", r.TransferredBy},
		{"approved_by", r.ApprovedBy},
		{"burned_by", r.BurnedBy},
	}
	for _, f := range fields {
		if f.acct == nil {
			continue
		}
		if _, err := types.AccountIDFromBytes(f.acct[:]); err != nil {
			return fmt.Errorf("%s: %w: %v", f.name, ErrInvalidAccount, err)
		}
	}
	return nil
}

func accountPtr(a types.AccountID) *types.AccountID { return &a }

func u64Ptr(v uint64) *uint64 { return &v }
