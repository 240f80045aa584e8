package ledger

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-nft/pkg/types"
)

// Ledger operation errors.
var (
	ErrOwnerNotFound        = errors.New("owner not found")
	ErrOperatorNotFound     = errors.New("operator not found")
	ErrTokenNotFound        = errors.New("token not found")
	ErrExistedNFT           = errors.New("token already exists")
	ErrUnauthorizedOwner    = errors.New("unauthorized owner")
	ErrUnauthorizedOperator = errors.New("unauthorized operator")
	ErrSelfApprove          = errors.New("cannot approve self")
	ErrInvalidOwner         = errors.New("invalid owner")
	ErrInvalidTokenID       = types.ErrInvalidTokenID
)

// Record store errors.
var (
	ErrRecordExists   = errors.New("record already exists")
	ErrRecordNotFound = errors.New("record not found")
	ErrInvalidAccount = errors.New("invalid account identifier")
)

// InvariantError reports internal state that contradicts the ledger's own
// bookkeeping. It is raised with panic and is never returned to callers.
type InvariantError struct {
	Index   string
	Account types.AccountID
	Token   types.TokenID
	Reason  string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s index invariant violated: account %s token %s: %s",
		e.Index, e.Account, e.Token, e.Reason)
}
