package ledger

import "github.com/Klingon-tech/klingnet-nft/pkg/types"

// isOwner reports whether a is the current owner of rec. Burned tokens have
// no owner.
func isOwner(rec *TokenRecord, a types.AccountID) bool {
	return rec.Owner != nil && *rec.Owner == a
}

// isOperator reports whether a is the current operator of rec.
func isOperator(rec *TokenRecord, a types.AccountID) bool {
	return rec.Operator != nil && *rec.Operator == a
}

// checkTransfer validates from moving rec to another account.
func checkTransfer(rec *TokenRecord, from types.AccountID) error {
	if !isOwner(rec, from) {
		return ErrUnauthorizedOwner
	}
	if !isOperator(rec, from) {
		return ErrUnauthorizedOperator
	}
	return nil
}

// checkApprove validates caller delegating rec to operator.
func checkApprove(rec *TokenRecord, caller types.AccountID) error {
	if !isOwner(rec, caller) {
		return ErrUnauthorizedOwner
	}
	return nil
}

// checkBurn validates caller burning rec.
func checkBurn(rec *TokenRecord, caller types.AccountID) error {
	if !isOwner(rec, caller) {
		return ErrUnauthorizedOwner
	}
	return nil
}
