package ledger

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-nft/pkg/types"
)

// Stats summarises the ledger.
type Stats struct {
	TotalTransactions  uint64 `json:"total_transactions"`
	TotalSupply        uint64 `json:"total_supply"`
	TotalUniqueHolders int    `json:"total_unique_holders"`
}

// OwnerOf returns the owner of id, or nil once the token is burned.
func (l *Ledger) OwnerOf(id types.TokenID) (*types.AccountID, error) {
	rec, err := l.TokenMetadata(id)
	if err != nil {
		return nil, err
	}
	return rec.Owner, nil
}

// OperatorOf returns the operator of id, or nil once the token is burned.
func (l *Ledger) OperatorOf(id types.TokenID) (*types.AccountID, error) {
	rec, err := l.TokenMetadata(id)
	if err != nil {
		return nil, err
	}
	return rec.Operator, nil
}

// TokenMetadata returns a copy of the full record for id.
func (l *Ledger) TokenMetadata(id types.TokenID) (*TokenRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, err := l.records.Get(id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, fmt.Errorf("token %s: %w", id, ErrTokenNotFound)
	}
	return rec, err
}

// BalanceOf returns how many tokens a owns.
func (l *Ledger) BalanceOf(a types.AccountID) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := l.owners.Len(a)
	if n == 0 {
		return 0, fmt.Errorf("balance of %s: %w", a, ErrOwnerNotFound)
	}
	return uint64(n), nil
}

// TotalSupply returns the number of token records, burned tokens included.
func (l *Ledger) TotalSupply() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply
}

// OwnerTokenIdentifiers returns the tokens a owns in ascending order.
func (l *Ledger) OwnerTokenIdentifiers(a types.AccountID) ([]types.TokenID, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids, ok := l.owners.Tokens(a)
	if !ok {
		return nil, fmt.Errorf("tokens of %s: %w", a, ErrOwnerNotFound)
	}
	return ids, nil
}

// OperatorTokenIdentifiers returns the tokens a operates in ascending order.
func (l *Ledger) OperatorTokenIdentifiers(a types.AccountID) ([]types.TokenID, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids, ok := l.operators.Tokens(a)
	if !ok {
		return nil, fmt.Errorf("tokens operated by %s: %w", a, ErrOperatorNotFound)
	}
	return ids, nil
}

// Allowance returns 1 when spender is the operator of id and 0 otherwise.
// owner must be the current owner, else ErrInvalidOwner.
func (l *Ledger) Allowance(owner, spender types.AccountID, id types.TokenID) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.owners.Contains(owner, id) {
		return 0, fmt.Errorf("allowance %s: %w", id, ErrInvalidOwner)
	}
	if l.operators.Contains(spender, id) {
		return 1, nil
	}
	return 0, nil
}

// OwnersCount returns the number of accounts owning at least one token.
func (l *Ledger) OwnersCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.owners.Size()
}

// TxCount returns the number of transactions applied so far.
func (l *Ledger) TxCount() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.txCount
}

// Stats returns the ledger summary.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Stats{
		TotalTransactions:  l.txCount,
		TotalSupply:        l.supply,
		TotalUniqueHolders: l.owners.Size(),
	}
}
