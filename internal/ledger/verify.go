package ledger

import (
	"errors"
	"fmt"
)

// ErrIndexMismatch is returned by Verify when the in-memory indices disagree
// with the stored records.
var ErrIndexMismatch = errors.New("index does not match records")

// Verify rebuilds both indices from the stored records and compares them,
// together with the supply counter, against the live state.
func (l *Ledger) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	owners, operators, err := rebuildIndices(l.records)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if !owners.Equal(l.owners) {
		return fmt.Errorf("verify owner index: %w", ErrIndexMismatch)
	}
	if !operators.Equal(l.operators) {
		return fmt.Errorf("verify operator index: %w", ErrIndexMismatch)
	}
	count, err := l.records.Count()
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if count != l.supply {
		return fmt.Errorf("verify: supply %d but %d records stored", l.supply, count)
	}
	return nil
}
