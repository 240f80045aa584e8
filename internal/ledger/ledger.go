// Package ledger tracks ownership and delegation of non-fungible tokens and
// enforces the mint, transfer, approve and burn rules.
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-nft/internal/log"
	"github.com/Klingon-tech/klingnet-nft/internal/metrics"
	"github.com/Klingon-tech/klingnet-nft/internal/storage"
	"github.com/Klingon-tech/klingnet-nft/pkg/types"
)

var keyTxCount = []byte("m/txcount")

// Ledger is the token ownership state. Records live in the backing DB;
// the owner and operator indices are kept in memory and rebuilt on Open.
type Ledger struct {
	mu        sync.RWMutex // Serialises mutations; readers share.
	db        storage.DB
	records   *RecordStore
	owners    *Index
	operators *Index
	supply    uint64
	txCount   uint64

	clock   Clock
	metrics *metrics.LedgerMetrics
	logger  zerolog.Logger
}

// Open loads a ledger from db, rebuilding the indices from stored records.
func Open(db storage.DB) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	records := NewRecordStore(db)

	owners, operators, err := rebuildIndices(records)
	if err != nil {
		return nil, fmt.Errorf("rebuild indices: %w", err)
	}

	supply, err := records.Count()
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	var txCount uint64
	data, err := db.Get(keyTxCount)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load tx count: %w", err)
	case len(data) != 8:
		return nil, fmt.Errorf("load tx count: malformed value (%d bytes)", len(data))
	default:
		txCount = binary.BigEndian.Uint64(data)
	}

	l := &Ledger{
		db:        db,
		records:   records,
		owners:    owners,
		operators: operators,
		supply:    supply,
		txCount:   txCount,
		clock:     &SystemClock{},
		logger:    log.Ledger,
	}
	l.logger.Info().
		Int("owners", owners.Size()).
		Int("operators", operators.Size()).
		Uint64("supply", supply).
		Uint64("tx_count", txCount).
		Msg("Ledger opened")
	return l, nil
}

// SetClock replaces the timestamp source.
func (l *Ledger) SetClock(c Clock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = c
}

// SetMetrics attaches metrics. Passing nil disables them.
func (l *Ledger) SetMetrics(m *metrics.LedgerMetrics) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metrics = m
	l.publishState()
}

// SetLogger replaces the ledger's logger.
func (l *Ledger) SetLogger(logger zerolog.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger = logger
}

// Mint creates token id owned by to. Returns the transaction sequence number.
func (l *Ledger) Mint(to types.AccountID, id types.TokenID, props map[string]string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !id.Valid() {
		return 0, l.reject("mint", id, fmt.Errorf("mint %q: %w", id, ErrInvalidTokenID))
	}
	exists, err := l.records.Has(id)
	if err != nil {
		return 0, l.fail("mint", id, err)
	}
	if exists {
		return 0, l.reject("mint", id, fmt.Errorf("mint %s: %w", id, ErrExistedNFT))
	}

	rec := &TokenRecord{
		ID:         id,
		Owner:      accountPtr(to),
		Operator:   accountPtr(to),
		Properties: cloneProps(props),
		MintedAt:   l.clock.Now(),
		MintedBy:   to,
		Status:     StatusActive,
	}

	tx, err := l.commit(func(w storage.Writer) error {
		return l.records.Insert(w, id, rec)
	})
	if err != nil {
		return 0, l.abort("mint", id, err)
	}
	l.owners.Reindex(id, nil, rec.Owner)
	l.operators.Reindex(id, nil, rec.Operator)
	l.supply++
	return l.done("mint", id, tx), nil
}

// Transfer moves id from from to to. from must be both owner and operator.
// The caller's identity is not checked against from.
func (l *Ledger) Transfer(from, to types.AccountID, id types.TokenID) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if from == to {
		return 0, l.reject("transfer", id, fmt.Errorf("transfer %s to its owner: %w", id, ErrUnauthorizedOwner))
	}
	prev, err := l.lookup("transfer", id)
	if err != nil {
		return 0, err
	}
	if err := checkTransfer(prev, from); err != nil {
		return 0, l.reject("transfer", id, fmt.Errorf("transfer %s: %w", id, err))
	}

	now := l.clock.Now()
	var next *TokenRecord
	tx, err := l.commit(func(w storage.Writer) (err error) {
		next, err = l.records.Update(w, id, func(r *TokenRecord) error {
			r.Owner = accountPtr(to)
			r.Operator = accountPtr(to)
			r.TransferredAt = u64Ptr(now)
			r.TransferredBy = accountPtr(from)
			return nil
		})
		return err
	})
	if err != nil {
		return 0, l.abort("transfer", id, err)
	}
	l.owners.Reindex(id, prev.Owner, next.Owner)
	l.operators.Reindex(id, prev.Operator, next.Operator)
	return l.done("transfer", id, tx), nil
}

// Approve delegates id to operator. Only the owner may approve and the owner
// cannot approve itself.
func (l *Ledger) Approve(caller, operator types.AccountID, id types.TokenID) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if operator == caller {
		return 0, l.reject("approve", id, fmt.Errorf("approve %s: %w", id, ErrSelfApprove))
	}
	prev, err := l.lookup("approve", id)
	if err != nil {
		return 0, err
	}
	if err := checkApprove(prev, caller); err != nil {
		return 0, l.reject("approve", id, fmt.Errorf("approve %s: %w", id, err))
	}

	now := l.clock.Now()
	var next *TokenRecord
	tx, err := l.commit(func(w storage.Writer) (err error) {
		next, err = l.records.Update(w, id, func(r *TokenRecord) error {
			r.Operator = accountPtr(operator)
			r.ApprovedAt = u64Ptr(now)
			r.ApprovedBy = accountPtr(caller)
			return nil
		})
		return err
	})
	if err != nil {
		return 0, l.abort("approve", id, err)
	}
	l.operators.Reindex(id, prev.Operator, next.Operator)
	return l.done("approve", id, tx), nil
}

// Burn destroys id. The record is kept with no owner or operator.
func (l *Ledger) Burn(caller types.AccountID, id types.TokenID) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev, err := l.lookup("burn", id)
	if err != nil {
		return 0, err
	}
	if err := checkBurn(prev, caller); err != nil {
		return 0, l.reject("burn", id, fmt.Errorf("burn %s: %w", id, err))
	}

	now := l.clock.Now()
	var next *TokenRecord
	tx, err := l.commit(func(w storage.Writer) (err error) {
		next, err = l.records.Update(w, id, func(r *TokenRecord) error {
			r.Owner = nil
			r.Operator = nil
			r.IsBurned = true
			r.BurnedAt = u64Ptr(now)
			r.BurnedBy = accountPtr(caller)
			return nil
		})
		return err
	})
	if err != nil {
		return 0, l.abort("burn", id, err)
	}
	l.owners.Reindex(id, prev.Owner, next.Owner)
	l.operators.Reindex(id, prev.Operator, next.Operator)
	return l.done("burn", id, tx), nil
}

// lookup loads the record a mutation applies to. A missing record is
// reported as ErrOwnerNotFound.
func (l *Ledger) lookup(op string, id types.TokenID) (*TokenRecord, error) {
	rec, err := l.records.Get(id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, l.reject(op, id, fmt.Errorf("%s %s: %w", op, id, ErrOwnerNotFound))
	}
	if err != nil {
		return nil, l.fail(op, id, err)
	}
	return rec, nil
}

// commit stages the record write from stage together with the incremented
// tx counter and commits both. It returns the sequence number of the
// transaction. The in-memory counter is not touched until done.
func (l *Ledger) commit(stage func(storage.Writer) error) (uint64, error) {
	batch := storage.NewBatch(l.db)
	defer batch.Discard()
	if err := stage(batch); err != nil {
		return 0, err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], l.txCount+1)
	if err := batch.Put(keyTxCount, buf[:]); err != nil {
		return 0, fmt.Errorf("stage tx count: %w", err)
	}
	if err := batch.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return l.txCount, nil
}

func (l *Ledger) done(op string, id types.TokenID, tx uint64) uint64 {
	l.txCount++
	l.metrics.ObserveOperation(op, metrics.OutcomeOK)
	l.publishState()
	l.logger.Debug().
		Str("op", op).
		Str("token", id.String()).
		Uint64("tx", tx).
		Msg("Ledger operation applied")
	return tx
}

func (l *Ledger) reject(op string, id types.TokenID, err error) error {
	l.metrics.ObserveOperation(op, metrics.OutcomeRejected)
	l.logger.Debug().
		Str("op", op).
		Str("token", id.String()).
		Err(err).
		Msg("Ledger operation rejected")
	return err
}

func (l *Ledger) fail(op string, id types.TokenID, err error) error {
	l.metrics.ObserveOperation(op, metrics.OutcomeError)
	l.logger.Error().
		Str("op", op).
		Str("token", id.String()).
		Err(err).
		Msg("Ledger operation failed")
	return fmt.Errorf("%s %s: %w", op, id, err)
}

// abort classifies a failed commit. Records that fail validation are
// rejections; anything else is a storage failure.
func (l *Ledger) abort(op string, id types.TokenID, err error) error {
	if errors.Is(err, ErrInvalidAccount) {
		return l.reject(op, id, fmt.Errorf("%s %s: %w", op, id, err))
	}
	return l.fail(op, id, err)
}

func (l *Ledger) publishState() {
	l.metrics.SetState(l.supply, l.txCount, l.owners.Size())
}

func cloneProps(p map[string]string) map[string]string {
	if len(p) == 0 {
		return nil
	}
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
