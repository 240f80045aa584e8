package ledger

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-nft/internal/storage"
	"github.com/Klingon-tech/klingnet-nft/pkg/types"
)

var prefixRecord = []byte("r/") // r/<decimal token id> -> TokenRecord JSON

// RecordStore persists token records.
type RecordStore struct {
	db storage.DB
}

// NewRecordStore creates a record store over db.
func NewRecordStore(db storage.DB) *RecordStore {
	return &RecordStore{db: db}
}

// Insert writes rec under id through w. Fails with ErrRecordExists if a
// record is already stored for id.
func (s *RecordStore) Insert(w storage.Writer, id types.TokenID, rec *TokenRecord) error {
	ok, err := s.Has(id)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("insert %s: %w", id, ErrRecordExists)
	}
	return s.put(w, id, rec)
}

// Get returns a private copy of the record stored under id.
func (s *RecordStore) Get(id types.TokenID) (*TokenRecord, error) {
	data, err := s.db.Get(recordKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get %s: %w", id, ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("record get: %w", err)
	}
	var rec TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("record unmarshal %s: %w", id, err)
	}
	return &rec, nil
}

// Update applies mutate to a copy of the stored record and writes the whole
// result through w. The stored record is untouched if mutate returns an error.
func (s *RecordStore) Update(w storage.Writer, id types.TokenID, mutate func(*TokenRecord) error) (*TokenRecord, error) {
	rec, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if err := mutate(rec); err != nil {
		return nil, err
	}
	if err := s.put(w, id, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Has reports whether a record exists for id.
func (s *RecordStore) Has(id types.TokenID) (bool, error) {
	ok, err := s.db.Has(recordKey(id))
	if err != nil {
		return false, fmt.Errorf("record has: %w", err)
	}
	return ok, nil
}

// ForEach iterates over all stored records.
// Return a non-nil error from fn to stop iteration early.
func (s *RecordStore) ForEach(fn func(*TokenRecord) error) error {
	return s.db.ForEach(prefixRecord, func(key, value []byte) error {
		var rec TokenRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("record unmarshal %s: %w", key[len(prefixRecord):], err)
		}
		return fn(&rec)
	})
}

// Count returns the number of stored records.
func (s *RecordStore) Count() (uint64, error) {
	var n uint64
	err := s.db.ForEach(prefixRecord, func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

func (s *RecordStore) put(w storage.Writer, id types.TokenID, rec *TokenRecord) error {
	if err := rec.validateAccounts(); err != nil {
		return fmt.Errorf("record %s: %w", id, err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("record marshal: %w", err)
	}
	return w.Put(recordKey(id), data)
}

func recordKey(id types.TokenID) []byte {
	key := make([]byte, 0, len(prefixRecord)+len(id))
	key = append(key, prefixRecord...)
	return append(key, id...)
}
