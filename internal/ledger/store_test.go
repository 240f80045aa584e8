package ledger

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-nft/internal/storage"
	"github.com/Klingon-tech/klingnet-nft/pkg/types"
)

func TestRecordStore(t *testing.T) {
	db := storage.NewMemory()
	s := NewRecordStore(db)
	id := types.NewTokenID(5)
	rec := &TokenRecord{ID: id, Owner: accountPtr(alice), Operator: accountPtr(alice), MintedBy: alice, Status: StatusActive}

	if err := s.Insert(db, id, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(db, id, rec); !errors.Is(err, ErrRecordExists) {
		t.Errorf("second Insert = %v, want ErrRecordExists", err)
	}

	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if *got.Owner != alice || got.Status != StatusActive {
		t.Errorf("Get = %+v", got)
	}

	// Mutating the returned copy does not touch storage.
	got.Owner = accountPtr(bob)
	again, _ := s.Get(id)
	if *again.Owner != alice {
		t.Error("Get returned a shared record")
	}

	updated, err := s.Update(db, id, func(r *TokenRecord) error {
		r.Operator = accountPtr(carol)
		return nil
	})
	if err != nil || *updated.Operator != carol {
		t.Fatalf("Update = %+v, %v", updated, err)
	}

	if _, err := s.Get(types.NewTokenID(6)); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Get missing = %v, want ErrRecordNotFound", err)
	}
	if _, err := s.Update(db, types.NewTokenID(6), func(*TokenRecord) error { return nil }); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Update missing = %v, want ErrRecordNotFound", err)
	}
	if n, _ := s.Count(); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestRecordStore_UpdateMutatorError(t *testing.T) {
	db := storage.NewMemory()
	s := NewRecordStore(db)
	id := types.NewTokenID(1)
	if err := s.Insert(db, id, &TokenRecord{ID: id, Owner: accountPtr(alice), MintedBy: alice}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	boom := errors.New("boom")
	_, err := s.Update(db, id, func(r *TokenRecord) error {
		r.Owner = accountPtr(bob)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update = %v, want boom", err)
	}
	rec, _ := s.Get(id)
	if *rec.Owner != alice {
		t.Error("failed mutation reached storage")
	}
}

func TestRecordStore_ForEach(t *testing.T) {
	db := storage.NewMemory()
	s := NewRecordStore(db)
	for _, n := range []uint64{3, 1, 2} {
		id := types.NewTokenID(n)
		if err := s.Insert(db, id, &TokenRecord{ID: id, MintedBy: alice}); err != nil {
			t.Fatalf("Insert(%d): %v", n, err)
		}
	}
	db.Put([]byte("m/txcount"), []byte{0, 0, 0, 0, 0, 0, 0, 3})

	seen := map[types.TokenID]bool{}
	err := s.ForEach(func(r *TokenRecord) error {
		seen[r.ID] = true
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if len(seen) != 3 {
		t.Errorf("ForEach visited %d records, want 3", len(seen))
	}
}

func TestRecordStore_RejectsInvalidAccounts(t *testing.T) {
	db := storage.NewMemory()
	s := NewRecordStore(db)
	id := types.NewTokenID(1)

	bad := types.AccountID{}
	if err := s.Insert(db, id, &TokenRecord{ID: id, MintedBy: bad}); !errors.Is(err, ErrInvalidAccount) {
		t.Fatalf("Insert zero minter = %v, want ErrInvalidAccount", err)
	}
	if ok, _ := s.Has(id); ok {
		t.Fatal("invalid record reached storage")
	}

	if err := s.Insert(db, id, &TokenRecord{ID: id, Owner: accountPtr(alice), MintedBy: alice}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	_, err := s.Update(db, id, func(r *TokenRecord) error {
		r.Operator = accountPtr(bad)
		return nil
	})
	if !errors.Is(err, ErrInvalidAccount) {
		t.Fatalf("Update zero operator = %v, want ErrInvalidAccount", err)
	}
	rec, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Operator != nil {
		t.Error("invalid operator reached storage")
	}
}
