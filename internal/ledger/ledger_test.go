package ledger

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Klingon-tech/klingnet-nft/internal/metrics"
	"github.com/Klingon-tech/klingnet-nft/internal/storage"
	"github.com/Klingon-tech/klingnet-nft/pkg/types"
)

var (
	alice = types.AccountIDOf("alice")
	bob   = types.AccountIDOf("bob")
	carol = types.AccountIDOf("carol")
	dave  = types.AccountIDOf("dave")
)

type manualClock struct{ t uint64 }

func (c *manualClock) Now() uint64 {
	c.t += 10
	return c.t
}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return openTestLedger(t, storage.NewMemory())
}

func openTestLedger(t *testing.T, db storage.DB) *Ledger {
	t.Helper()
	l, err := Open(db)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	l.SetClock(&manualClock{})
	return l
}

func mustMint(t *testing.T, l *Ledger, to types.AccountID, id uint64) {
	t.Helper()
	if _, err := l.Mint(to, types.NewTokenID(id), nil); err != nil {
		t.Fatalf("Mint(%d): %v", id, err)
	}
}

func mustVerify(t *testing.T, l *Ledger) {
	t.Helper()
	if err := l.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestMint(t *testing.T) {
	l := newTestLedger(t)
	id := types.NewTokenID(7)

	tx, err := l.Mint(alice, id, map[string]string{"name": "seven"})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if tx != 0 {
		t.Errorf("first tx = %d, want 0", tx)
	}

	rec, err := l.TokenMetadata(id)
	if err != nil {
		t.Fatalf("TokenMetadata: %v", err)
	}
	if *rec.Owner != alice || *rec.Operator != alice || rec.MintedBy != alice {
		t.Error("minted record should be owned, operated and minted by alice")
	}
	if rec.Status != StatusActive || rec.IsBurned || rec.MintedAt == 0 {
		t.Errorf("unexpected record state: %+v", rec)
	}
	if rec.Properties["name"] != "seven" {
		t.Errorf("properties = %v", rec.Properties)
	}
	if n, _ := l.BalanceOf(alice); n != 1 {
		t.Errorf("BalanceOf(alice) = %d, want 1", n)
	}
	if l.TxCount() != 1 {
		t.Errorf("TxCount = %d, want 1", l.TxCount())
	}
	mustVerify(t, l)
}

func TestMint_Rejections(t *testing.T) {
	l := newTestLedger(t)
	mustMint(t, l, alice, 7)

	if _, err := l.Mint(bob, types.NewTokenID(7), nil); !errors.Is(err, ErrExistedNFT) {
		t.Errorf("Mint duplicate = %v, want ErrExistedNFT", err)
	}
	if _, err := l.Mint(bob, types.TokenID("-1"), nil); !errors.Is(err, ErrInvalidTokenID) {
		t.Errorf("Mint invalid id = %v, want ErrInvalidTokenID", err)
	}

	// Burned identifiers are never reissued.
	if _, err := l.Burn(alice, types.NewTokenID(7)); err != nil {
		t.Fatalf("Burn: %v", err)
	}
	if _, err := l.Mint(alice, types.NewTokenID(7), nil); !errors.Is(err, ErrExistedNFT) {
		t.Errorf("Mint burned id = %v, want ErrExistedNFT", err)
	}
	if l.TxCount() != 2 {
		t.Errorf("TxCount = %d, want 2", l.TxCount())
	}
}

func TestMint_PropertiesCopied(t *testing.T) {
	l := newTestLedger(t)
	props := map[string]string{"k": "v"}
	l.Mint(alice, types.NewTokenID(1), props)
	props["k"] = "changed"

	rec, _ := l.TokenMetadata(types.NewTokenID(1))
	if rec.Properties["k"] != "v" {
		t.Errorf("stored properties follow caller map: %v", rec.Properties)
	}
}

func TestTransfer(t *testing.T) {
	l := newTestLedger(t)
	id := types.NewTokenID(7)
	mustMint(t, l, alice, 7)

	tx, err := l.Transfer(alice, bob, id)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if tx != 1 {
		t.Errorf("tx = %d, want 1", tx)
	}

	owner, _ := l.OwnerOf(id)
	operator, _ := l.OperatorOf(id)
	if *owner != bob || *operator != bob {
		t.Errorf("owner/operator = %s/%s, want bob", owner, operator)
	}
	if _, err := l.OwnerTokenIdentifiers(alice); !errors.Is(err, ErrOwnerNotFound) {
		t.Errorf("OwnerTokenIdentifiers(alice) = %v, want ErrOwnerNotFound", err)
	}
	ids, err := l.OwnerTokenIdentifiers(bob)
	if err != nil || len(ids) != 1 || ids[0] != id {
		t.Errorf("OwnerTokenIdentifiers(bob) = %v, %v", ids, err)
	}
	rec, _ := l.TokenMetadata(id)
	if rec.TransferredAt == nil || *rec.TransferredBy != alice {
		t.Errorf("transfer audit fields not set: %+v", rec)
	}
	mustVerify(t, l)
}

func TestTransfer_Rejections(t *testing.T) {
	l := newTestLedger(t)
	mustMint(t, l, alice, 7)
	if _, err := l.Approve(alice, carol, types.NewTokenID(7)); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	tests := []struct {
		name     string
		from, to types.AccountID
		id       types.TokenID
		want     error
	}{
		{"self transfer", alice, alice, types.NewTokenID(7), ErrUnauthorizedOwner},
		{"missing token", alice, bob, types.NewTokenID(8), ErrOwnerNotFound},
		{"not owner", bob, carol, types.NewTokenID(7), ErrUnauthorizedOwner},
		{"operator delegated away", alice, bob, types.NewTokenID(7), ErrUnauthorizedOperator},
		{"operator is not owner", carol, bob, types.NewTokenID(7), ErrUnauthorizedOwner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := l.TxCount()
			if _, err := l.Transfer(tt.from, tt.to, tt.id); !errors.Is(err, tt.want) {
				t.Fatalf("Transfer = %v, want %v", err, tt.want)
			}
			if l.TxCount() != before {
				t.Error("rejected transfer changed tx count")
			}
			mustVerify(t, l)
		})
	}

	owner, _ := l.OwnerOf(types.NewTokenID(7))
	if *owner != alice {
		t.Errorf("owner changed after rejected transfers")
	}
}

func TestApprove(t *testing.T) {
	l := newTestLedger(t)
	id := types.NewTokenID(7)
	mustMint(t, l, alice, 7)

	if _, err := l.Approve(alice, carol, id); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	operator, _ := l.OperatorOf(id)
	if *operator != carol {
		t.Errorf("OperatorOf = %s, want carol", operator)
	}
	if n, _ := l.BalanceOf(alice); n != 1 {
		t.Error("approve must not change ownership")
	}
	if _, err := l.OperatorTokenIdentifiers(alice); !errors.Is(err, ErrOperatorNotFound) {
		t.Errorf("OperatorTokenIdentifiers(alice) = %v, want ErrOperatorNotFound", err)
	}
	if ids, _ := l.OperatorTokenIdentifiers(carol); len(ids) != 1 {
		t.Errorf("OperatorTokenIdentifiers(carol) = %v", ids)
	}

	if got, err := l.Allowance(alice, carol, id); err != nil || got != 1 {
		t.Errorf("Allowance(alice, carol) = %d, %v; want 1", got, err)
	}
	if got, err := l.Allowance(alice, dave, id); err != nil || got != 0 {
		t.Errorf("Allowance(alice, dave) = %d, %v; want 0", got, err)
	}
	if _, err := l.Allowance(bob, carol, id); !errors.Is(err, ErrInvalidOwner) {
		t.Errorf("Allowance(bob, ...) = %v, want ErrInvalidOwner", err)
	}

	// Re-approving moves the token between operator buckets.
	if _, err := l.Approve(alice, dave, id); err != nil {
		t.Fatalf("re-Approve: %v", err)
	}
	if _, err := l.OperatorTokenIdentifiers(carol); !errors.Is(err, ErrOperatorNotFound) {
		t.Errorf("carol still indexed as operator: %v", err)
	}
	rec, _ := l.TokenMetadata(id)
	if rec.ApprovedAt == nil || *rec.ApprovedBy != alice {
		t.Errorf("approve audit fields not set: %+v", rec)
	}
	mustVerify(t, l)
}

func TestApprove_Rejections(t *testing.T) {
	l := newTestLedger(t)
	mustMint(t, l, alice, 7)

	tests := []struct {
		name             string
		caller, operator types.AccountID
		id               types.TokenID
		want             error
	}{
		{"self approve", alice, alice, types.NewTokenID(7), ErrSelfApprove},
		{"missing token", alice, bob, types.NewTokenID(9), ErrOwnerNotFound},
		{"not owner", bob, carol, types.NewTokenID(7), ErrUnauthorizedOwner},
	}
	for _, tt := range tests {
		if _, err := l.Approve(tt.caller, tt.operator, tt.id); !errors.Is(err, tt.want) {
			t.Errorf("%s: Approve = %v, want %v", tt.name, err, tt.want)
		}
	}
	if l.TxCount() != 1 {
		t.Errorf("TxCount = %d, want 1", l.TxCount())
	}
	mustVerify(t, l)
}

func TestBurn(t *testing.T) {
	l := newTestLedger(t)
	id := types.NewTokenID(7)
	mustMint(t, l, alice, 7)
	l.Transfer(alice, bob, id)
	l.Approve(bob, carol, id)

	if _, err := l.Burn(bob, id); err != nil {
		t.Fatalf("Burn: %v", err)
	}

	owner, err := l.OwnerOf(id)
	if err != nil || owner != nil {
		t.Errorf("OwnerOf burned = %v, %v; want nil, nil", owner, err)
	}
	operator, err := l.OperatorOf(id)
	if err != nil || operator != nil {
		t.Errorf("OperatorOf burned = %v, %v; want nil, nil", operator, err)
	}
	rec, _ := l.TokenMetadata(id)
	if !rec.IsBurned || rec.BurnedAt == nil || *rec.BurnedBy != bob {
		t.Errorf("burn fields not set: %+v", rec)
	}
	if rec.Status != StatusActive {
		t.Errorf("burn changed status to %d", rec.Status)
	}
	for _, a := range []types.AccountID{alice, bob, carol} {
		if l.owners.Len(a) != 0 || l.operators.Len(a) != 0 {
			t.Errorf("burned token still indexed for %s", a)
		}
	}
	if l.TotalSupply() != 1 {
		t.Errorf("TotalSupply = %d, want 1", l.TotalSupply())
	}
	if _, err := l.Allowance(bob, carol, id); !errors.Is(err, ErrInvalidOwner) {
		t.Errorf("Allowance on burned = %v, want ErrInvalidOwner", err)
	}
	mustVerify(t, l)
}

func TestBurn_Terminal(t *testing.T) {
	l := newTestLedger(t)
	id := types.NewTokenID(7)
	mustMint(t, l, alice, 7)
	l.Burn(alice, id)

	if _, err := l.Burn(alice, id); !errors.Is(err, ErrUnauthorizedOwner) {
		t.Errorf("second Burn = %v, want ErrUnauthorizedOwner", err)
	}
	if _, err := l.Transfer(alice, bob, id); !errors.Is(err, ErrUnauthorizedOwner) {
		t.Errorf("Transfer burned = %v, want ErrUnauthorizedOwner", err)
	}
	if _, err := l.Approve(alice, bob, id); !errors.Is(err, ErrUnauthorizedOwner) {
		t.Errorf("Approve burned = %v, want ErrUnauthorizedOwner", err)
	}
	if _, err := l.Burn(alice, types.NewTokenID(8)); !errors.Is(err, ErrOwnerNotFound) {
		t.Errorf("Burn missing = %v, want ErrOwnerNotFound", err)
	}
	rec, _ := l.TokenMetadata(id)
	if !rec.IsBurned || rec.Owner != nil {
		t.Error("burned token changed state")
	}
}

func TestQueries_Missing(t *testing.T) {
	l := newTestLedger(t)
	id := types.NewTokenID(1)

	if _, err := l.OwnerOf(id); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("OwnerOf = %v, want ErrTokenNotFound", err)
	}
	if _, err := l.OperatorOf(id); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("OperatorOf = %v, want ErrTokenNotFound", err)
	}
	if _, err := l.TokenMetadata(id); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("TokenMetadata = %v, want ErrTokenNotFound", err)
	}
	if _, err := l.BalanceOf(alice); !errors.Is(err, ErrOwnerNotFound) {
		t.Errorf("BalanceOf = %v, want ErrOwnerNotFound", err)
	}
	if _, err := l.Allowance(alice, bob, id); !errors.Is(err, ErrInvalidOwner) {
		t.Errorf("Allowance = %v, want ErrInvalidOwner", err)
	}
	if l.TotalSupply() != 0 || l.OwnersCount() != 0 {
		t.Error("empty ledger should have no supply and no owners")
	}
}

func TestOwnerTokenIdentifiers_NumericOrder(t *testing.T) {
	l := newTestLedger(t)
	for _, id := range []uint64{10, 2, 100, 1} {
		mustMint(t, l, alice, id)
	}
	ids, err := l.OwnerTokenIdentifiers(alice)
	if err != nil {
		t.Fatalf("OwnerTokenIdentifiers: %v", err)
	}
	want := []types.TokenID{"1", "2", "10", "100"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestStats(t *testing.T) {
	l := newTestLedger(t)
	mustMint(t, l, alice, 1)
	mustMint(t, l, alice, 2)
	mustMint(t, l, bob, 3)
	l.Burn(bob, types.NewTokenID(3))

	got := l.Stats()
	want := Stats{TotalTransactions: 4, TotalSupply: 3, TotalUniqueHolders: 1}
	if got != want {
		t.Errorf("Stats = %+v, want %+v", got, want)
	}
	if l.OwnersCount() != 1 {
		t.Errorf("OwnersCount = %d, want 1", l.OwnersCount())
	}
}

func TestTxCountMonotonic(t *testing.T) {
	l := newTestLedger(t)
	ops := []func() (uint64, error){
		func() (uint64, error) { return l.Mint(alice, types.NewTokenID(1), nil) },
		func() (uint64, error) { return l.Mint(alice, types.NewTokenID(1), nil) },
		func() (uint64, error) { return l.Approve(alice, bob, types.NewTokenID(1)) },
		func() (uint64, error) { return l.Transfer(alice, carol, types.NewTokenID(1)) },
		func() (uint64, error) { return l.Transfer(bob, carol, types.NewTokenID(1)) },
		func() (uint64, error) { return l.Burn(alice, types.NewTokenID(1)) },
	}
	var want uint64
	for i, op := range ops {
		before := l.TxCount()
		tx, err := op()
		switch {
		case err != nil && l.TxCount() != before:
			t.Fatalf("op %d failed but tx count moved", i)
		case err == nil:
			if tx != want || l.TxCount() != before+1 {
				t.Fatalf("op %d: tx = %d count = %d, want tx %d", i, tx, l.TxCount(), want)
			}
			want++
		}
	}
	mustVerify(t, l)
}

func TestReopenRestoresState(t *testing.T) {
	db := storage.NewMemory()
	l := openTestLedger(t, db)
	mustMint(t, l, alice, 1)
	mustMint(t, l, alice, 2)
	l.Approve(alice, carol, types.NewTokenID(2))
	l.Transfer(alice, bob, types.NewTokenID(1))
	l.Burn(alice, types.NewTokenID(2))
	root, _ := l.Commitment()

	re := openTestLedger(t, db)
	if re.TxCount() != 5 {
		t.Errorf("TxCount after reopen = %d, want 5", re.TxCount())
	}
	if re.TotalSupply() != 2 {
		t.Errorf("TotalSupply after reopen = %d, want 2", re.TotalSupply())
	}
	if !re.owners.Equal(l.owners) || !re.operators.Equal(l.operators) {
		t.Error("rebuilt indices differ from live ones")
	}
	got, _ := re.Commitment()
	if got != root {
		t.Errorf("Commitment after reopen = %s, want %s", got, root)
	}
	if tx, _ := re.Mint(dave, types.NewTokenID(3), nil); tx != 5 {
		t.Errorf("next tx after reopen = %d, want 5", tx)
	}
}

func TestBadgerBackend(t *testing.T) {
	db, err := storage.NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	defer db.Close()

	l := openTestLedger(t, db)
	mustMint(t, l, alice, 42)
	if _, err := l.Transfer(alice, bob, types.NewTokenID(42)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	re := openTestLedger(t, db)
	owner, err := re.OwnerOf(types.NewTokenID(42))
	if err != nil || *owner != bob {
		t.Errorf("OwnerOf after reopen = %v, %v", owner, err)
	}
	mustVerify(t, re)
}

func TestOpen_MalformedTxCount(t *testing.T) {
	db := storage.NewMemory()
	db.Put(keyTxCount, []byte{1, 2})
	if _, err := Open(db); err == nil {
		t.Fatal("Open with malformed tx count should fail")
	}
}

// failingDB refuses to commit batches.
type failingDB struct {
	storage.DB
}

func (f failingDB) NewBatch() storage.Batch { return failingBatch{} }

type failingBatch struct{}

func (failingBatch) Put(_, _ []byte) error { return nil }
func (failingBatch) Delete(_ []byte) error { return nil }
func (failingBatch) Commit() error         { return errors.New("disk full") }
func (failingBatch) Discard()             {}

func TestCommitFailureLeavesStateUntouched(t *testing.T) {
	mem := storage.NewMemory()
	l := openTestLedger(t, mem)
	mustMint(t, l, alice, 1)

	l.db = failingDB{mem}
	root, _ := l.Commitment()

	if _, err := l.Mint(bob, types.NewTokenID(2), nil); err == nil {
		t.Fatal("Mint should fail when the batch cannot commit")
	}
	if _, err := l.Transfer(alice, bob, types.NewTokenID(1)); err == nil {
		t.Fatal("Transfer should fail when the batch cannot commit")
	}
	if l.TxCount() != 1 || l.TotalSupply() != 1 {
		t.Errorf("counters moved: tx=%d supply=%d", l.TxCount(), l.TotalSupply())
	}
	if got, _ := l.Commitment(); got != root {
		t.Error("records changed after failed commit")
	}
	owner, _ := l.OwnerOf(types.NewTokenID(1))
	if *owner != alice {
		t.Error("owner changed after failed commit")
	}
	mustVerify(t, l)
}

func TestInvalidAccountsLeaveLedgerOpenable(t *testing.T) {
	db := storage.NewMemory()
	l := openTestLedger(t, db)
	bad := types.AccountID{}

	if _, err := l.Mint(bad, types.NewTokenID(1), nil); !errors.Is(err, ErrInvalidAccount) {
		t.Fatalf("Mint to zero account = %v, want ErrInvalidAccount", err)
	}
	if _, err := l.TokenMetadata(types.NewTokenID(1)); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("TokenMetadata = %v, want ErrTokenNotFound", err)
	}

	mustMint(t, l, alice, 2)
	if _, err := l.Transfer(alice, bad, types.NewTokenID(2)); !errors.Is(err, ErrInvalidAccount) {
		t.Errorf("Transfer to zero account = %v, want ErrInvalidAccount", err)
	}
	if _, err := l.Approve(alice, bad, types.NewTokenID(2)); !errors.Is(err, ErrInvalidAccount) {
		t.Errorf("Approve zero account = %v, want ErrInvalidAccount", err)
	}
	if l.TxCount() != 1 || l.TotalSupply() != 1 {
		t.Errorf("counters moved: tx=%d supply=%d", l.TxCount(), l.TotalSupply())
	}
	mustVerify(t, l)

	reopened := openTestLedger(t, db)
	if owner, err := reopened.OwnerOf(types.NewTokenID(2)); err != nil || *owner != alice {
		t.Errorf("reopened OwnerOf = %v, %v", owner, err)
	}
	if reopened.TxCount() != 1 {
		t.Errorf("reopened TxCount = %d, want 1", reopened.TxCount())
	}
}

func TestCommitment(t *testing.T) {
	l := newTestLedger(t)
	empty, err := l.Commitment()
	if err != nil || !empty.IsZero() {
		t.Fatalf("empty Commitment = %s, %v", empty, err)
	}

	mustMint(t, l, alice, 1)
	mustMint(t, l, alice, 2)
	c1, _ := l.Commitment()
	l.Approve(alice, bob, types.NewTokenID(1))
	c2, _ := l.Commitment()
	if c1 == c2 {
		t.Error("approve did not change the commitment")
	}

	// Same ownership state reached in a different order gives the same root.
	other := newTestLedger(t)
	mustMint(t, other, alice, 2)
	mustMint(t, other, alice, 1)
	other.Approve(alice, bob, types.NewTokenID(1))
	c3, _ := other.Commitment()
	if c2 != c3 {
		t.Errorf("commitments differ for identical state: %s vs %s", c2, c3)
	}
}

func TestVerifyDetectsDivergence(t *testing.T) {
	l := newTestLedger(t)
	mustMint(t, l, alice, 1)
	l.owners.Reindex(types.NewTokenID(1), &alice, &bob)

	if err := l.Verify(); !errors.Is(err, ErrIndexMismatch) {
		t.Fatalf("Verify = %v, want ErrIndexMismatch", err)
	}
}

func TestMetrics(t *testing.T) {
	l := newTestLedger(t)
	reg := prometheus.NewRegistry()
	l.SetMetrics(metrics.NewLedgerMetrics(reg))

	mustMint(t, l, alice, 1)
	l.Mint(alice, types.NewTokenID(1), nil)
	l.Transfer(alice, bob, types.NewTokenID(1))

	n, err := testutil.GatherAndCount(reg, "nftledger_ledger_operations_total")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 3 {
		t.Errorf("operation series = %d, want 3", n)
	}
}

func TestSystemClockNeverGoesBackwards(t *testing.T) {
	c := &SystemClock{last: ^uint64(0) - 1}
	if got := c.Now(); got != ^uint64(0)-1 {
		t.Errorf("Now = %d, want clamp to last", got)
	}
}
