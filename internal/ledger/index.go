package ledger

import (
	"bytes"
	"sort"

	"github.com/Klingon-tech/klingnet-nft/pkg/types"
)

// Index maps accounts to the set of tokens they hold in one role (owner or
// operator). An account is present only while its set is non-empty.
type Index struct {
	name    string
	buckets map[types.AccountID]map[types.TokenID]struct{}
}

// NewIndex creates an empty index. name labels invariant violations.
func NewIndex(name string) *Index {
	return &Index{
		name:    name,
		buckets: make(map[types.AccountID]map[types.TokenID]struct{}),
	}
}

// Reindex moves id from prev to next. Either side may be nil. Removing a
// token the index does not hold for prev panics with *InvariantError, also
// when prev and next are the same account.
func (x *Index) Reindex(id types.TokenID, prev, next *types.AccountID) {
	if prev != nil {
		x.remove(id, *prev)
	}
	if next != nil {
		x.add(id, *next)
	}
}

func (x *Index) add(id types.TokenID, a types.AccountID) {
	set, ok := x.buckets[a]
	if !ok {
		set = make(map[types.TokenID]struct{})
		x.buckets[a] = set
	}
	set[id] = struct{}{}
}

func (x *Index) remove(id types.TokenID, a types.AccountID) {
	set, ok := x.buckets[a]
	if !ok {
		panic(&InvariantError{Index: x.name, Account: a, Token: id, Reason: "account not indexed"})
	}
	if _, ok := set[id]; !ok {
		panic(&InvariantError{Index: x.name, Account: a, Token: id, Reason: "token not in account set"})
	}
	delete(set, id)
	if len(set) == 0 {
		delete(x.buckets, a)
	}
}

// Tokens returns the account's tokens in ascending order. ok is false when
// the account holds nothing.
func (x *Index) Tokens(a types.AccountID) (ids []types.TokenID, ok bool) {
	set, ok := x.buckets[a]
	if !ok {
		return nil, false
	}
	ids = make([]types.TokenID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	types.SortTokenIDs(ids)
	return ids, true
}

// Len returns how many tokens a holds.
func (x *Index) Len(a types.AccountID) int {
	return len(x.buckets[a])
}

// Contains reports whether a holds id.
func (x *Index) Contains(a types.AccountID, id types.TokenID) bool {
	_, ok := x.buckets[a][id]
	return ok
}

// Accounts returns every indexed account in byte order.
func (x *Index) Accounts() []types.AccountID {
	out := make([]types.AccountID, 0, len(x.buckets))
	for a := range x.buckets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// Size returns the number of accounts with a non-empty set.
func (x *Index) Size() int {
	return len(x.buckets)
}

// Equal reports whether both indices hold exactly the same mapping.
func (x *Index) Equal(o *Index) bool {
	if len(x.buckets) != len(o.buckets) {
		return false
	}
	for a, set := range x.buckets {
		other, ok := o.buckets[a]
		if !ok || len(other) != len(set) {
			return false
		}
		for id := range set {
			if _, ok := other[id]; !ok {
				return false
			}
		}
	}
	return true
}

// rebuildIndices derives fresh owner and operator indices from the records.
func rebuildIndices(store *RecordStore) (owners, operators *Index, err error) {
	owners = NewIndex("owner")
	operators = NewIndex("operator")
	err = store.ForEach(func(rec *TokenRecord) error {
		owners.Reindex(rec.ID, nil, rec.Owner)
		operators.Reindex(rec.ID, nil, rec.Operator)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return owners, operators, nil
}
