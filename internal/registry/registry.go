// Package registry holds the collection-level metadata that surrounds the
// ledger: display metadata, the custodian set, the designated minter and the
// token-index registry.
package registry

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-nft/internal/ledger"
	"github.com/Klingon-tech/klingnet-nft/internal/log"
	"github.com/Klingon-tech/klingnet-nft/internal/storage"
	"github.com/Klingon-tech/klingnet-nft/pkg/types"
)

// Registry errors.
var (
	ErrAlreadyInitialized = errors.New("registry already initialized")
	ErrNotInitialized     = errors.New("registry not initialized")
	ErrNotCustodian       = errors.New("only a custodian can set the minter")
	ErrAnonymous          = errors.New("anonymous principal")
)

var (
	keyMetadata = []byte("meta")
	keyMinter   = []byte("minter")
	prefixIndex = []byte("idx/") // idx/<uint32 BE> -> account string
)

// Metadata describes the collection.
type Metadata struct {
	Name       string            `json:"name,omitempty"`
	Symbol     string            `json:"symbol,omitempty"`
	Logo       string            `json:"logo,omitempty"`
	Custodians []types.Principal `json:"custodians"`
	CreatedAt  uint64            `json:"created_at"`
	UpgradedAt uint64            `json:"upgraded_at"`
}

// InitArgs are the optional settings applied by Init.
type InitArgs struct {
	Name       string
	Symbol     string
	Logo       string
	Custodians []types.Principal
}

// Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	db     storage.DB
	clock  ledger.Clock
	logger zerolog.Logger

	meta   *Metadata // nil until Init
	minter types.Principal
	index  map[uint32]string
}

// New loads the registry stored in db.
func New(db storage.DB, clock ledger.Clock) (*Registry, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	if clock == nil {
		clock = &ledger.SystemClock{}
	}
	r := &Registry{
		db:     db,
		clock:  clock,
		logger: log.Registry,
		index:  make(map[uint32]string),
	}

	data, err := db.Get(keyMetadata)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load metadata: %w", err)
	default:
		var meta Metadata
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		r.meta = &meta
	}

	data, err = db.Get(keyMinter)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load minter: %w", err)
	default:
		r.minter = types.Principal(data)
	}

	err = db.ForEach(prefixIndex, func(key, value []byte) error {
		if len(key) != len(prefixIndex)+4 {
			return fmt.Errorf("malformed index key %x", key)
		}
		r.index[binary.BigEndian.Uint32(key[len(prefixIndex):])] = string(value)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load token index: %w", err)
	}
	return r, nil
}

// Init records the collection metadata. The deployer is always a custodian
// and becomes the initial minter.
func (r *Registry) Init(deployer types.Principal, args InitArgs) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.meta != nil {
		return ErrAlreadyInitialized
	}
	if deployer.IsAnonymous() {
		return fmt.Errorf("init: deployer: %w", ErrAnonymous)
	}

	custodians := []types.Principal{deployer}
	for _, c := range args.Custodians {
		if !c.IsAnonymous() && !slices.Contains(custodians, c) {
			custodians = append(custodians, c)
		}
	}
	slices.Sort(custodians)

	now := r.clock.Now()
	meta := &Metadata{
		Name:       args.Name,
		Symbol:     args.Symbol,
		Logo:       args.Logo,
		Custodians: custodians,
		CreatedAt:  now,
		UpgradedAt: now,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	batch := storage.NewBatch(r.db)
	defer batch.Discard()
	if err := batch.Put(keyMetadata, data); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := batch.Put(keyMinter, deployer.Bytes()); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	r.meta = meta
	r.minter = deployer

	r.logger.Info().
		Str("name", meta.Name).
		Str("symbol", meta.Symbol).
		Int("custodians", len(custodians)).
		Msg("Registry initialized")
	return nil
}

// Initialized reports whether Init has run.
func (r *Registry) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.meta != nil
}

// Metadata returns a copy of the collection metadata.
func (r *Registry) Metadata() (Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.meta == nil {
		return Metadata{}, ErrNotInitialized
	}
	m := *r.meta
	m.Custodians = slices.Clone(r.meta.Custodians)
	return m, nil
}

// Custodians returns the custodian set in byte order.
func (r *Registry) Custodians() []types.Principal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.meta == nil {
		return nil
	}
	return slices.Clone(r.meta.Custodians)
}

// IsCustodian reports whether p is a custodian.
func (r *Registry) IsCustodian(p types.Principal) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isCustodian(p)
}

func (r *Registry) isCustodian(p types.Principal) bool {
	return r.meta != nil && slices.Contains(r.meta.Custodians, p)
}

// Minter returns the designated minter. It is empty before Init.
func (r *Registry) Minter() types.Principal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.minter
}

// SetMinter designates a new minter. Only custodians may call it.
func (r *Registry) SetMinter(caller, minter types.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isCustodian(caller) {
		return ErrNotCustodian
	}
	if minter.IsAnonymous() {
		return fmt.Errorf("set minter: %w", ErrAnonymous)
	}
	if err := r.db.Put(keyMinter, minter.Bytes()); err != nil {
		return fmt.Errorf("set minter: %w", err)
	}
	r.minter = minter
	r.logger.Info().Str("minter", minter.String()).Msg("Minter changed")
	return nil
}

// AddIndex records account under token index idx, replacing any previous
// entry.
func (r *Registry) AddIndex(idx uint32, account string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(account) == "" {
		return fmt.Errorf("add index %d: empty account", idx)
	}
	if err := r.db.Put(indexKey(idx), []byte(account)); err != nil {
		return fmt.Errorf("add index %d: %w", idx, err)
	}
	r.index[idx] = account
	return nil
}

// Index returns a copy of the token-index registry.
func (r *Registry) Index() map[uint32]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.index)
}

func indexKey(idx uint32) []byte {
	key := make([]byte, len(prefixIndex)+4)
	copy(key, prefixIndex)
	binary.BigEndian.PutUint32(key[len(prefixIndex):], idx)
	return key
}
