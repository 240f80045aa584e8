// Package node assembles storage, registry and ledger from configuration.
package node

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-nft/config"
	"github.com/Klingon-tech/klingnet-nft/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-nft/internal/log"
	"github.com/Klingon-tech/klingnet-nft/internal/metrics"
	"github.com/Klingon-tech/klingnet-nft/internal/registry"
	"github.com/Klingon-tech/klingnet-nft/internal/storage"
	"github.com/Klingon-tech/klingnet-nft/pkg/types"
)

// Key namespaces inside the shared database.
var (
	prefixLedger   = []byte("l/")
	prefixRegistry = []byte("g/")
)

// Node owns the open database and the components built on it.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	db       storage.DB
	ledger   *ledger.Ledger
	registry *registry.Registry
}

// New opens storage per cfg and loads the registry and the ledger.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, expandHome(cfg.Log.File)); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.Node

	// ── 2. Open storage ─────────────────────────────────────────────
	db, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug().
		Str("backend", string(cfg.Storage.Backend)).
		Str("path", cfg.LedgerDir()).
		Msg("Database opened")

	clock := &ledger.SystemClock{}

	// ── 3. Registry ─────────────────────────────────────────────────
	reg, err := registry.New(storage.NewPrefixDB(db, prefixRegistry), clock)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load registry: %w", err)
	}

	// ── 4. Ledger ───────────────────────────────────────────────────
	l, err := ledger.Open(storage.NewPrefixDB(db, prefixLedger))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	l.SetClock(clock)
	l.SetMetrics(metrics.Ledger())

	return &Node{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		ledger:   l,
		registry: reg,
	}, nil
}

func openStorage(cfg *config.Config) (storage.DB, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return storage.NewMemory(), nil
	case config.BackendBadger:
		path := expandHome(cfg.LedgerDir())
		db, err := storage.NewBadger(path)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// Ledger returns the token ledger.
func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

// Registry returns the collection registry.
func (n *Node) Registry() *registry.Registry {
	return n.registry
}

// InitRegistry initializes the registry from the configured metadata with
// deployer as the first custodian.
func (n *Node) InitRegistry(deployer types.Principal) error {
	args := registry.InitArgs{
		Name:   n.cfg.Registry.Name,
		Symbol: n.cfg.Registry.Symbol,
		Logo:   n.cfg.Registry.Logo,
	}
	for _, c := range n.cfg.Registry.Custodians {
		p, err := types.ParsePrincipal(c)
		if err != nil {
			return fmt.Errorf("custodian %q: %w", c, err)
		}
		args.Custodians = append(args.Custodians, p)
	}
	return n.registry.Init(deployer, args)
}

// Close releases the database.
func (n *Node) Close() error {
	if n.db == nil {
		return nil
	}
	err := n.db.Close()
	n.db = nil
	n.logger.Debug().Err(err).Msg("Database closed")
	return err
}
