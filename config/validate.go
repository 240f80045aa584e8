package config

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-nft/internal/log"
	"github.com/Klingon-tech/klingnet-nft/pkg/types"
)

// Validate checks the configuration for operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch cfg.Storage.Backend {
	case BackendMemory:
	case BackendBadger:
		if cfg.DataDir == "" {
			return fmt.Errorf("storage.backend=badger requires datadir")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q", BackendMemory, BackendBadger)
	}
	if cfg.Log.Level != "" && !log.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log.level %q is not one of trace, debug, info, warn, error", cfg.Log.Level)
	}
	if len(cfg.Registry.Symbol) > 16 {
		return fmt.Errorf("registry.symbol must be at most 16 characters")
	}
	for i, c := range cfg.Registry.Custodians {
		p, err := types.ParsePrincipal(c)
		if err != nil {
			return fmt.Errorf("registry.custodians[%d]: %w", i, err)
		}
		if p.IsAnonymous() {
			return fmt.Errorf("registry.custodians[%d] is empty", i)
		}
	}
	return nil
}
