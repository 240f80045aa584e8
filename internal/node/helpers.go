package node

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/klingnet-nft/pkg/crypto"
	"github.com/Klingon-tech/klingnet-nft/pkg/types"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// LoadKey reads a hex-encoded 32-byte private key from a file.
func LoadKey(path string) (*crypto.PrivateKey, error) {
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	keyBytes, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return crypto.PrivateKeyFromBytes(keyBytes)
}

// WriteKey writes key hex-encoded to path, refusing to overwrite.
func WriteKey(path string, key *crypto.PrivateKey) error {
	path = expandHome(path)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("key file %s already exists", path)
	}
	return os.WriteFile(path, []byte(hex.EncodeToString(key.Serialize())+"\n"), 0600)
}

// ResolvePrincipal determines a caller identity from an explicit hex
// principal or, failing that, from a key file.
func ResolvePrincipal(principalHex, keyFile string) (types.Principal, error) {
	if principalHex != "" {
		p, err := types.ParsePrincipal(principalHex)
		if err != nil {
			return "", fmt.Errorf("invalid principal: %w", err)
		}
		if p.IsAnonymous() {
			return "", fmt.Errorf("invalid principal: empty")
		}
		return p, nil
	}
	if keyFile != "" {
		key, err := LoadKey(keyFile)
		if err != nil {
			return "", fmt.Errorf("load key %s: %w", keyFile, err)
		}
		defer key.Zero()
		return key.Principal(), nil
	}
	return "", fmt.Errorf("caller requires a principal or a key file")
}

// ResolveAccount parses an account identifier given either as 64 hex
// characters or as a hex principal, which maps to its default subaccount.
func ResolveAccount(s string) (types.AccountID, error) {
	if len(s) == 2*types.AccountIDSize {
		return types.ParseAccountID(s)
	}
	p, err := types.ParsePrincipal(s)
	if err != nil || p.IsAnonymous() {
		return types.AccountID{}, fmt.Errorf("%q is neither an account identifier nor a principal", s)
	}
	return types.AccountIDOf(p), nil
}
