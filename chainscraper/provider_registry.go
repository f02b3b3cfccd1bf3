package chainscraper

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tos-network/ichain-scraper/config"
)

// ProviderFactory builds a Provider for one configured chain. Each chain
// family (EVM JSON-RPC, a Cosmos SDK indexer, ...) registers its own
// factory under a Kind string; decoding on-chain logs is family-specific
// and deliberately out of scope for this package; only the registry is.
type ProviderFactory func(cc config.ChainConfig) (Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]ProviderFactory{}
)

// RegisterProviderFactory binds kind to f. Call from an init() in the
// package that implements a concrete Provider for that chain family;
// registering the same kind twice panics, mirroring database/sql's
// driver registry.
func RegisterProviderFactory(kind string, f ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, dup := factories[kind]; dup {
		panic("chainscraper: RegisterProviderFactory called twice for kind " + kind)
	}
	factories[kind] = f
}

// NewProvider looks up the factory registered for cc.Kind and builds a
// Provider from it.
func NewProvider(cc config.ChainConfig) (Provider, error) {
	factoriesMu.RLock()
	f, ok := factories[cc.Kind]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("chainscraper: no provider factory registered for kind %q (known kinds: %v)", cc.Kind, registeredKinds())
	}
	return f(cc)
}

func registeredKinds() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
