package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-isolator/types"
)

// DefaultDiscoveryTimeout bounds how long a binary may take to print its listing
const DefaultDiscoveryTimeout = 30 * time.Second

// Registry owns the suite a run executes: discovered from the test binary or
// provided directly, with the manifest applied.
type Registry struct {
	config   Config
	manifest *Manifest
	suite    *types.Suite
	mu       sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log              log.Logger
	Binary           string
	Args             []string
	ManifestFile     string
	DiscoveryTimeout time.Duration
	// Suite, when set, is used instead of discovering tests from Binary
	Suite *types.Suite
}

// NewRegistry creates a new registry instance and loads its suite
func NewRegistry(ctx context.Context, cfg Config) (*Registry, error) {
	if cfg.Suite == nil && cfg.Binary == "" {
		return nil, fmt.Errorf("binary is required when no suite is provided")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.DiscoveryTimeout <= 0 {
		cfg.DiscoveryTimeout = DefaultDiscoveryTimeout
	}

	r := &Registry{config: cfg}
	if cfg.ManifestFile != "" {
		manifest, err := LoadManifest(cfg.ManifestFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load manifest %s: %w", cfg.ManifestFile, err)
		}
		r.manifest = manifest
	}

	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload rebuilds the suite. Discovered suites are listed again so a rebuilt
// binary is picked up between runs.
func (r *Registry) Reload(ctx context.Context) error {
	descriptors, err := r.load(ctx)
	if err != nil {
		return err
	}

	descriptors, unused := r.manifest.Apply(descriptors)
	for _, name := range unused {
		r.config.Log.Warn("Manifest entry matches no test", "name", name)
	}

	suite, err := types.Build(slices.Values(descriptors))
	if err != nil {
		return fmt.Errorf("failed to build suite: %w", err)
	}

	r.mu.Lock()
	r.suite = suite
	r.mu.Unlock()

	r.config.Log.Debug("Registry loaded", "tests", suite.Len())
	return nil
}

func (r *Registry) load(ctx context.Context) ([]types.TestDescriptor, error) {
	if r.config.Suite != nil {
		return r.config.Suite.Descriptors(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.DiscoveryTimeout)
	defer cancel()

	listing, err := Discover(ctx, r.config.Binary, r.config.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to discover tests: %w", err)
	}
	descriptors := make([]types.TestDescriptor, 0, len(listing.Tests))
	for _, t := range listing.Tests {
		descriptors = append(descriptors, t.Descriptor())
	}
	return descriptors, nil
}

// Suite returns the full suite
func (r *Registry) Suite() *types.Suite {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.suite
}

// Select returns the tests that pass the filter, in suite order
func (r *Registry) Select(f types.Filter) *types.Suite {
	suite := r.Suite()
	if f.IsZero() {
		return suite
	}
	return suite.Filter(f)
}

// DefaultTimeout returns the manifest's default timeout, zero when unset
func (r *Registry) DefaultTimeout() time.Duration {
	if r.manifest == nil {
		return 0
	}
	return r.manifest.DefaultTimeout
}
