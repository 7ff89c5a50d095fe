package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-isolator/protocol"
	"github.com/ethereum-optimism/infra/op-isolator/types"
)

const brokenListingEnv = "OP_ISOLATOR_REGISTRY_BROKEN"

// TestMain lets the test binary stand in for a test binary being listed
func TestMain(m *testing.M) {
	if os.Getenv(protocol.EnvList) != "" {
		if os.Getenv(brokenListingEnv) != "" {
			fmt.Fprintln(os.Stderr, "listing exploded")
			os.Exit(3)
		}
		suite, err := types.FromDescriptors(
			types.NewDescriptor("arith/add"),
			types.NewDescriptor("arith/div by zero", types.WithTimeout(2*time.Second)),
			types.NewDescriptor("net/dial", types.WithTags("slow")),
		)
		if err != nil {
			os.Exit(2)
		}
		if err := protocol.WriteListing(os.Stdout, protocol.ListingFromSuite(suite)); err != nil {
			os.Exit(2)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRegistryDiscovery(t *testing.T) {
	reg, err := NewRegistry(context.Background(), Config{
		Log:    testLogger(),
		Binary: os.Args[0],
	})
	require.NoError(t, err)

	suite := reg.Suite()
	assert.Equal(t, []string{"arith/add", "arith/div by zero", "net/dial"}, suite.Names())

	d, ok := suite.Lookup("arith/div by zero")
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, d.Timeout())
	assert.Equal(t, time.Duration(0), reg.DefaultTimeout())
}

func TestRegistryDiscoveryFailure(t *testing.T) {
	t.Setenv(brokenListingEnv, "1")

	_, err := NewRegistry(context.Background(), Config{
		Log:    testLogger(),
		Binary: os.Args[0],
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing exploded")
}

func TestRegistryWithManifest(t *testing.T) {
	path := writeManifest(t, `
default_timeout: 30s
tests:
  - name: "arith/"
    tags: [math]
  - name: "arith/div by zero"
    timeout: 5s
    skip: "flaky on CI"
  - name: "missing/test"
`)

	reg, err := NewRegistry(context.Background(), Config{
		Log:          testLogger(),
		Binary:       os.Args[0],
		ManifestFile: path,
	})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, reg.DefaultTimeout())

	div, ok := reg.Suite().Lookup("arith/div by zero")
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, div.Timeout())
	assert.Equal(t, "flaky on CI", div.SkipReason())
	assert.True(t, div.HasTag("math"))

	add, ok := reg.Suite().Lookup("arith/add")
	require.True(t, ok)
	assert.True(t, add.HasTag("math"))
	assert.False(t, add.Skipped())

	dial, ok := reg.Suite().Lookup("net/dial")
	require.True(t, ok)
	assert.False(t, dial.HasTag("math"))

	selected := reg.Select(types.Filter{Tags: []string{"math"}})
	assert.Equal(t, []string{"arith/add", "arith/div by zero"}, selected.Names())
}

func TestRegistryProvidedSuite(t *testing.T) {
	suite, err := types.FromDescriptors(types.NewDescriptor("a"), types.NewDescriptor("b"))
	require.NoError(t, err)

	reg, err := NewRegistry(context.Background(), Config{Log: testLogger(), Suite: suite})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, reg.Suite().Names())
	assert.Same(t, reg.Suite(), reg.Select(types.Filter{}))

	require.NoError(t, reg.Reload(context.Background()))
	assert.Equal(t, []string{"a", "b"}, reg.Suite().Names())
}

func TestRegistryConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "no binary and no suite",
			cfg:  Config{Log: testLogger()},
		},
		{
			name: "missing manifest",
			cfg:  Config{Log: testLogger(), Binary: os.Args[0], ManifestFile: "nonexistent.yaml"},
		},
		{
			name: "missing binary",
			cfg:  Config{Log: testLogger(), Binary: "/nonexistent/op-isolator-binary"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(context.Background(), tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestParseManifest(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{name: "empty", content: ""},
		{name: "durations", content: "default_timeout: 1m\ntests:\n  - name: a\n    timeout: 250ms\n"},
		{name: "missing name", content: "tests:\n  - timeout: 1s\n", wantErr: true},
		{name: "negative timeout", content: "tests:\n  - name: a\n    timeout: -1s\n", wantErr: true},
		{name: "negative default", content: "default_timeout: -5s\n", wantErr: true},
		{name: "bad yaml", content: "tests: [", wantErr: true},
		{name: "bad duration", content: "default_timeout: soon\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.content))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOverrideMatches(t *testing.T) {
	group := TestOverride{Name: "arith/"}
	assert.True(t, group.Matches("arith/add"))
	assert.True(t, group.Matches("arith/nested/sub"))
	assert.False(t, group.Matches("arith"))
	assert.False(t, group.Matches("arithmetic/add"))

	exact := TestOverride{Name: "arith/add"}
	assert.True(t, exact.Matches("arith/add"))
	assert.False(t, exact.Matches("arith/add/more"))
}

func TestManifestApply(t *testing.T) {
	m := &Manifest{Tests: []TestOverride{
		{Name: "a", Timeout: time.Second},
		{Name: "a", Timeout: 2 * time.Second},
		{Name: "nope/"},
	}}
	in := []types.TestDescriptor{types.NewDescriptor("a"), types.NewDescriptor("b")}

	out, unused := m.Apply(in)
	require.Len(t, out, 2)
	assert.Equal(t, 2*time.Second, out[0].Timeout(), "later entries win")
	assert.Equal(t, time.Duration(0), out[1].Timeout())
	assert.Equal(t, []string{"nope/"}, unused)
	assert.Equal(t, time.Duration(0), in[0].Timeout(), "input descriptors are not modified")

	var nilManifest *Manifest
	out, unused = nilManifest.Apply(in)
	assert.Equal(t, in, out)
	assert.Empty(t, unused)
}
