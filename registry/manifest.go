package registry

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-isolator/types"
)

// Manifest adjusts discovered tests without rebuilding the test binary
type Manifest struct {
	DefaultTimeout time.Duration  `yaml:"default_timeout"`
	Tests          []TestOverride `yaml:"tests"`
}

// TestOverride applies to a test by exact name, or to every test under a
// group when the name ends with the name separator.
type TestOverride struct {
	Name    string        `yaml:"name"`
	Timeout time.Duration `yaml:"timeout"`
	Tags    []string      `yaml:"tags"`
	Skip    string        `yaml:"skip"`
}

// Matches reports whether the override applies to the named test
func (o TestOverride) Matches(name string) bool {
	if strings.HasSuffix(o.Name, types.NameSeparator) {
		return strings.HasPrefix(name, o.Name)
	}
	return o.Name == name
}

// LoadManifest reads and validates a manifest file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates manifest YAML
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest for entries that can never apply
func (m *Manifest) Validate() error {
	if m.DefaultTimeout < 0 {
		return fmt.Errorf("default_timeout cannot be negative")
	}
	for i, o := range m.Tests {
		if o.Name == "" {
			return fmt.Errorf("manifest test %d: name is required", i)
		}
		if o.Timeout < 0 {
			return fmt.Errorf("manifest test %q: timeout cannot be negative", o.Name)
		}
	}
	return nil
}

// Apply returns the descriptors with every matching override applied, in
// manifest order, and the names of overrides that matched nothing.
func (m *Manifest) Apply(descriptors []types.TestDescriptor) ([]types.TestDescriptor, []string) {
	if m == nil {
		return descriptors, nil
	}

	used := make([]bool, len(m.Tests))
	out := make([]types.TestDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		for i, o := range m.Tests {
			if !o.Matches(d.Name()) {
				continue
			}
			used[i] = true
			d = d.With(o.options()...)
		}
		out = append(out, d)
	}

	var unused []string
	for i, o := range m.Tests {
		if !used[i] && !slices.Contains(unused, o.Name) {
			unused = append(unused, o.Name)
		}
	}
	return out, unused
}

func (o TestOverride) options() []types.DescriptorOption {
	var opts []types.DescriptorOption
	if o.Timeout > 0 {
		opts = append(opts, types.WithTimeout(o.Timeout))
	}
	if len(o.Tags) > 0 {
		opts = append(opts, types.WithTags(o.Tags...))
	}
	if o.Skip != "" {
		opts = append(opts, types.WithSkip(o.Skip))
	}
	return opts
}
