package cache

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed manifest.yaml
var defaultManifest []byte

// Manifest lists the assets and naming of one cache version.
type Manifest struct {
	Version    string            `yaml:"version"`
	Prefix     string            `yaml:"prefix"`
	Static     []string          `yaml:"static"`
	Essential  []string          `yaml:"essential"`
	Shell      string            `yaml:"shell"`
	Aliases    map[string]string `yaml:"aliases"`
	APIDomains []string          `yaml:"api_domains"`
}

// DefaultManifest returns the built-in manifest.
func DefaultManifest() Manifest {
	m, err := ParseManifest(defaultManifest)
	if err != nil {
		panic(fmt.Sprintf("cache: built-in manifest: %v", err))
	}
	return m
}

// LoadManifest reads a manifest from path. An empty path yields the built-in
// manifest.
func LoadManifest(path string) (Manifest, error) {
	if path == "" {
		return DefaultManifest(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates a YAML manifest.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return Manifest{}, fmt.Errorf("invalid manifest: %w", err)
	}
	return m, nil
}

func (m Manifest) validate() error {
	if m.Version == "" {
		return fmt.Errorf("version cannot be empty")
	}
	if m.Prefix == "" {
		return fmt.Errorf("prefix cannot be empty")
	}
	if strings.ContainsAny(m.Prefix+m.Version, `/\`) {
		return fmt.Errorf("prefix and version cannot contain path separators")
	}
	if len(m.Static) == 0 {
		return fmt.Errorf("static asset list cannot be empty")
	}
	if len(m.Essential) == 0 {
		return fmt.Errorf("essential asset list cannot be empty")
	}
	for i, asset := range m.Essential {
		if !slices.Contains(m.Static, asset) {
			return fmt.Errorf("essential[%d] (%s) is not a static asset", i, asset)
		}
	}
	if m.Shell == "" {
		return fmt.Errorf("shell cannot be empty")
	}
	if !slices.Contains(m.Essential, m.Shell) {
		return fmt.Errorf("shell %s must be an essential asset", m.Shell)
	}
	return nil
}

// StaticName is the name of the app shell generation, e.g. "hours-tracker-static-v1".
func (m Manifest) StaticName() string { return m.Prefix + "static-" + m.Version }

// DynamicName is the name of the runtime generation, e.g. "hours-tracker-dynamic-v1".
func (m Manifest) DynamicName() string { return m.Prefix + "dynamic-" + m.Version }

// Owns reports whether a generation name carries the application prefix.
func (m Manifest) Owns(generation string) bool {
	return strings.HasPrefix(generation, m.Prefix)
}

// IsAPIHost reports whether host equals or is a subdomain of an API domain.
func (m Manifest) IsAPIHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, d := range m.APIDomains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// canonical maps an asset path through the alias table.
func (m Manifest) canonical(path string) string {
	if to, ok := m.Aliases[path]; ok {
		return to
	}
	return path
}
