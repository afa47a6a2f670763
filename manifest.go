// manifest.go — YAML manifest driving a ManifestPolicy.
//
// Embedders describe what a script installation may do in a small YAML
// document:
//
//	imports:
//	  - lyng.math
//	  - lyng.time
//	  - acme.*
//	symbols:
//	  lyng.math: [sqrt, pow]
//	capabilities:
//	  lyng.fs: [read]
//	  lyng.process: [env]
//
// Import patterns support a trailing '*' wildcard segment. A package listed
// under symbols restricts selective imports to the named symbols; packages
// not listed there export freely (the import gate has already passed).
// Capability values are per-package operation lists, with "*" allowing all
// operations.
package lyng

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk policy document.
type Manifest struct {
	Imports      []string            `yaml:"imports"`
	Symbols      map[string][]string `yaml:"symbols"`
	Capabilities map[string][]string `yaml:"capabilities"`
}

// ManifestPolicy is the AccessPolicy derived from a Manifest.
type ManifestPolicy struct {
	m Manifest
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*ManifestPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading manifest %s", path)
	}
	return ParseManifest(data)
}

// ParseManifest builds a policy from YAML bytes.
func ParseManifest(data []byte) (*ManifestPolicy, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "parsing manifest")
	}
	return &ManifestPolicy{m: m}, nil
}

func (p *ManifestPolicy) CheckImport(pkg string) error {
	for _, pat := range p.m.Imports {
		if matchPkg(pat, pkg) {
			return nil
		}
	}
	return errors.Errorf("package %s is not allowed by the manifest", pkg)
}

func (p *ManifestPolicy) CheckImportSymbol(pkg, sym string) error {
	syms, ok := p.m.Symbols[pkg]
	if !ok {
		return nil
	}
	for _, s := range syms {
		if s == "*" || s == sym {
			return nil
		}
	}
	return errors.Errorf("symbol %s.%s is not allowed by the manifest", pkg, sym)
}

func (p *ManifestPolicy) CheckCapability(pkg, op string) error {
	ops, ok := p.m.Capabilities[pkg]
	if !ok {
		return errors.Errorf("package %s has no granted capabilities", pkg)
	}
	for _, o := range ops {
		if o == "*" || o == op {
			return nil
		}
	}
	return errors.Errorf("operation %s.%s is not granted by the manifest", pkg, op)
}

// matchPkg matches a dotted package name against a pattern, where a final
// '*' segment matches any suffix: "acme.*" covers "acme.util.io".
func matchPkg(pat, pkg string) bool {
	if pat == pkg || pat == "*" {
		return true
	}
	if strings.HasSuffix(pat, ".*") {
		return strings.HasPrefix(pkg, pat[:len(pat)-1])
	}
	return false
}
