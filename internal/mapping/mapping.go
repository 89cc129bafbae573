// Package mapping loads the name-to-dotted-path tables that let a rule
// written against logical field names (EventID, CommandLine, User) run
// against more than one document shape. A mapping never becomes part of
// the tau AST: the same optimised expression is reused unchanged across
// every Hunt that pairs it with a different mapping.
package mapping

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind identifies the document shape a Mapping applies to. A Hunt only
// pairs a rule with mappings whose Kind matches the rule's declared kind.
type Kind string

const (
	KindEVTX     Kind = "evtx"
	KindHive     Kind = "hive"
	KindESEDB    Kind = "esedb"
	KindMFT      Kind = "mft"
	KindJSON     Kind = "json"
	KindXML      Kind = "xml"
	KindGeneric  Kind = "generic"
	KindUnspecified Kind = ""
)

// Mapping is the plain name -> dotted path table for one document shape.
// Extensions lists the file extensions Discovery should associate with
// this mapping's Kind when a hunt has no explicit --extension filter.
type Mapping struct {
	Name       string            `yaml:"name"`
	Kind       Kind              `yaml:"kind"`
	Extensions []string          `yaml:"extensions,omitempty"`
	Fields     map[string]string `yaml:"fields"`

	// Path is the file this mapping was loaded from; empty for
	// programmatically constructed mappings (e.g. in tests).
	Path string `yaml:"-"`
}

// Resolve returns the dotted path a logical field name should be read
// from. A path that already contains a dot is assumed fully qualified
// and bypasses the table untouched, matching a rule author who already
// wrote the concrete path rather than a mapped logical name.
func (m Mapping) Resolve(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	if path, ok := m.Fields[name]; ok {
		return path
	}
	return name
}

// Resolver adapts a Mapping to the tau.Resolver function signature
// without internal/mapping importing internal/tau, keeping the
// dependency direction mapping -> (nothing) and hunt -> mapping.
func (m Mapping) Resolver() func(string) string {
	return m.Resolve
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads one mapping file.
func Load(path string) (Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Mapping{}, err
	}
	var m Mapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Mapping{}, fmt.Errorf("mapping: %s: %w", path, err)
	}
	if m.Fields == nil {
		return Mapping{}, fmt.Errorf("mapping: %s: no fields declared", path)
	}
	if m.Kind == KindUnspecified {
		return Mapping{}, fmt.Errorf("mapping: %s: missing kind", path)
	}
	if m.Name == "" {
		base := filepath.Base(path)
		m.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	m.Path = path
	return m, nil
}

// LoadDir walks a directory of mapping files non-recursively, the same
// "_prefix disables the file" convention the rule loader uses, and
// returns them sorted by filename so mapping order is deterministic
// across runs and platforms.
func LoadDir(dir string) ([]Mapping, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isYAMLFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var out []Mapping
	for _, name := range names {
		if strings.HasPrefix(name, "_") {
			continue
		}
		m, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Extensions unions the file extensions declared by every mapping in ms,
// deduplicated and lower-cased, for Discovery to consult when a hunt
// hasn't been given an explicit extension filter.
func Extensions(ms []Mapping) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range ms {
		for _, ext := range m.Extensions {
			ext = strings.ToLower(ext)
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			if !seen[ext] {
				seen[ext] = true
				out = append(out, ext)
			}
		}
	}
	sort.Strings(out)
	return out
}
