package rule

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// WalkFiles returns every candidate rule file under root, depth-first,
// sorted by path at each directory level so load order (and therefore
// any identifier- or index-derived ordering downstream) is deterministic
// across runs and platforms. A file whose base name starts with "_" is
// treated as disabled and skipped, the same convention mapping.LoadDir
// uses. root may itself be a single file.
func WalkFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if !isYAMLFile(root) {
			return nil, fmt.Errorf("%s: not a YAML rule file", root)
		}
		return []string{root}, nil
	}

	var out []string
	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, e := range entries {
			name := e.Name()
			if strings.HasPrefix(name, "_") {
				continue
			}
			full := filepath.Join(dir, name)
			if e.IsDir() {
				if err := walk(full); err != nil {
					return err
				}
				continue
			}
			if isYAMLFile(name) {
				out = append(out, full)
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadFile parses one rule file in the given dialect. Sigma files may
// contain multiple documents and therefore multiple rules; Chainsaw
// files always produce exactly one.
func LoadFile(kind Kind, path string) ([]Rule, error) {
	switch kind {
	case KindChainsaw:
		r, err := LoadChainsaw(path)
		if err != nil {
			return nil, err
		}
		return []Rule{r}, nil
	case KindSigma:
		return LoadSigma(path)
	default:
		return nil, fmt.Errorf("%s: unknown rule dialect %q", path, kind)
	}
}

// LoadDir loads every rule file under root in the given dialect. It is
// strict: the first file that fails to load aborts the whole walk, since
// a RuleLoad failure here is not one --skip-errors may downgrade. The
// Linter uses WalkFiles and LoadFile directly instead, to keep loading
// one file at a time and tally failures rather than abort.
func LoadDir(kind Kind, root string) ([]Rule, error) {
	files, err := WalkFiles(root)
	if err != nil {
		return nil, err
	}
	var all []Rule
	for _, f := range files {
		rs, err := LoadFile(kind, f)
		if err != nil {
			return nil, err
		}
		all = append(all, rs...)
	}
	return all, nil
}
