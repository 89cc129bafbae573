// Package discovery walks the input paths a CLI command is given into an
// ordered, extension-filtered list of files, the first stage
// of the pipeline feeding the Hunter and Searcher.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Options configures a walk.
type Options struct {
	// Extensions is the allow-list, lower-case, without leading dot; ""
	// is the key for extensionless files (registry hives). A nil or
	// empty set means "accept everything".
	Extensions map[string]bool
	SkipErrors bool
}

func extOf(path string) string {
	ext := filepath.Ext(path)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func (o Options) accepts(path string) bool {
	if len(o.Extensions) == 0 {
		return true
	}
	return o.Extensions[extOf(path)]
}

// Walk discovers files under the given roots, in the deterministic order
// paths are processed in the order given, and within a
// directory, entries are sorted lexicographically by canonical path at
// each level before recursing. A symlink is followed only when its
// resolved target lies inside one of the given roots; cycles are
// detected via a seen-realpath set so a self-referential link can never
// cause an infinite walk.
func Walk(roots []string, opts Options) ([]string, error) {
	resolvedRoots := make([]string, 0, len(roots))
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			resolvedRoots = append(resolvedRoots, abs)
		}
	}

	var out []string
	seen := make(map[string]bool)

	var visit func(path string) error
	visit = func(path string) error {
		info, err := os.Lstat(path)
		if err != nil {
			if opts.SkipErrors {
				fmt.Fprintf(os.Stderr, "[!] %s: %v\n", path, err)
				return nil
			}
			return err
		}

		if info.Mode()&os.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(path)
			if err != nil {
				if opts.SkipErrors {
					fmt.Fprintf(os.Stderr, "[!] %s: unresolvable symlink: %v\n", path, err)
					return nil
				}
				return err
			}
			if !withinRoots(target, resolvedRoots) {
				if opts.SkipErrors {
					return nil
				}
				return fmt.Errorf("%s: symlink target escapes the given roots", path)
			}
			if seen[target] {
				return nil // loop
			}
			seen[target] = true
			info, err = os.Stat(target)
			if err != nil {
				if opts.SkipErrors {
					return nil
				}
				return err
			}
			path = target
		}

		if !info.IsDir() {
			if opts.accepts(path) {
				out = append(out, path)
			}
			return nil
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			if opts.SkipErrors {
				fmt.Fprintf(os.Stderr, "[!] %s: %v\n", path, err)
				return nil
			}
			return err
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, name := range names {
			if err := visit(filepath.Join(path, name)); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range roots {
		if err := visit(root); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func withinRoots(target string, roots []string) bool {
	for _, root := range roots {
		if target == root || strings.HasPrefix(target, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
