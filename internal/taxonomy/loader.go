// Package taxonomy loads Chainsaw's built-in MITRE ATT&CK technique
// catalog and looks techniques up by the "attack.txxxx" style tags a
// Chainsaw or Sigma rule carries (rule.Rule.Tags), so a hunt or
// lint result can be annotated with the technique it corresponds to
// without the rule author having to duplicate ATT&CK's documentation in
// every rule file.
package taxonomy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog holds all loaded technique data: tactics, technique groups, and
// individual (sub-)techniques, indexed for lookup by ID, tactic, and
// group.
type Catalog struct {
	Tactics    []TacticDef
	Groups     []GroupDef
	Techniques []Technique
	ByID       map[string]Technique   // technique ID → entry, original case
	ByTactic   map[int][]Technique    // tactic ID → entries
	ByGroup    map[string][]Technique // group ID → entries

	byIDLower map[string]Technique // technique ID, lowercased → entry
}

// LoadCatalog loads the full technique catalog from a root directory.
// Expected structure:
//
//	techniques/
//	  tactics.yaml
//	  <tactic-dir>/
//	    _tactic.yaml
//	    <group-dir>/
//	      _group.yaml
//	      <technique>.yaml
func LoadCatalog(dir string) (*Catalog, error) {
	cat := &Catalog{
		ByID:      make(map[string]Technique),
		ByTactic:  make(map[int][]Technique),
		ByGroup:   make(map[string][]Technique),
		byIDLower: make(map[string]Technique),
	}

	tacticsPath := filepath.Join(dir, "tactics.yaml")
	if err := cat.loadTactics(tacticsPath); err != nil {
		return nil, fmt.Errorf("loading tactics: %w", err)
	}

	topEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading taxonomy dir: %w", err)
	}

	for _, topEntry := range topEntries {
		if !topEntry.IsDir() {
			continue
		}
		tacticDir := filepath.Join(dir, topEntry.Name())

		groupEntries, err := os.ReadDir(tacticDir)
		if err != nil {
			continue
		}

		for _, groupEntry := range groupEntries {
			if !groupEntry.IsDir() {
				continue
			}
			groupDir := filepath.Join(tacticDir, groupEntry.Name())

			groupMeta := filepath.Join(groupDir, "_group.yaml")
			if data, err := os.ReadFile(groupMeta); err == nil {
				var gdef GroupDef
				if err := yaml.Unmarshal(data, &gdef); err == nil {
					cat.Groups = append(cat.Groups, gdef)
				}
			}

			techniqueFiles, err := os.ReadDir(groupDir)
			if err != nil {
				continue
			}

			for _, tf := range techniqueFiles {
				if tf.IsDir() {
					continue
				}
				name := tf.Name()
				if strings.HasPrefix(name, "_") {
					continue
				}
				if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
					continue
				}

				path := filepath.Join(groupDir, name)
				entry, err := loadTechnique(path)
				if err != nil {
					return nil, fmt.Errorf("loading technique %s: %w", path, err)
				}

				cat.Techniques = append(cat.Techniques, entry)
				cat.ByID[entry.ID] = entry
				cat.byIDLower[strings.ToLower(entry.ID)] = entry
				cat.ByTactic[entry.TacticID] = append(cat.ByTactic[entry.TacticID], entry)
				cat.ByGroup[entry.GroupID] = append(cat.ByGroup[entry.GroupID], entry)
			}
		}
	}

	return cat, nil
}

func (c *Catalog) loadTactics(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var t Tactics
	if err := yaml.Unmarshal(data, &t); err != nil {
		return err
	}
	c.Tactics = t.Tactics
	return nil
}

func loadTechnique(path string) (Technique, error) {
	var t Technique
	data, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, err
	}
	return t, nil
}

// LookupTags returns every catalog technique referenced by tags, matching
// Chainsaw/Sigma "attack.txxxx" / "attack.txxxx.yyy" style rule tags
// (case-insensitive, with or without the "attack." prefix) against
// technique IDs. Unmatched tags (a tactic name like "attack.execution", a
// non-ATT&CK tag) are silently skipped rather than reported as an error,
// since a rule's tags are free text and most of them won't resolve to a
// catalog entry at all.
func (c *Catalog) LookupTags(tags []string) []Technique {
	var out []Technique
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		id := strings.ToLower(strings.TrimPrefix(strings.ToLower(tag), "attack."))
		if seen[id] {
			continue
		}
		if tech, ok := c.byIDLower[id]; ok {
			out = append(out, tech)
			seen[id] = true
		}
	}
	return out
}
