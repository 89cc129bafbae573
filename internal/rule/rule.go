// Package rule loads detection rules written in either the native
// Chainsaw YAML dialect or a Sigma-subset dialect, and exposes both as a
// single Rule type whose Filter is a tau.Filter ready for the optimiser.
package rule

import (
	"fmt"

	"github.com/triagelabs/chainsaw/internal/tau"
)

// Kind distinguishes which dialect produced a Rule.
type Kind string

const (
	KindChainsaw Kind = "chainsaw"
	KindSigma    Kind = "sigma"
)

// Level is the rule's declared severity.
type Level string

const (
	LevelInformational Level = "informational"
	LevelLow           Level = "low"
	LevelMedium        Level = "medium"
	LevelHigh          Level = "high"
	LevelCritical      Level = "critical"
)

// FieldExtraction names one column (Name) and the dotted path it is read
// from (To). The hunt package does not read these: Detection.ExtractedFields
// is never filled from them and stays empty.
type FieldExtraction struct {
	Name string
	To   string
}

// Rule is the dialect-neutral, loader-produced form both the Hunter and
// the Linter consume. Filter.Expression is the raw, unoptimised tree;
// callers run tau.Optimize (via Filter.Optimize) themselves, once, when
// building Hunts — the Linter only optimises under --tau.
type Rule struct {
	Name        string
	Kind        Kind
	RuleKind    string // the artefact kind this rule targets, e.g. "evtx"
	ID          string
	Level       Level
	Status      string
	Authors     []string
	Tags        []string
	References  []string
	Aggregate   string
	Timestamp   string
	Fields      []FieldExtraction
	Filter      tau.Filter
	SourceFile  string
}

func normalizeLevel(s string) Level {
	switch Level(s) {
	case LevelInformational, LevelLow, LevelMedium, LevelHigh, LevelCritical:
		return Level(s)
	default:
		return LevelMedium
	}
}

// validate checks invariants common to both dialects.
func (r Rule) validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule: missing title/name")
	}
	return nil
}
