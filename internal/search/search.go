// Package search implements free-text/regex/tau document search:
// stream documents from the reader framework, apply an optional
// time window, an optional combined tau filter, and an optional combined
// regex filter, in that order, emitting every document that survives.
package search

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/triagelabs/chainsaw/internal/datetime"
	"github.com/triagelabs/chainsaw/internal/document"
	"github.com/triagelabs/chainsaw/internal/metrics"
	"github.com/triagelabs/chainsaw/internal/reader"
	"github.com/triagelabs/chainsaw/internal/tau"
	"github.com/triagelabs/chainsaw/internal/value"
)

// Result is one surviving document: {data, source, record_id, timestamp}.
type Result struct {
	Data      value.Value
	Source    string
	RecordID  *uint64
	Timestamp *datetime.DateTime
}

func resultOf(doc document.Document) Result {
	return Result{Data: doc.Data, Source: doc.Source, RecordID: doc.RecordID, Timestamp: doc.Timestamp}
}

// Builder configures a Searcher. Regexes and TauFilters are each 0..N;
// an empty Builder (no regexes, no tau filters, no time window) matches
// every document, behaving as a typed dump.
type Builder struct {
	Regexes         []string
	TauFilters      []string
	IgnoreCase      bool
	MatchAny        bool
	TimestampField  string
	From            *datetime.DateTime
	To              *datetime.DateTime
	LoadUnknown     bool
	SkipErrors      bool
}

// Searcher is the built, read-only evaluation engine. Regex compilation
// happens entirely at Build time so a malformed pattern is reported
// before any input file is opened, matching the RegexCompile error kind
// (fatal at builder build time).
type Searcher struct {
	regexes        []*regexp.Regexp
	tauExpr        tau.Expr
	matchAny       bool
	timestampField string
	from           *datetime.DateTime
	to             *datetime.DateTime
	loadUnknown    bool
	skipErrors     bool
}

// Build compiles every regex and tau filter up front.
func (b Builder) Build() (*Searcher, error) {
	regexes := make([]*regexp.Regexp, 0, len(b.Regexes))
	for _, pat := range b.Regexes {
		p := pat
		if b.IgnoreCase {
			p = "(?i)" + p
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("search: invalid regex %q: %w", pat, err)
		}
		regexes = append(regexes, re)
	}

	var tauExpr tau.Expr
	switch len(b.TauFilters) {
	case 0:
		// no-op
	case 1:
		expr, err := tau.ParseKV(b.TauFilters[0])
		if err != nil {
			return nil, fmt.Errorf("search: invalid tau filter %q: %w", b.TauFilters[0], err)
		}
		tauExpr = tau.Optimize(expr, nil)
	default:
		children := make([]tau.Expr, 0, len(b.TauFilters))
		for _, f := range b.TauFilters {
			expr, err := tau.ParseKV(f)
			if err != nil {
				return nil, fmt.Errorf("search: invalid tau filter %q: %w", f, err)
			}
			children = append(children, expr)
		}
		op := tau.And
		if b.MatchAny {
			op = tau.Or
		}
		tauExpr = tau.Optimize(tau.Group{Op: op, Children: children}, nil)
	}

	return &Searcher{
		regexes:        regexes,
		tauExpr:        tauExpr,
		matchAny:       b.MatchAny,
		timestampField: b.TimestampField,
		from:           b.From,
		to:             b.To,
		loadUnknown:    b.LoadUnknown,
		skipErrors:     b.SkipErrors,
	}, nil
}

// resolveTimestamp fills doc.Timestamp from TimestampField when the
// reader itself could not lift one - JSON/XML documents carry no
// format-defined timestamp location, so a caller names the field
// holding an ISO-8601 instant and the Searcher parses it on their
// behalf before the time window is applied.
func (s *Searcher) resolveTimestamp(doc *document.Document) {
	if doc.Timestamp != nil || s.timestampField == "" {
		return
	}
	v, ok := doc.Data.Get(s.timestampField)
	if !ok {
		return
	}
	str, ok := v.AsString()
	if !ok {
		return
	}
	ts, err := datetime.Parse(str)
	if err != nil {
		return
	}
	doc.Timestamp = &ts
}

func (s *Searcher) excludedByWindow(ts *datetime.DateTime) bool {
	if ts == nil {
		return false
	}
	if s.from != nil && (ts.Before(*s.from) || ts.Equal(*s.from)) {
		return true
	}
	if s.to != nil && (ts.After(*s.to) || ts.Equal(*s.to)) {
		return true
	}
	return false
}

func (s *Searcher) matchesTau(doc *document.Document) bool {
	if s.tauExpr == nil {
		return true
	}
	return tau.Solve(s.tauExpr, doc.Data, tau.IdentityResolver)
}

func (s *Searcher) matchesRegex(doc *document.Document) bool {
	if len(s.regexes) == 0 {
		return true
	}
	haystack := NormalizeForSearch(doc.Data.ToJSON(false))
	hits := 0
	for _, re := range s.regexes {
		if re.MatchString(haystack) {
			hits++
			if s.matchAny {
				return true
			}
		}
	}
	if s.matchAny {
		return false
	}
	return hits == len(s.regexes)
}

// NormalizeForSearch collapses a run of four literal backslashes in the
// canonical JSON form down to two before regex matching, so a rule
// author's pattern written against a JSON string's logical escaping (one
// backslash) matches the doubly-escaped form Go's json encoder produces
// for `\` inside a string. This normalisation is confined to the
// Searcher's regex input: the Document itself, and anything tau
// evaluates, is never touched by it.
func NormalizeForSearch(jsonText string) string {
	return strings.ReplaceAll(jsonText, `\\\\`, `\\`)
}

// SearchFile opens path and yields every Document that survives the
// time window, tau, and regex filters in that order.
func (s *Searcher) SearchFile(path string) ([]Result, error) {
	start := time.Now()
	defer func() { metrics.ObserveFileDuration(time.Since(start).Seconds()) }()

	r, err := reader.Open(path, s.loadUnknown, s.skipErrors)
	if err != nil {
		metrics.FileFailed()
		return nil, fmt.Errorf("search: open %s: %w", path, err)
	}
	defer r.Close()
	metrics.FileOpened()

	var out []Result
	var doc document.Document
	for r.Next(&doc) {
		s.resolveTimestamp(&doc)
		if s.excludedByWindow(doc.Timestamp) {
			metrics.DocumentSkipped()
			continue
		}
		metrics.DocumentEvaluated()
		if !s.matchesTau(&doc) {
			continue
		}
		if !s.matchesRegex(&doc) {
			continue
		}
		metrics.DetectionEmitted()
		out = append(out, resultOf(doc))
	}
	if !s.skipErrors {
		if err := r.LastError(); err != nil {
			metrics.FileFailed()
			return nil, fmt.Errorf("search: %s: %w", path, err)
		}
	}
	return out, nil
}

// SearchFiles runs SearchFile across paths file-parallel, the same
// index-stitched-back-in-order scheme hunt.HuntFiles uses so output
// stays deterministic regardless of which worker finishes which file
// first.
func (s *Searcher) SearchFiles(paths []string, numWorkers int) ([]Result, []error) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if len(paths) == 0 {
		return nil, nil
	}

	type outcome struct {
		results []Result
		err     error
	}
	outs := make([]outcome, len(paths))
	jobs := make(chan int, len(paths))
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for i := range jobs {
			res, err := s.SearchFile(paths[i])
			outs[i] = outcome{results: res, err: err}
		}
	}

	workers := numWorkers
	if workers > len(paths) {
		workers = len(paths)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go worker()
	}
	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var all []Result
	var errs []error
	for _, o := range outs {
		if o.err != nil {
			errs = append(errs, o.err)
			if !s.skipErrors {
				break
			}
			continue
		}
		all = append(all, o.results...)
	}
	return all, errs
}
