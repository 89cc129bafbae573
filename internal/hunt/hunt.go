// Package hunt implements the file-parallel detection loop:
// pair every loaded rule with every mapping that targets its rule kind,
// then stream each input file through the reader framework, evaluating
// every resulting Hunt's optimised tau expression against each document.
package hunt

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/triagelabs/chainsaw/internal/datetime"
	"github.com/triagelabs/chainsaw/internal/document"
	"github.com/triagelabs/chainsaw/internal/mapping"
	"github.com/triagelabs/chainsaw/internal/metrics"
	"github.com/triagelabs/chainsaw/internal/reader"
	"github.com/triagelabs/chainsaw/internal/rule"
	"github.com/triagelabs/chainsaw/internal/tau"
)

// Hunt is a (rule, mapping) pair, the unit of evaluation per document.
// Expression is the rule's filter already optimised once at build time,
// so every worker thread shares it read-only.
type Hunt struct {
	Index      int
	RuleID     string
	RuleName   string
	Level      rule.Level
	Mapping    mapping.Mapping
	Expression tau.Expr
	Group      string
	Timestamp  string
	Tags       []string
}

// Detection is one positive match of one Hunt on one Document.
type Detection struct {
	HuntIndex       int
	RuleID          string
	RuleName        string
	Level           rule.Level
	Source          string
	RecordID        *uint64
	Timestamp       *datetime.DateTime
	ExtractedFields map[string]string
	// Tags carries the matched rule's tags verbatim (e.g. "attack.t1070.004"),
	// letting a caller cross-reference a taxonomy.Catalog without the hunt
	// package itself depending on the taxonomy package.
	Tags []string
}

// Builder accepts rules and mappings and produces the flat Hunt list; it
// mirrors the Sigma/Chainsaw rule loader in treating configuration
// mistakes (no mapping at all matches a rule's kind) as build-time
// information rather than a per-document failure.
type Builder struct {
	Rules       []rule.Rule
	Mappings    []mapping.Mapping
	LoadUnknown bool
	SkipErrors  bool
	From        *datetime.DateTime
	To          *datetime.DateTime
}

// Hunter is the built, read-only evaluation engine.
type Hunter struct {
	hunts       []Hunt
	loadUnknown bool
	skipErrors  bool
	from        *datetime.DateTime
	to          *datetime.DateTime
}

// Build pairs every rule with every mapping whose Kind matches the rule's
// declared RuleKind. A rule with no RuleKind set matches every mapping
// (a rule-author opt-out of artefact-shape scoping).
func (b Builder) Build() (*Hunter, error) {
	var hunts []Hunt
	idx := 0
	for _, r := range b.Rules {
		optimized := r.Filter.Optimize()
		paired := false
		for _, m := range b.Mappings {
			if r.RuleKind != "" && string(m.Kind) != r.RuleKind {
				continue
			}
			hunts = append(hunts, Hunt{
				Index:      idx,
				RuleID:     r.ID,
				RuleName:   r.Name,
				Level:      r.Level,
				Mapping:    m,
				Expression: optimized.Expression,
				Group:      r.Aggregate,
				Timestamp:  r.Timestamp,
				Tags:       r.Tags,
			})
			idx++
			paired = true
		}
		// With no mappings registered at all, a rule still runs under the
		// identity mapping: plain unqualified field names resolve to
		// themselves, which is exactly what a --tau-only search filter
		// (no --mapping given) needs.
		if !paired && len(b.Mappings) == 0 {
			hunts = append(hunts, Hunt{
				Index:      idx,
				RuleID:     r.ID,
				RuleName:   r.Name,
				Level:      r.Level,
				Expression: optimized.Expression,
				Group:      r.Aggregate,
				Timestamp:  r.Timestamp,
				Tags:       r.Tags,
			})
			idx++
		}
	}
	return &Hunter{
		hunts:       hunts,
		loadUnknown: b.LoadUnknown,
		skipErrors:  b.SkipErrors,
		from:        b.From,
		to:          b.To,
	}, nil
}

// Extensions unions every Hunt's mapping-declared extensions, for
// Discovery to consult when the CLI gives no explicit --extension set.
func (h *Hunter) Extensions() []string {
	ms := make([]mapping.Mapping, 0, len(h.hunts))
	for _, hu := range h.hunts {
		ms = append(ms, hu.Mapping)
	}
	return mapping.Extensions(ms)
}

func (h *Hunter) excludedByWindow(ts *datetime.DateTime) bool {
	if ts == nil {
		return false
	}
	if h.from != nil && (ts.Before(*h.from) || ts.Equal(*h.from)) {
		return true
	}
	if h.to != nil && (ts.After(*h.to) || ts.Equal(*h.to)) {
		return true
	}
	return false
}

// HuntFile opens path via the reader framework and evaluates every Hunt
// against every document in source order, returning Detections ordered
// (record position, hunt index).
func (h *Hunter) HuntFile(path string) ([]Detection, error) {
	start := time.Now()
	defer func() { metrics.ObserveFileDuration(time.Since(start).Seconds()) }()

	r, err := reader.Open(path, h.loadUnknown, h.skipErrors)
	if err != nil {
		metrics.FileFailed()
		return nil, fmt.Errorf("hunt: open %s: %w", path, err)
	}
	defer r.Close()
	metrics.FileOpened()

	var out []Detection
	var doc document.Document
	for r.Next(&doc) {
		if h.excludedByWindow(doc.Timestamp) {
			metrics.DocumentSkipped()
			continue
		}
		metrics.DocumentEvaluated()
		for _, hu := range h.hunts {
			resolve := tau.IdentityResolver
			if hu.Mapping.Fields != nil {
				resolve = hu.Mapping.Resolver()
			}
			if !tau.Solve(hu.Expression, doc.Data, resolve) {
				continue
			}
			metrics.DetectionEmitted()
			out = append(out, Detection{
				HuntIndex: hu.Index,
				RuleID:    hu.RuleID,
				RuleName:  hu.RuleName,
				Level:     hu.Level,
				Source:    doc.Source,
				RecordID:  doc.RecordID,
				Timestamp: doc.Timestamp,
				Tags:      hu.Tags,
			})
		}
	}
	if !h.skipErrors {
		if err := r.LastError(); err != nil {
			metrics.FileFailed()
			return nil, fmt.Errorf("hunt: %s: %w", path, err)
		}
	}
	return out, nil
}

// HuntFiles processes files file-parallel across numWorkers goroutines
// but re-assembles the output as if files had been processed strictly in
// the given (Discovery) order: each worker's result is indexed by its
// position in paths and only ever stitched back together in that order,
// satisfying a determinism property without forcing the
// files themselves to be read one at a time.
func (h *Hunter) HuntFiles(paths []string, numWorkers int) ([]Detection, []error) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if len(paths) == 0 {
		return nil, nil
	}

	type outcome struct {
		dets []Detection
		err  error
	}
	results := make([]outcome, len(paths))
	jobs := make(chan int, len(paths))
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for i := range jobs {
			dets, err := h.HuntFile(paths[i])
			results[i] = outcome{dets: dets, err: err}
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

	var all []Detection
	var errs []error
	for _, o := range results {
		if o.err != nil {
			errs = append(errs, o.err)
			if !h.skipErrors {
				break
			}
			continue
		}
		all = append(all, o.dets...)
	}
	return all, errs
}

// SortForTable orders detections the way the Table renderer requires:
// stably by (timestamp, source, record_id, hunt_id).
func SortForTable(dets []Detection) {
	sort.SliceStable(dets, func(i, j int) bool {
		a, b := dets[i], dets[j]
		if cmp := compareTimestamps(a.Timestamp, b.Timestamp); cmp != 0 {
			return cmp < 0
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if ra, rb := recordIDOf(a.RecordID), recordIDOf(b.RecordID); ra != rb {
			return ra < rb
		}
		return a.HuntIndex < b.HuntIndex
	})
}

func compareTimestamps(a, b *datetime.DateTime) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return a.Compare(*b)
	}
}

func recordIDOf(id *uint64) uint64 {
	if id == nil {
		return 0
	}
	return *id
}
