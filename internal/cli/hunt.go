package cli

import (
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/triagelabs/chainsaw/internal/discovery"
	chainsawerrors "github.com/triagelabs/chainsaw/internal/errors"
	"github.com/triagelabs/chainsaw/internal/hunt"
	"github.com/triagelabs/chainsaw/internal/mapping"
	"github.com/triagelabs/chainsaw/internal/reader"
	"github.com/triagelabs/chainsaw/internal/render"
	"github.com/triagelabs/chainsaw/internal/rule"
	"github.com/triagelabs/chainsaw/internal/taxonomy"
	"github.com/triagelabs/chainsaw/internal/ui"
)

var huntFlags struct {
	rulesPath   string
	sigmaPath   string
	mappingPath string
	from        string
	to          string
	jsonOut     bool
	jsonlOut    bool
	full        bool
	metadata    bool
	local       bool
	columnWidth int
	skipErrors  bool
	loadUnknown bool
	techniques  string
}

var huntCmd = &cobra.Command{
	Use:   "hunt <paths...>",
	Short: "Run detection rules over one or more artefacts",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runHunt,
}

func init() {
	f := huntCmd.Flags()
	f.StringVarP(&huntFlags.rulesPath, "rules", "r", "", "native Chainsaw-dialect rule file or directory")
	f.StringVarP(&huntFlags.sigmaPath, "sigma", "s", "", "Sigma-dialect rule file or directory")
	f.StringVar(&huntFlags.mappingPath, "mapping", "", "field-name mapping file or directory")
	f.StringVar(&huntFlags.from, "from", "", "exclude documents timestamped at or before this ISO-8601 instant")
	f.StringVar(&huntFlags.to, "to", "", "exclude documents timestamped at or after this ISO-8601 instant")
	f.BoolVar(&huntFlags.jsonOut, "json", false, "render a single pretty JSON array")
	f.BoolVar(&huntFlags.jsonlOut, "jsonl", false, "render one compact JSON object per line")
	f.BoolVar(&huntFlags.full, "full", false, "do not ellipsis-truncate table cells")
	f.BoolVar(&huntFlags.metadata, "metadata", false, "include extracted field metadata in table output")
	f.BoolVar(&huntFlags.local, "local", false, "accepted for compatibility; all timestamps remain UTC on the data path")
	f.IntVar(&huntFlags.columnWidth, "column-width", render.DefaultColumnWidth, "table column width before truncation")
	f.BoolVar(&huntFlags.skipErrors, "skip-errors", false, "log and continue past per-file/per-record errors")
	f.BoolVar(&huntFlags.loadUnknown, "load-unknown", false, "attempt unrecognised file extensions as JSONL")
	f.StringVar(&huntFlags.techniques, "techniques", "", "annotate detections against a MITRE ATT&CK technique catalog directory, matched by rule tags")
	rootCmd.AddCommand(huntCmd)
}

func runHunt(cmd *cobra.Command, args []string) error {
	jsonOutput = huntFlags.jsonOut || huntFlags.jsonlOut
	if huntFlags.rulesPath == "" && huntFlags.sigmaPath == "" {
		return chainsawerrors.Usage("hunt requires -r/--rules or -s/--sigma")
	}

	var rules []rule.Rule
	if huntFlags.rulesPath != "" {
		loaded, err := rule.LoadDir(rule.KindChainsaw, huntFlags.rulesPath)
		if err != nil {
			return chainsawerrors.RuleLoad("failed to load rules", err)
		}
		rules = append(rules, loaded...)
	}
	if huntFlags.sigmaPath != "" {
		loaded, err := rule.LoadDir(rule.KindSigma, huntFlags.sigmaPath)
		if err != nil {
			return chainsawerrors.RuleLoad("failed to load sigma rules", err)
		}
		rules = append(rules, loaded...)
	}

	var mappings []mapping.Mapping
	if huntFlags.mappingPath != "" {
		loaded, err := mapping.LoadDir(huntFlags.mappingPath)
		if err != nil {
			return chainsawerrors.New(chainsawerrors.KindIO, "failed to load mappings", err)
		}
		mappings = loaded
	}

	from, to, err := parseTimeWindow(huntFlags.from, huntFlags.to)
	if err != nil {
		return chainsawerrors.Usage(err.Error())
	}

	builder := hunt.Builder{
		Rules: rules, Mappings: mappings,
		LoadUnknown: huntFlags.loadUnknown, SkipErrors: huntFlags.skipErrors,
		From: from, To: to,
	}
	hunter, err := builder.Build()
	if err != nil {
		return chainsawerrors.Internal("failed to build hunt set", err)
	}

	exts := reader.Extensions()
	for _, e := range hunter.Extensions() {
		exts[strings.TrimPrefix(e, ".")] = true
	}
	files, err := discovery.Walk(args, discovery.Options{Extensions: exts, SkipErrors: huntFlags.skipErrors})
	if err != nil {
		return chainsawerrors.InputNotFound(args[0], err)
	}

	workers := numThreads
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	jsonMode := huntFlags.jsonOut || huntFlags.jsonlOut
	bar := newProgressBar(len(files), "hunting", jsonMode)

	detections, fileErrs := hunter.HuntFiles(files, workers)
	if bar != nil {
		_ = bar.Finish()
	}
	for _, e := range fileErrs {
		ui.Warn("%v", e)
	}

	if huntFlags.techniques != "" {
		catalog, err := taxonomy.LoadCatalog(huntFlags.techniques)
		if err != nil {
			return chainsawerrors.New(chainsawerrors.KindIO, "failed to load technique catalog", err)
		}
		annotateTechniques(detections, catalog)
	}

	hunt.SortForTable(detections)
	rows := render.DetectionRows(detections)

	var renderErr error
	switch {
	case huntFlags.jsonOut:
		renderErr = render.JSONArray(os.Stdout, rows)
	case huntFlags.jsonlOut:
		renderErr = render.JSONLines(os.Stdout, rows)
	default:
		headers := render.DetectionTableHeaders
		if !huntFlags.metadata {
			headers = headers[:len(headers)-1]
			trimmed := make([]render.Row, len(rows))
			for i, r := range rows {
				trimmed[i] = trimLastColumn{r}
			}
			rows = trimmed
		}
		renderErr = render.Table(os.Stdout, rows, render.TableOptions{
			Headers: headers, ColumnWidth: huntFlags.columnWidth, Full: huntFlags.full,
		})
	}
	if renderErr != nil {
		return chainsawerrors.Rendering("failed to render detections", renderErr)
	}

	ui.Info("%d detections in %d files", len(detections), len(files))
	return nil
}

// annotateTechniques prints one line per (rule, matched technique) pair
// found across detections, deduplicated so a hot rule firing thousands of
// times only produces one line per technique it maps to.
func annotateTechniques(detections []hunt.Detection, catalog *taxonomy.Catalog) {
	seen := make(map[string]bool)
	for _, d := range detections {
		if len(d.Tags) == 0 {
			continue
		}
		for _, t := range catalog.LookupTags(d.Tags) {
			key := d.RuleName + "|" + t.ID
			if seen[key] {
				continue
			}
			seen[key] = true
			ui.Warn("%s matches %s (%s, tactic %s)", d.RuleName, t.ID, t.Name, t.Tactic)
		}
	}
}

type trimLastColumn struct{ render.Row }

func (t trimLastColumn) Columns() []string {
	cols := t.Row.Columns()
	if len(cols) == 0 {
		return cols
	}
	return cols[:len(cols)-1]
}
