package cli

import (
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/triagelabs/chainsaw/internal/discovery"
	chainsawerrors "github.com/triagelabs/chainsaw/internal/errors"
	"github.com/triagelabs/chainsaw/internal/reader"
	"github.com/triagelabs/chainsaw/internal/render"
	"github.com/triagelabs/chainsaw/internal/search"
	"github.com/triagelabs/chainsaw/internal/ui"
)

var searchFlags struct {
	regexes        []string
	tauFilters     []string
	ignoreCase     bool
	matchAny       bool
	timestampField string
	from           string
	to             string
	jsonOut        bool
	jsonlOut       bool
	output         string
	skipErrors     bool
	loadUnknown    bool
}

var searchCmd = &cobra.Command{
	Use:   "search <paths...>",
	Short: "Search documents by regex, tau filter, and/or time window",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.StringArrayVarP(&searchFlags.regexes, "regex", "e", nil, "regex the rendered document must match (repeatable)")
	f.StringArrayVarP(&searchFlags.tauFilters, "tau", "t", nil, "tau key:value filter expression (repeatable)")
	f.BoolVarP(&searchFlags.ignoreCase, "ignore-case", "i", false, "case-insensitive regex matching")
	f.BoolVar(&searchFlags.matchAny, "match-any", false, "OR multiple regex/tau filters instead of ANDing them")
	f.StringVar(&searchFlags.timestampField, "timestamp", "", "document field holding an ISO-8601 timestamp, for formats with none intrinsic")
	f.StringVar(&searchFlags.from, "from", "", "exclude documents timestamped at or before this ISO-8601 instant")
	f.StringVar(&searchFlags.to, "to", "", "exclude documents timestamped at or after this ISO-8601 instant")
	f.BoolVar(&searchFlags.jsonOut, "json", false, "render a single pretty JSON array")
	f.BoolVar(&searchFlags.jsonlOut, "jsonl", false, "render one compact JSON object per line")
	f.StringVar(&searchFlags.output, "output", "", "write results to this file instead of stdout")
	f.BoolVar(&searchFlags.skipErrors, "skip-errors", false, "log and continue past per-file/per-record errors")
	f.BoolVar(&searchFlags.loadUnknown, "load-unknown", false, "attempt unrecognised file extensions as JSONL")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	jsonOutput = searchFlags.jsonOut || searchFlags.jsonlOut
	from, to, err := parseTimeWindow(searchFlags.from, searchFlags.to)
	if err != nil {
		return chainsawerrors.Usage(err.Error())
	}

	builder := search.Builder{
		Regexes:        searchFlags.regexes,
		TauFilters:     searchFlags.tauFilters,
		IgnoreCase:     searchFlags.ignoreCase,
		MatchAny:       searchFlags.matchAny,
		TimestampField: searchFlags.timestampField,
		From:           from,
		To:             to,
		LoadUnknown:    searchFlags.loadUnknown,
		SkipErrors:     searchFlags.skipErrors,
	}
	searcher, err := builder.Build()
	if err != nil {
		return chainsawerrors.RegexCompile("failed to build search filters", err)
	}

	files, err := discovery.Walk(args, discovery.Options{Extensions: reader.Extensions(), SkipErrors: searchFlags.skipErrors})
	if err != nil {
		return chainsawerrors.InputNotFound(args[0], err)
	}

	workers := numThreads
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	jsonMode := searchFlags.jsonOut || searchFlags.jsonlOut || searchFlags.output != ""
	bar := newProgressBar(len(files), "searching", jsonMode)
	results, fileErrs := searcher.SearchFiles(files, workers)
	if bar != nil {
		_ = bar.Finish()
	}
	for _, e := range fileErrs {
		ui.Warn("%v", e)
	}

	out := os.Stdout
	if searchFlags.output != "" {
		f, err := os.Create(searchFlags.output)
		if err != nil {
			return chainsawerrors.IO("failed to create output file", err)
		}
		defer f.Close()
		out = f
	}

	rows := render.SearchRows(results)
	var renderErr error
	switch {
	case searchFlags.jsonOut:
		renderErr = render.JSONArray(out, rows)
	case searchFlags.jsonlOut:
		renderErr = render.JSONLines(out, rows)
	default:
		renderErr = render.Table(out, rows, render.TableOptions{
			Headers: render.SearchTableHeaders, ColumnWidth: render.DefaultColumnWidth,
		})
	}
	if renderErr != nil {
		return chainsawerrors.Rendering("failed to render search results", renderErr)
	}

	ui.Info("%d hits in %d files", len(results), len(files))
	return nil
}
