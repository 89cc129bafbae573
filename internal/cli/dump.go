package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/triagelabs/chainsaw/internal/discovery"
	"github.com/triagelabs/chainsaw/internal/document"
	chainsawerrors "github.com/triagelabs/chainsaw/internal/errors"
	"github.com/triagelabs/chainsaw/internal/reader"
	"github.com/triagelabs/chainsaw/internal/render"
	"github.com/triagelabs/chainsaw/internal/ui"
)

var dumpFlags struct {
	extension   string
	jsonOut     bool
	jsonlOut    bool
	output      string
	skipErrors  bool
	loadUnknown bool
}

var dumpCmd = &cobra.Command{
	Use:   "dump <paths...>",
	Short: "Dump every document in the given artefacts, unfiltered",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDump,
}

func init() {
	f := dumpCmd.Flags()
	f.StringVar(&dumpFlags.extension, "extension", "", "restrict discovery to this extension (no leading dot)")
	f.BoolVar(&dumpFlags.jsonOut, "json", false, "render a single pretty JSON array")
	f.BoolVar(&dumpFlags.jsonlOut, "jsonl", false, "render one compact JSON object per line")
	f.StringVar(&dumpFlags.output, "output", "", "write output to this file instead of stdout")
	f.BoolVar(&dumpFlags.skipErrors, "skip-errors", false, "log and continue past per-file/per-record errors")
	f.BoolVar(&dumpFlags.loadUnknown, "load-unknown", false, "attempt unrecognised file extensions as JSONL")
	rootCmd.AddCommand(dumpCmd)
}

func runDump(cmd *cobra.Command, args []string) error {
	jsonOutput = dumpFlags.jsonOut || dumpFlags.jsonlOut
	exts := reader.Extensions()
	if dumpFlags.extension != "" {
		exts = map[string]bool{dumpFlags.extension: true}
	}

	files, err := discovery.Walk(args, discovery.Options{Extensions: exts, SkipErrors: dumpFlags.skipErrors})
	if err != nil {
		return chainsawerrors.InputNotFound(args[0], err)
	}
	if len(files) == 0 {
		return chainsawerrors.New(chainsawerrors.KindInputNotFound, "No compatible files were found in the provided paths", nil)
	}

	var docs []document.Document
	for _, path := range files {
		r, err := reader.Open(path, dumpFlags.loadUnknown, dumpFlags.skipErrors)
		if err != nil {
			if dumpFlags.skipErrors {
				ui.Warn("%s: %v", path, err)
				continue
			}
			return chainsawerrors.InputUnsupported(path, err)
		}
		var doc document.Document
		for r.Next(&doc) {
			docs = append(docs, doc)
		}
		if !dumpFlags.skipErrors {
			if lastErr := r.LastError(); lastErr != nil {
				r.Close()
				return chainsawerrors.New(chainsawerrors.KindParseRecord, "failed to parse "+path, lastErr)
			}
		}
		r.Close()
	}

	out := os.Stdout
	if dumpFlags.output != "" {
		f, err := os.Create(dumpFlags.output)
		if err != nil {
			return chainsawerrors.IO("failed to create output file", err)
		}
		defer f.Close()
		out = f
	}

	rows := render.DocumentRows(docs)
	var renderErr error
	switch {
	case dumpFlags.jsonOut:
		renderErr = render.JSONArray(out, rows)
	case dumpFlags.jsonlOut:
		renderErr = render.JSONLines(out, rows)
	default:
		renderErr = render.Table(out, rows, render.TableOptions{
			Headers: render.DocumentTableHeaders, ColumnWidth: render.DefaultColumnWidth,
		})
	}
	if renderErr != nil {
		return chainsawerrors.Rendering("failed to render dump output", renderErr)
	}

	ui.Info("%d document(s) across %d file(s)", len(docs), len(files))
	return nil
}
