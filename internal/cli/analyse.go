package cli

import (
	"bufio"
	"os"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/triagelabs/chainsaw/internal/analyse"
	chainsawerrors "github.com/triagelabs/chainsaw/internal/errors"
	"github.com/triagelabs/chainsaw/internal/ui"
)

var analyseCmd = &cobra.Command{
	Use:   "analyse",
	Short: "Run a format-specific analyser over a known artefact",
}

func init() {
	rootCmd.AddCommand(analyseCmd)
}

var shimcacheFlags struct {
	amcache   string
	regexes   []string
	regexFile string
	tsPair    bool
	output    string
}

var shimcacheCmd = &cobra.Command{
	Use:   "shimcache <path>",
	Short: "Recover candidate AppCompatCache path/timestamp entries from a SYSTEM hive",
	Args:  cobra.ExactArgs(1),
	RunE:  runShimcache,
}

func init() {
	f := shimcacheCmd.Flags()
	f.StringVar(&shimcacheFlags.amcache, "amcache", "", "accepted for compatibility; Amcache correlation is not implemented")
	f.StringArrayVar(&shimcacheFlags.regexes, "regex", nil, "restrict output to paths matching this regex (repeatable)")
	f.StringVar(&shimcacheFlags.regexFile, "regex-file", "", "file of newline-separated regexes, merged with --regex")
	f.BoolVar(&shimcacheFlags.tsPair, "tspair", false, "accepted for compatibility; has no effect on reduced-fidelity recovery")
	f.StringVar(&shimcacheFlags.output, "output", "", "write CSV output to this file instead of stdout")
	analyseCmd.AddCommand(shimcacheCmd)
}

func runShimcache(cmd *cobra.Command, args []string) error {
	entries, err := analyse.AnalyseShimcache(args[0], false)
	if err != nil {
		return chainsawerrors.New(chainsawerrors.KindParseRecord, "failed to analyse shimcache", err)
	}

	patterns := append([]string{}, shimcacheFlags.regexes...)
	if shimcacheFlags.regexFile != "" {
		fromFile, err := readLines(shimcacheFlags.regexFile)
		if err != nil {
			return chainsawerrors.IO("failed to read --regex-file", err)
		}
		patterns = append(patterns, fromFile...)
	}
	if len(patterns) > 0 {
		compiled := make([]*regexp.Regexp, 0, len(patterns))
		for _, p := range patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return chainsawerrors.RegexCompile("invalid shimcache filter regex", err)
			}
			compiled = append(compiled, re)
		}
		entries = filterShimcacheEntries(entries, compiled)
	}

	out := os.Stdout
	if shimcacheFlags.output != "" {
		f, err := os.Create(shimcacheFlags.output)
		if err != nil {
			return chainsawerrors.IO("failed to create output file", err)
		}
		defer f.Close()
		out = f
	}
	if err := analyse.WriteShimcacheCSV(out, entries); err != nil {
		return chainsawerrors.Rendering("failed to render shimcache output", err)
	}

	for _, e := range entries {
		if e.Smuggled {
			ui.Warn("possible Unicode smuggling in %q: %s", e.Path, e.SmuggledWhy)
		}
	}
	ui.Info("%d candidate entries recovered", len(entries))
	return nil
}

func filterShimcacheEntries(entries []analyse.ShimcacheEntry, patterns []*regexp.Regexp) []analyse.ShimcacheEntry {
	var out []analyse.ShimcacheEntry
	for _, e := range entries {
		for _, re := range patterns {
			if re.MatchString(e.Path) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

var srumFlags struct {
	software  string
	statsOnly bool
	output    string
}

var srumCmd = &cobra.Command{
	Use:   "srum <srudb.dat>",
	Short: "Recover candidate application-execution entries from a SRUM database",
	Args:  cobra.ExactArgs(1),
	RunE:  runSRUM,
}

func init() {
	f := srumCmd.Flags()
	f.StringVar(&srumFlags.software, "software", "", "accepted for compatibility; SOFTWARE-hive SID resolution is not implemented")
	f.BoolVar(&srumFlags.statsOnly, "stats-only", false, "print only the recovered entry count")
	f.StringVar(&srumFlags.output, "output", "", "write JSON output to this file instead of stdout")
	analyseCmd.AddCommand(srumCmd)
}

func runSRUM(cmd *cobra.Command, args []string) error {
	if srumFlags.software == "" {
		return chainsawerrors.Usage("analyse srum requires --software <hive>")
	}

	entries, err := analyse.AnalyseSRUM(args[0], false)
	if err != nil {
		return chainsawerrors.New(chainsawerrors.KindParseRecord, "failed to analyse SRUM database", err)
	}

	if srumFlags.statsOnly {
		ui.Info("%d candidate entries recovered", len(entries))
		return nil
	}

	out := os.Stdout
	if srumFlags.output != "" {
		f, err := os.Create(srumFlags.output)
		if err != nil {
			return chainsawerrors.IO("failed to create output file", err)
		}
		defer f.Close()
		out = f
	}
	if err := analyse.WriteSRUMJSON(out, entries); err != nil {
		return chainsawerrors.Rendering("failed to render SRUM output", err)
	}

	for _, e := range entries {
		if e.Smuggled {
			ui.Warn("possible Unicode smuggling in %q: %s", e.ApplicationName, e.SmuggledWhy)
		}
	}
	ui.Info("%d candidate entries recovered", len(entries))
	return nil
}
