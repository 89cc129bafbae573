// Package cli wires the chainsaw command surface: a cobra root command
// carrying the global persistent flags, five subcommands
// (hunt, search, dump, lint, analyse) and a version subcommand, each
// converting its component
// package's errors into a consistent stderr/exit-code contract.
package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/triagelabs/chainsaw/internal/config"
	"github.com/triagelabs/chainsaw/internal/redact"
	"github.com/triagelabs/chainsaw/internal/telemetry"
	"github.com/triagelabs/chainsaw/internal/ui"
)

var (
	verbose    bool
	quiet      bool
	noBanner   bool
	noColor    bool
	numThreads int
	runLogPath string
	noRunLog   bool

	// jsonOutput is set by a subcommand's RunE as soon as it knows
	// whether --json/--jsonl was given, so main can report a fatal
	// error in the matching shape (see JSONOutputRequested).
	jsonOutput bool
)

// JSONOutputRequested reports whether the subcommand that just ran (or
// failed) was asked to produce JSON/JSONL output, so a fatal error can
// be reported as a JSON object instead of the default "[x] ..." line.
func JSONOutputRequested() bool { return jsonOutput }

var rootCmd = &cobra.Command{
	Use:   "chainsaw",
	Short: "Forensic triage of Windows artefacts",
	Long: `chainsaw hunts, searches, and dumps Windows forensic artefacts -
EVTX event logs, registry hives, ESEDB/SRUM databases, MFT records, and
JSON/XML - against detection rules written in a native dialect or a
subset of Sigma.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.Init(noColor)
		ui.SetQuiet(quiet)
		if !noBanner && !quiet {
			ui.Banner(Version)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose diagnostic output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress informational output")
	rootCmd.PersistentFlags().BoolVar(&noBanner, "no-banner", false, "suppress the startup banner")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().IntVar(&numThreads, "num-threads", 0, "worker count for file-parallel processing (default: number of CPUs)")
	rootCmd.PersistentFlags().StringVar(&runLogPath, "run-log", "", "append a JSONL record of this invocation to this file (default: ~/.chainsaw/runs.jsonl)")
	rootCmd.PersistentFlags().BoolVar(&noRunLog, "no-run-log", false, "disable the run log entirely")
}

// Execute runs the root command and returns its error, letting main map
// it to an exit code via the errors package. Unless --no-run-log is
// given, one RunEvent is appended to the run log (resolved by
// config.Load, same as the teacher's always-on audit log) regardless of
// outcome; command-line arguments are redacted first since a --tau
// filter or --rules path can legitimately embed a credential-shaped
// string an operator pasted in by mistake.
func Execute() error {
	start := time.Now()
	err := rootCmd.Execute()

	if noRunLog {
		return err
	}
	cfg, cfgErr := config.Load("", runLogPath, numThreads)
	if cfgErr != nil {
		ui.Warn("failed to resolve run log location: %v", cfgErr)
		return err
	}
	logger, openErr := telemetry.Open(cfg.RunLogPath)
	if openErr != nil {
		ui.Warn("failed to open run log %s: %v", cfg.RunLogPath, openErr)
		return err
	}
	defer logger.Close()

	event := telemetry.RunEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Command:    commandPath(),
		Args:       redact.Args(os.Args[1:]),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	if logErr := logger.Log(event); logErr != nil {
		ui.Warn("failed to write run log entry: %v", logErr)
	}
	return err
}

func commandPath() string {
	for _, a := range os.Args[1:] {
		if len(a) > 0 && a[0] != '-' {
			return a
		}
	}
	return ""
}
