package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	chainsawerrors "github.com/triagelabs/chainsaw/internal/errors"
	"github.com/triagelabs/chainsaw/internal/lint"
	"github.com/triagelabs/chainsaw/internal/rule"
	"github.com/triagelabs/chainsaw/internal/ui"
)

var lintFlags struct {
	kind string
	tau  bool
}

var lintCmd = &cobra.Command{
	Use:   "lint <path>",
	Short: "Validate rule files without running them against any artefact",
	Args:  cobra.ExactArgs(1),
	RunE:  runLint,
}

func init() {
	f := lintCmd.Flags()
	f.StringVar(&lintFlags.kind, "kind", "", "rule dialect to validate against: chainsaw or sigma")
	f.BoolVarP(&lintFlags.tau, "tau", "t", false, "render each rule's optimised tau expression as YAML")
	rootCmd.AddCommand(lintCmd)
}

func runLint(cmd *cobra.Command, args []string) error {
	var kind rule.Kind
	switch lintFlags.kind {
	case "chainsaw":
		kind = rule.KindChainsaw
	case "sigma":
		kind = rule.KindSigma
	default:
		return chainsawerrors.Usage("lint requires --kind chainsaw or --kind sigma")
	}

	results, summary := lint.Lint(kind, args[0], lintFlags.tau)
	for _, line := range lint.FailureLines(results) {
		fmt.Fprintln(os.Stderr, line)
	}
	for _, r := range results {
		for _, w := range r.Warnings {
			ui.Warn("%s: %s", r.Path, w)
		}
		for _, y := range r.TauYAML {
			fmt.Fprintln(os.Stdout, y)
		}
	}

	ui.Info("%s", summary.String())
	return nil
}
