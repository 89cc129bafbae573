package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version, GitCommit, and BuildDate are set at build time via -ldflags;
// these defaults apply to a local `go build` with no linker flags.
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print chainsaw's version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("chainsaw %s\n", Version)
		fmt.Printf("  Commit: %s\n", GitCommit)
		fmt.Printf("  Built:  %s\n", BuildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
