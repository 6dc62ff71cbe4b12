package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zurb/foundation-apps/build-tools/pkg/buildsys/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "tool",
	Short: "Build tools for Foundation for Apps",
	Long: `This command bundles the tools used to build the Foundation for Apps docs.
This includes the task runner, the dev server, the route generator, ...`,
	SilenceUsage: true,
}

func init() {
	cmd.AddLoggingFlags(rootCmd)
	rootCmd.AddCommand(cmd.RootCmd)
}

// Execute runs the command line interface and exits with a non-zero status on errors.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
