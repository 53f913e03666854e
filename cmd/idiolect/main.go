package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "idiolect",
	Short: "Learn and summarize how a user writes",
	Long: `idiolect watches the messages a user writes and keeps a running profile
of their speaking style: sentence endings, fillers, first-person pronouns,
favourite words and phrases, politeness and message length.

Run "idiolect start" for the HTTP API, or "idiolect mcp" to expose the
profiles to an MCP client over stdio.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the idiolect version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "idiolect %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd, mcpCmd)
	rootCmd.AddCommand(learnCmd, importCmd, summaryCmd, profileCmd, stylesCmd, rebuildCmd)
	rootCmd.AddCommand(configCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
