package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the inboxsorter application
var rootCmd = newRootCmd()

// version will be set by main
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "inboxsorter",
		Short: "Sorts your Gmail inbox into categories",
		Long: `inboxsorter signs you in with Google, lists your recent Gmail messages
and sorts them into Important, Promotions, Social, Marketing, Spam and General.

Classification uses an OpenAI model when an API key is available and falls
back to keyword matching otherwise.

It can run as:
  - A web app (default)
  - A one-shot classifier on the command line
  - An MCP (Model Context Protocol) server for AI assistants`,
		SilenceUsage: true,
	}
	root.SetVersionTemplate(`{{printf "inboxsorter version %s\n" .Version}}`)

	root.AddCommand(newServeCmd())
	root.AddCommand(newClassifyCmd())
	root.AddCommand(newMCPCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
