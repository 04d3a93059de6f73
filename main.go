package main

import (
	"fmt"
	"os"

	"github.com/PolarWolf314/passgit/cmd"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "passgit",
	Short: "passgit - keep a password store in sync with a git remote.",
	Long: `passgit clones, pulls, pushes and syncs a password store with a git remote
over SSH or HTTPS, and helps recover the store when a sync goes wrong.

Usage:
  passgit <command> [flags]

Available Commands:
  git        Clone, pull, push, sync, reset, recover and gc the store
  remote     Configure the remote url, auth mode, proxy and host key
  key        Generate or import the SSH key
  config     Show and change settings

Run 'passgit help <command>' for more details on a specific command.
`,
	Run: func(cmd *cobra.Command, args []string) {
		figure.NewColorFigure("passgit", "alligator2", "green", true).Print()
		fmt.Println()
		fmt.Println("Run 'passgit --help' to see available commands.")
	},
}

func init() {
	rootCmd.AddCommand(cmd.GitCmd)
	rootCmd.AddCommand(cmd.RemoteCmd)
	rootCmd.AddCommand(cmd.KeyCmd)
	rootCmd.AddCommand(cmd.ConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
