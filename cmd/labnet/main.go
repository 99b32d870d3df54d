// Command labnet runs the lab network orchestrator and talks to it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Global flags shared by the subcommands.
var (
	configPath string
	remoteURL  string
	remoteUser string
	remotePass string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "labnet",
		Short: "labnet - build a fake internet in a box",
		Long: `labnet allocates lab networks and addresses, runs authoritative
name servers as containers and links them into one delegation hierarchy
from the root zone down.

Without --url, commands open the local data directory directly. They
cannot do so while "labnet serve" holds it; point --url at the API
instead.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf(
		"labnet version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	pf := root.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Path to YAML or TOML config (or set LABNET_CONFIG)")
	pf.StringVar(&remoteURL, "url", "", "Base URL of a running labnet API, e.g. http://127.0.0.1:5051")
	pf.StringVar(&remoteUser, "user", "", "API user")
	pf.StringVar(&remotePass, "password", "", "API password")

	root.AddCommand(
		newServeCmd(),
		newCallCmd(),
		newModulesCmd(),
		newListCmd(),
		newSaveCmd(),
		newRestoreCmd(),
		newZoneCmd(),
		newDigCmd(),
	)
	return root
}
