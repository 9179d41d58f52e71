// Command prenos runs the asset-transfer workflow engine.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/erazemk/prenos/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var cfgFile string

	root := &cobra.Command{
		Use:   "prenos",
		Short: "Asset transfer workflow engine",
		Long: `prenos decides whether a requested change of an asset's user, department
or location needs approval, keeps conflicting requests over the same assets
apart, and applies approved transfers atomically, right away or on a schedule.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (yaml, json or toml)")
	flags.StringP("db", "d", "", "SQLite database path (default: prenos.sqlite3)")
	flags.StringP("log", "l", "", "log file path (default: stdout/stderr only)")
	flags.StringP("admin-user", "u", "", "admin username on first run (default: admin)")
	// Unset flags fall through to the config file, the environment and the
	// defaults.
	_ = v.BindPFlag("db", flags.Lookup("db"))
	_ = v.BindPFlag("log", flags.Lookup("log"))
	_ = v.BindPFlag("admin_user", flags.Lookup("admin-user"))

	root.AddCommand(newServeCmd(v, &cfgFile), newInitCmd(v, &cfgFile))
	return root
}
