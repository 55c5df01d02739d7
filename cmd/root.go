package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Used for flags.
	cfgFile        string
	dryRunOverride bool

	rootCmd = &cobra.Command{
		Use:   "sockpool",
		Short: "Operate a pool of automation accounts against a target platform",
		Long: `Sockpool schedules a pool of interchangeable automation accounts that
perform rate-limited, deduplicated actions against a target platform through
an anonymizing network. It selects a usable account, logs it in with bounded
retries and identity rotation, quarantines banned accounts, and records every
action in a ledger used for cooldowns and deduplication.`,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sockpool/sockpool.toml or ./sockpool.toml)")
	rootCmd.PersistentFlags().BoolVar(&dryRunOverride, "dry-run", false, "Override the dry_run setting in the config file.")
}
