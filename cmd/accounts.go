package cmd

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mhalvorsen/sockpool/internal/config"
	"github.com/mhalvorsen/sockpool/internal/cooldown"
	"github.com/mhalvorsen/sockpool/internal/ledger"
	"github.com/mhalvorsen/sockpool/internal/logging"
)

var rmYes bool

// accountsCmd groups account pool management subcommands.
var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage the account pool",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts with their status and cooldown state",
	Long: `Loads the configuration and lists every account in the pool, including
its last recorded action and how much cooldown remains before it is
eligible again. Credentials are never printed.`,
	Run: func(cmd *cobra.Command, args []string) {
		listAccounts(cfgFile, dryRunOverride)
	},
}

var accountsAddCmd = &cobra.Command{
	Use:   "add <id> <credential>",
	Short: "Add an account to the pool",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		addAccount(cfgFile, dryRunOverride, args[0], args[1])
	},
}

var accountsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete an account and its action history",
	Long: `Deletes the account and every ledger record it produced as one logical
operation. Requires the --yes flag; there is no interactive confirmation.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		removeAccount(cfgFile, dryRunOverride, args[0])
	},
}

func init() {
	accountsRmCmd.Flags().BoolVar(&rmYes, "yes", false, "Confirm deletion of the account and its history.")
	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsAddCmd)
	accountsCmd.AddCommand(accountsRmCmd)
	rootCmd.AddCommand(accountsCmd)
}

func listAccounts(configPath string, dryRunFlag bool) {
	cfg, err := config.LoadConfig(configPath, dryRunFlag)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	logging.InitializeLogger(cfg)

	b, err := openBackends(cfg)
	if err != nil {
		log.Fatalf("Error initializing storage backends: %v", err)
	}
	defer b.close()

	accounts, err := b.store.List()
	if err != nil {
		log.Fatalf("Error listing accounts: %v", err)
	}

	if len(accounts) == 0 {
		fmt.Println("No accounts in the pool.")
		return
	}

	gateway := ledger.NewGateway(b.ledger)
	now := time.Now()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Status", "Last " + cfg.ActionType, "Cooldown Remaining"})
	table.SetBorder(false)

	for _, acct := range accounts {
		lastStr := "never"
		remainingStr := "-"
		if last, ok := gateway.LastActionTime(acct.ID, cfg.ActionType); ok {
			lastStr = last.Local().Format(time.RFC3339)
			if eligible, remaining := cooldown.Eligible(last, cfg.CooldownDuration, now); !eligible {
				remainingStr = remaining.Round(time.Second).String()
			}
		}
		table.Append([]string{
			acct.ID,
			string(acct.Status),
			lastStr,
			remainingStr,
		})
	}
	table.Render()
}

func addAccount(configPath string, dryRunFlag bool, id, credential string) {
	cfg, err := config.LoadConfig(configPath, dryRunFlag)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	logging.InitializeLogger(cfg)

	b, err := openBackends(cfg)
	if err != nil {
		log.Fatalf("Error initializing storage backends: %v", err)
	}
	defer b.close()

	acct, err := b.store.Create(id, credential)
	if err != nil {
		log.Fatalf("Error creating account: %v", err)
	}
	fmt.Printf("Account %s added with status %s.\n", acct.ID, acct.Status)
}

func removeAccount(configPath string, dryRunFlag bool, id string) {
	if !rmYes {
		log.Fatalf("Refusing to delete account %q without --yes.", id)
	}

	cfg, err := config.LoadConfig(configPath, dryRunFlag)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	logging.InitializeLogger(cfg)

	b, err := openBackends(cfg)
	if err != nil {
		log.Fatalf("Error initializing storage backends: %v", err)
	}
	defer b.close()

	if err := b.store.Delete(id); err != nil {
		log.Fatalf("Error deleting account: %v", err)
	}
	// The SQL store cascades into the actions table itself; for the file
	// backends the history lives in a separate file and is removed here.
	if err := b.ledger.DeleteAccountHistory(id); err != nil {
		log.Fatalf("Account deleted, but removing its action history failed: %v", err)
	}
	fmt.Printf("Account %s and its action history deleted.\n", id)
}
