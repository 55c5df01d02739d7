package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/mhalvorsen/sockpool/internal/bandetect"
	"github.com/mhalvorsen/sockpool/internal/config"
	"github.com/mhalvorsen/sockpool/internal/ledger"
	"github.com/mhalvorsen/sockpool/internal/logging"
	"github.com/mhalvorsen/sockpool/internal/login"
	"github.com/mhalvorsen/sockpool/internal/scheduler"
	"github.com/mhalvorsen/sockpool/internal/selector"
	"github.com/mhalvorsen/sockpool/internal/session"
)

// acquireCmd performs a single acquisition cycle and exits. Primarily for
// visibility and debugging configuration and pool state.
var acquireCmd = &cobra.Command{
	Use:   "acquire",
	Short: "Acquire one authenticated session and report which account was used",
	Long: `Runs one full acquisition cycle: selects an account through the tiered
selection algorithm, drives it through login with bounded retries and
identity rotation, and reports the authenticated account. No action is
performed and nothing is written to the ledger.`,
	Run: func(cmd *cobra.Command, args []string) {
		acquireOnce(cfgFile, dryRunOverride)
	},
}

func init() {
	rootCmd.AddCommand(acquireCmd)
}

func acquireOnce(configPath string, dryRunFlag bool) {
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

	driver, err := session.NewHTTPDriver(cfg.LoginURL, cfg.LoginTimeoutWindow)
	if err != nil {
		log.Fatalf("Error creating session driver: %v", err)
	}

	gateway := ledger.NewGateway(b.ledger)
	sel := selector.New(b.store, gateway, cfg.CooldownDuration, cfg.ActionType)
	controller := login.NewController(sel, b.store, driver, newRotator(cfg), bandetect.New(cfg.BanMessages...), login.Options{
		MaxAttemptsPerAccount: cfg.MaxLoginAttemptsPerAccount,
		LoginTimeoutWindow:    cfg.LoginTimeoutWindow,
		LoginPollInterval:     cfg.LoginPollInterval,
	})
	sched := scheduler.New(controller)

	auth, err := sched.AcquireSession(context.Background())
	if err != nil {
		log.Fatalf("Acquisition failed: %v", err)
	}

	fmt.Printf("Acquired session for account %s (reason: %s) at %s.\n", auth.ID, auth.SelectionReason, auth.LoggedInAt.Local().Format("15:04:05"))
}
