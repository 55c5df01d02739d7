package cmd

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mhalvorsen/sockpool/internal/bandetect"
	"github.com/mhalvorsen/sockpool/internal/config"
	"github.com/mhalvorsen/sockpool/internal/ledger"
	"github.com/mhalvorsen/sockpool/internal/logging"
	"github.com/mhalvorsen/sockpool/internal/login"
	"github.com/mhalvorsen/sockpool/internal/runner"
	"github.com/mhalvorsen/sockpool/internal/scheduler"
	"github.com/mhalvorsen/sockpool/internal/selector"
	"github.com/mhalvorsen/sockpool/internal/session"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run sockpool in continuous mode",
	Long: `Starts the sockpool runner which periodically acquires an authenticated
account from the pool and performs the configured action on the next
unactioned target, respecting per-account cooldowns, login attempt caps,
and ban quarantine.`,
	Run: func(cmd *cobra.Command, args []string) {
		runSockpool(cfgFile, dryRunOverride)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runSockpool contains the main wiring.
func runSockpool(configPath string, dryRunFlag bool) {
	cfg, err := config.LoadConfig(configPath, dryRunFlag)
	if err != nil {
		// Use standard log here since logger isn't initialized yet
		log.Fatalf("Error loading configuration: %v", err)
	}

	logging.InitializeLogger(cfg)
	logger := logging.Get()

	logger.Info("Configuration loaded", "dry_run", cfg.DryRun, "store_type", cfg.StoreType)
	logger.Info("Effective Run Window", "days", cfg.RunDays, "start", cfg.RunStartTime, "end", cfg.RunEndTime, "tz", cfg.RunTimeLocation)

	b, err := openBackends(cfg)
	if err != nil {
		logger.Error("Error initializing storage backends", "type", cfg.StoreType, "error", err)
		os.Exit(1)
	}
	defer b.close()
	logger.Info("Storage backends initialized successfully", "type", cfg.StoreType)

	driver, err := session.NewHTTPDriver(cfg.LoginURL, cfg.LoginTimeoutWindow)
	if err != nil {
		logger.Error("Error creating session driver", "error", err)
		os.Exit(1)
	}

	rotator := newRotator(cfg)
	gateway := ledger.NewGateway(b.ledger)
	sel := selector.New(b.store, gateway, cfg.CooldownDuration, cfg.ActionType)
	detector := bandetect.New(cfg.BanMessages...)
	controller := login.NewController(sel, b.store, driver, rotator, detector, login.Options{
		MaxAttemptsPerAccount: cfg.MaxLoginAttemptsPerAccount,
		LoginTimeoutWindow:    cfg.LoginTimeoutWindow,
		LoginPollInterval:     cfg.LoginPollInterval,
	})
	sched := scheduler.New(controller)
	generator := runner.NewTemplateGenerator(cfg.CommentTexts)

	poolRunner := runner.NewRunner(*cfg, sched, gateway, rotator, driver, b.memory, generator, logger)
	logger.Info("Runner initialized. Starting main loop...")

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	go poolRunner.Run()

	sig := <-signalChan
	logger.Warn("Received signal, initiating shutdown...", "signal", sig)

	poolRunner.Shutdown()

	logger.Info("Sockpool shut down gracefully.")
}
