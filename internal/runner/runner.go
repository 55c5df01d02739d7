package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/mhalvorsen/sockpool/internal/config"
	"github.com/mhalvorsen/sockpool/internal/cooldown"
	"github.com/mhalvorsen/sockpool/internal/identity"
	"github.com/mhalvorsen/sockpool/internal/ledger"
	"github.com/mhalvorsen/sockpool/internal/logging"
	"github.com/mhalvorsen/sockpool/internal/memory"
	"github.com/mhalvorsen/sockpool/internal/scheduler"
	"github.com/mhalvorsen/sockpool/internal/session"
)

// Runner manages the main execution loop. One cycle acquires an
// authenticated session, performs at most one deduplicated action under the
// cooldown floor, records it, and releases the session. Cycles are strictly
// sequential; the rotator mutates shared process-wide network state, so only
// one session is ever active.
type Runner struct {
	cfg       config.Config
	scheduler *scheduler.Scheduler
	gateway   *ledger.Gateway
	rotator   identity.Rotator
	actor     session.Actor
	mem       memory.Memory
	generator ContentGenerator
	logger    logging.Logger
	// Circuit Breaker State
	consecutiveErrors int
	breakerTripped    bool
	breakerTripTime   time.Time
	stopChan          chan struct{}
	cancel            context.CancelFunc
}

// NewRunner creates a new Runner.
func NewRunner(cfg config.Config, sched *scheduler.Scheduler, gw *ledger.Gateway, rot identity.Rotator, actor session.Actor, mem memory.Memory, gen ContentGenerator, logger logging.Logger) *Runner {
	return &Runner{
		cfg:       cfg,
		scheduler: sched,
		gateway:   gw,
		rotator:   rot,
		actor:     actor,
		mem:       mem,
		generator: gen,
		logger:    logger.Named("runner"),
		stopChan:  make(chan struct{}),
	}
}

// Run starts the main execution loop and blocks until Shutdown is called.
func (r *Runner) Run() {
	r.logger.Info("Starting runner", "interval", r.cfg.Interval, "action_type", r.cfg.ActionType, "window_days", r.cfg.RunDays, "window_start", r.cfg.RunStartTime, "window_end", r.cfg.RunEndTime, "window_tz", r.cfg.RunTimeLocation)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	defer cancel()

	// Run once immediately at startup
	r.runCycle(ctx)

Loop:
	for {
		select {
		case <-ticker.C:
			r.runCycle(ctx)
		case <-r.stopChan:
			r.logger.Info("Shutdown signal received, stopping runner loop.")
			break Loop
		}
	}

	r.logger.Info("Runner loop stopped.")
}

// Shutdown gracefully stops the runner.
func (r *Runner) Shutdown() {
	r.logger.Info("Initiating runner shutdown...")

	close(r.stopChan)
	if r.cancel != nil {
		r.cancel()
	}

	r.logger.Info("Runner shutdown complete.")
}

// checkRunWindow checks if the current time is within the allowed schedule.
func (r *Runner) checkRunWindow() bool {
	now := time.Now().In(r.cfg.RunTimeLocation)
	currentDay := now.Weekday()
	currentTimeStr := now.Format("15:04") // HH:MM format

	isAllowedDay := false
	for _, allowedDay := range r.cfg.RunDays {
		if currentDay == allowedDay {
			isAllowedDay = true
			break
		}
	}
	if !isAllowedDay {
		r.logger.Debug("Skipping cycle: Not an allowed day", "current_day", currentDay, "allowed_days", r.cfg.RunDays)
		return false
	}

	if currentTimeStr < r.cfg.RunStartTime || currentTimeStr >= r.cfg.RunEndTime {
		r.logger.Debug("Skipping cycle: Outside allowed time range", "current_time", currentTimeStr, "start_time", r.cfg.RunStartTime, "end_time", r.cfg.RunEndTime)
		return false
	}

	return true
}

// runCycle performs one acquire-act-release iteration.
func (r *Runner) runCycle(ctx context.Context) {
	cycleLogger := r.logger.With("cycle_start_time", time.Now().UTC().Format(time.RFC3339))
	cycleLogger.Info("Starting run cycle...")

	// Check -1: Is the circuit breaker tripped?
	if r.cfg.CircuitBreakerEnabled && r.breakerTripped {
		elapsedSinceTrip := time.Since(r.breakerTripTime)
		if elapsedSinceTrip < r.cfg.CircuitBreakerResetInterval {
			cycleLogger.Warn("Circuit breaker is tripped. Skipping cycle.", "tripped_since", elapsedSinceTrip.Round(time.Second), "reset_interval", r.cfg.CircuitBreakerResetInterval)
			cycleLogger.Info("Run cycle finished", "status", "skipped_breaker_tripped")
			return
		}
		cycleLogger.Warn("Circuit breaker reset interval elapsed. Resetting breaker and proceeding.", "reset_interval", r.cfg.CircuitBreakerResetInterval)
		r.breakerTripped = false
		r.consecutiveErrors = 0
	}

	// Check 0: Is the runner globally enabled?
	if !r.cfg.Enabled {
		cycleLogger.Warn("Runner is globally disabled (enabled=false). Skipping cycle.")
		cycleLogger.Info("Run cycle finished", "status", "skipped_disabled")
		return
	}

	// Check 1: Are we within the allowed run window?
	if !r.checkRunWindow() {
		cycleLogger.Info("Run cycle finished", "status", "skipped_schedule")
		return
	}

	err := r.executeCycle(ctx, cycleLogger)
	if err != nil {
		cycleLogger.Error("Cycle failed", "error", err)
	}

	// Update circuit breaker state based on cycle outcome
	if r.cfg.CircuitBreakerEnabled {
		if err != nil {
			r.consecutiveErrors++
			cycleLogger.Warn("Cycle completed with errors", "consecutive_errors", r.consecutiveErrors, "threshold", r.cfg.CircuitBreakerThreshold)
			if r.consecutiveErrors >= r.cfg.CircuitBreakerThreshold {
				if !r.breakerTripped {
					cycleLogger.Error("Circuit breaker threshold reached! Tripping breaker.", "threshold", r.cfg.CircuitBreakerThreshold, "reset_interval", r.cfg.CircuitBreakerResetInterval)
					r.breakerTripped = true
					r.breakerTripTime = time.Now()
				}
			}
		} else {
			if r.consecutiveErrors > 0 {
				cycleLogger.Info("Cycle completed successfully, resetting consecutive error count.", "previous_error_count", r.consecutiveErrors)
			}
			r.consecutiveErrors = 0
		}
	}

	cycleLogger.Info("Run cycle finished", "status", "executed", "had_errors", err != nil)
}

// executeCycle is the body of one cycle: rotate, acquire, act, release.
func (r *Runner) executeCycle(ctx context.Context, logger logging.Logger) error {
	// Fresh network identity before each session. Best-effort.
	if err := r.rotator.Rotate(ctx); err != nil {
		logger.Warn("Identity rotation failed, proceeding without it", "error", err)
	}

	auth, err := r.scheduler.AcquireSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire session: %w", err)
	}
	logger = logger.With("account_id", auth.ID)

	if err := r.mem.Set(memory.ActiveAccountKey, auth.ID); err != nil {
		logger.Warn("Failed to record active account", "error", err)
	}
	defer func() {
		if err := r.mem.Delete(memory.ActiveAccountKey); err != nil {
			logger.Warn("Failed to clear active account", "error", err)
		}
	}()

	// Dedup: pick the first target this account has not acted on yet.
	targetID := ""
	for _, t := range r.cfg.Targets {
		if !r.gateway.HasPerformed(auth.ID, r.cfg.ActionType, t) {
			targetID = t
			break
		}
		logger.Debug("Target already actioned by this account, skipping", "target_id", t)
	}
	if targetID == "" {
		logger.Info("No unactioned target remains for this account.")
		return nil
	}

	// Respect the per-account cooldown before acting.
	last, ok := r.gateway.LastActionTime(auth.ID, r.cfg.ActionType)
	if !ok {
		last = time.Time{}
	}
	if eligible, remaining := cooldown.Eligible(last, r.cfg.CooldownDuration, time.Now()); !eligible {
		logger.Info("Cooldown active, waiting", "remaining", remaining.Round(time.Second))
		if err := cooldown.Wait(ctx, remaining); err != nil {
			return fmt.Errorf("cooldown wait interrupted: %w", err)
		}
	}

	content, err := r.generator.Generate(targetID)
	if err != nil {
		return fmt.Errorf("failed to generate content: %w", err)
	}

	if r.cfg.DryRun {
		logger.Info("[DRY-RUN] Would perform action", "action_type", r.cfg.ActionType, "target_id", targetID)
		return nil
	}

	if err := r.actor.Perform(r.cfg.ActionType, targetID, content); err != nil {
		return fmt.Errorf("failed to perform action on %s: %w", targetID, err)
	}
	logger.Info("Action performed", "action_type", r.cfg.ActionType, "target_id", targetID)

	// The action already happened externally; a failed ledger write is
	// reported inside the gateway and must not fail the cycle.
	_ = r.gateway.Record(auth.ID, r.cfg.ActionType, targetID, content, "selected via "+string(auth.SelectionReason))

	return nil
}
