package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhalvorsen/sockpool/internal/bandetect"
	"github.com/mhalvorsen/sockpool/internal/config"
	"github.com/mhalvorsen/sockpool/internal/identity"
	"github.com/mhalvorsen/sockpool/internal/ledger"
	"github.com/mhalvorsen/sockpool/internal/login"
	"github.com/mhalvorsen/sockpool/internal/logging"
	"github.com/mhalvorsen/sockpool/internal/memory"
	"github.com/mhalvorsen/sockpool/internal/scheduler"
	"github.com/mhalvorsen/sockpool/internal/selector"
	"github.com/mhalvorsen/sockpool/internal/store"
)

func init() {
	logging.InitializeLogger(&config.Config{LogLevel: "ERROR", LogFormat: "text"})
}

// instantDriver authenticates every account on the first attempt.
type instantDriver struct{}

func (instantDriver) SubmitCredentials(accountID, credential string) error { return nil }
func (instantDriver) OnLoginSurface() bool                                 { return false }
func (instantDriver) BanSignal() (string, bool)                            { return "", false }
func (instantDriver) ClearCookies()                                        {}

type recordingActor struct {
	performed [][3]string
	err       error
}

func (a *recordingActor) Perform(actionType, targetID, content string) error {
	if a.err != nil {
		return a.err
	}
	a.performed = append(a.performed, [3]string{actionType, targetID, content})
	return nil
}

func baseConfig() config.Config {
	return config.Config{
		Enabled:          true,
		ActionType:       "comment",
		CooldownDuration: time.Millisecond,
		Targets:          []string{"post-1", "post-2"},
		Interval:         time.Hour,
	}
}

type runnerFixture struct {
	runner *Runner
	ledger *ledger.FileLedger
	mem    *memory.FileMemory
	actor  *recordingActor
}

func newRunnerFixture(t *testing.T, cfg config.Config, ids ...string) *runnerFixture {
	t.Helper()
	dir := t.TempDir()

	st, err := store.NewFileStore(dir)
	require.NoError(t, err)
	ld, err := ledger.NewFileLedger(dir)
	require.NoError(t, err)
	mem, err := memory.NewFileMemory(dir)
	require.NoError(t, err)
	for _, id := range ids {
		_, err := st.Create(id, "pw")
		require.NoError(t, err)
	}

	gw := ledger.NewGateway(ld)
	sel := selector.New(st, gw, cfg.CooldownDuration, cfg.ActionType)
	ctrl := login.NewController(sel, st, instantDriver{}, identity.NewNoopRotator(), bandetect.New(), login.Options{
		LoginTimeoutWindow: 10 * time.Millisecond,
		LoginPollInterval:  time.Millisecond,
	})

	actor := &recordingActor{}
	gen := NewTemplateGenerator([]string{"hello {target}"})
	r := NewRunner(cfg, scheduler.New(ctrl), gw, identity.NewNoopRotator(), actor, mem, gen, logging.Get())

	return &runnerFixture{runner: r, ledger: ld, mem: mem, actor: actor}
}

func TestExecuteCyclePerformsAndRecords(t *testing.T) {
	f := newRunnerFixture(t, baseConfig(), "alice@x.test")

	require.NoError(t, f.runner.executeCycle(context.Background(), logging.Get()))

	require.Len(t, f.actor.performed, 1)
	assert.Equal(t, [3]string{"comment", "post-1", "hello post-1"}, f.actor.performed[0])

	done, err := f.ledger.HasPerformed("alice@x.test", "comment", "post-1")
	require.NoError(t, err)
	assert.True(t, done, "the performed action lands in the ledger")

	// The active-account marker is cleared once the cycle releases the session.
	_, held, err := f.mem.Get(memory.ActiveAccountKey)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestExecuteCycleSkipsActionedTargets(t *testing.T) {
	f := newRunnerFixture(t, baseConfig(), "alice@x.test")
	require.NoError(t, f.ledger.Record(ledger.Record{
		AccountID:  "alice@x.test",
		ActionType: "comment",
		TargetID:   "post-1",
		OccurredAt: time.Now().Add(-time.Hour),
	}))

	require.NoError(t, f.runner.executeCycle(context.Background(), logging.Get()))

	require.Len(t, f.actor.performed, 1)
	assert.Equal(t, "post-2", f.actor.performed[0][1], "already-actioned targets are skipped")
}

func TestExecuteCycleNoTargetLeft(t *testing.T) {
	f := newRunnerFixture(t, baseConfig(), "alice@x.test")
	for _, target := range []string{"post-1", "post-2"} {
		require.NoError(t, f.ledger.Record(ledger.Record{
			AccountID:  "alice@x.test",
			ActionType: "comment",
			TargetID:   target,
			OccurredAt: time.Now().Add(-time.Hour),
		}))
	}

	// All targets exhausted for this account: a clean no-op, not an error.
	require.NoError(t, f.runner.executeCycle(context.Background(), logging.Get()))
	assert.Empty(t, f.actor.performed)
}

func TestExecuteCycleDryRun(t *testing.T) {
	cfg := baseConfig()
	cfg.DryRun = true
	f := newRunnerFixture(t, cfg, "alice@x.test")

	require.NoError(t, f.runner.executeCycle(context.Background(), logging.Get()))

	assert.Empty(t, f.actor.performed, "dry run never reaches the actor")
	done, err := f.ledger.HasPerformed("alice@x.test", "comment", "post-1")
	require.NoError(t, err)
	assert.False(t, done, "dry run leaves no ledger trace")
}

func TestExecuteCycleActorFailure(t *testing.T) {
	f := newRunnerFixture(t, baseConfig(), "alice@x.test")
	f.actor.err = errors.New("post rejected")

	err := f.runner.executeCycle(context.Background(), logging.Get())
	require.Error(t, err)

	done, lerr := f.ledger.HasPerformed("alice@x.test", "comment", "post-1")
	require.NoError(t, lerr)
	assert.False(t, done, "failed actions are not recorded")
}

func TestExecuteCycleNoAccounts(t *testing.T) {
	f := newRunnerFixture(t, baseConfig())

	err := f.runner.executeCycle(context.Background(), logging.Get())
	require.Error(t, err)
	assert.ErrorIs(t, err, selector.ErrNoEligibleAccount)
}

func TestCircuitBreakerTripsAndResets(t *testing.T) {
	cfg := baseConfig()
	cfg.CircuitBreakerEnabled = true
	cfg.CircuitBreakerThreshold = 2
	cfg.CircuitBreakerResetInterval = time.Minute
	cfg.RunDays = allWeekdays()
	cfg.RunStartTime = "00:00"
	cfg.RunEndTime = "23:59"
	cfg.RunTimeLocation = time.UTC
	f := newRunnerFixture(t, cfg) // no accounts: every cycle fails

	f.runner.runCycle(context.Background())
	assert.False(t, f.runner.breakerTripped)
	f.runner.runCycle(context.Background())
	assert.True(t, f.runner.breakerTripped, "breaker trips at the threshold")

	// While tripped and inside the reset interval, cycles are skipped and the
	// error count stays frozen.
	f.runner.runCycle(context.Background())
	assert.Equal(t, 2, f.runner.consecutiveErrors)

	// After the reset interval the breaker re-closes and cycles resume with a
	// fresh error count.
	f.runner.breakerTripTime = time.Now().Add(-2 * time.Minute)
	f.runner.runCycle(context.Background())
	assert.False(t, f.runner.breakerTripped)
	assert.Equal(t, 1, f.runner.consecutiveErrors)
}

func TestCheckRunWindow(t *testing.T) {
	cfg := baseConfig()
	cfg.RunStartTime = "00:00"
	cfg.RunEndTime = "23:59"
	cfg.RunTimeLocation = time.UTC

	t.Run("Allowed Day And Time", func(t *testing.T) {
		c := cfg
		c.RunDays = allWeekdays()
		f := newRunnerFixture(t, c)
		assert.True(t, f.runner.checkRunWindow())
	})

	t.Run("Disallowed Day", func(t *testing.T) {
		c := cfg
		today := time.Now().UTC().Weekday()
		for _, d := range allWeekdays() {
			if d != today {
				c.RunDays = append(c.RunDays, d)
			}
		}
		f := newRunnerFixture(t, c)
		assert.False(t, f.runner.checkRunWindow())
	})

	t.Run("Outside Time Range", func(t *testing.T) {
		c := cfg
		c.RunDays = allWeekdays()
		c.RunEndTime = "00:00" // every HH:MM is >= the end
		f := newRunnerFixture(t, c)
		assert.False(t, f.runner.checkRunWindow())
	})
}

func TestRunnerDisabledSkipsCycle(t *testing.T) {
	cfg := baseConfig()
	cfg.Enabled = false
	f := newRunnerFixture(t, cfg, "alice@x.test")

	f.runner.runCycle(context.Background())
	assert.Empty(t, f.actor.performed)
}

func TestRunnerShutdown(t *testing.T) {
	cfg := baseConfig()
	cfg.RunDays = allWeekdays()
	cfg.RunStartTime = "00:00"
	cfg.RunEndTime = "23:59"
	cfg.RunTimeLocation = time.UTC
	f := newRunnerFixture(t, cfg, "alice@x.test")

	done := make(chan struct{})
	go func() {
		f.runner.Run()
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	f.runner.Shutdown()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after Shutdown")
	}
}

func TestTemplateGenerator(t *testing.T) {
	t.Run("Substitutes Target", func(t *testing.T) {
		g := NewTemplateGenerator([]string{"re {target}: agreed"})
		out, err := g.Generate("post-7")
		require.NoError(t, err)
		assert.Equal(t, "re post-7: agreed", out)
	})

	t.Run("Picks By Index", func(t *testing.T) {
		g := NewTemplateGenerator([]string{"first", "second", "third"})
		g.intn = func(n int) int { return 2 }
		out, err := g.Generate("post-1")
		require.NoError(t, err)
		assert.Equal(t, "third", out)
	})

	t.Run("Empty Texts", func(t *testing.T) {
		g := NewTemplateGenerator(nil)
		_, err := g.Generate("post-1")
		assert.Error(t, err)
	})
}

func allWeekdays() []time.Weekday {
	return []time.Weekday{
		time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
		time.Thursday, time.Friday, time.Saturday,
	}
}
