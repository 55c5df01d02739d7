package login

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhalvorsen/sockpool/internal/bandetect"
	"github.com/mhalvorsen/sockpool/internal/config"
	"github.com/mhalvorsen/sockpool/internal/ledger"
	"github.com/mhalvorsen/sockpool/internal/logging"
	"github.com/mhalvorsen/sockpool/internal/selector"
	"github.com/mhalvorsen/sockpool/internal/store"
)

func init() {
	logging.InitializeLogger(&config.Config{LogLevel: "ERROR", LogFormat: "text"})
}

// scriptedDriver replays a per-account script of login outcomes. Each entry is
// one credential submission; "ok" clears the login surface immediately,
// "stuck" never clears it, "banned" clears it and raises the ban banner,
// "err" fails the submission itself.
type scriptedDriver struct {
	scripts map[string][]string

	step    string
	submits int
	cleared int
}

func (d *scriptedDriver) SubmitCredentials(accountID, credential string) error {
	d.submits++
	script := d.scripts[accountID]
	if len(script) == 0 {
		d.step = "stuck"
	} else {
		d.step = script[0]
		d.scripts[accountID] = script[1:]
	}
	if d.step == "err" {
		return errors.New("credential fields not found")
	}
	return nil
}

func (d *scriptedDriver) OnLoginSurface() bool {
	return d.step == "stuck"
}

func (d *scriptedDriver) BanSignal() (string, bool) {
	if d.step == "banned" {
		return bandetect.PermanentBanMessage, true
	}
	return "", false
}

func (d *scriptedDriver) ClearCookies() { d.cleared++ }

type fakeRotator struct {
	calls int
	err   error
}

func (r *fakeRotator) Rotate(ctx context.Context) error {
	r.calls++
	return r.err
}

type harness struct {
	store  *store.FileStore
	ledger *ledger.FileLedger
	driver *scriptedDriver
	rot    *fakeRotator
	ctrl   *Controller
}

func newHarness(t *testing.T, scripts map[string][]string, ids ...string) *harness {
	t.Helper()
	dir := t.TempDir()

	st, err := store.NewFileStore(dir)
	require.NoError(t, err)
	ld, err := ledger.NewFileLedger(dir)
	require.NoError(t, err)
	for _, id := range ids {
		_, err := st.Create(id, "pw-"+id)
		require.NoError(t, err)
	}

	drv := &scriptedDriver{scripts: scripts}
	rot := &fakeRotator{}
	sel := selector.New(st, ledger.NewGateway(ld), 10*time.Minute, "comment")

	ctrl := NewController(sel, st, drv, rot, bandetect.New(), Options{
		MaxAttemptsPerAccount: 3,
		LoginTimeoutWindow:    10 * time.Millisecond,
		LoginPollInterval:     time.Millisecond,
	})

	return &harness{store: st, ledger: ld, driver: drv, rot: rot, ctrl: ctrl}
}

func TestAcquireFirstAttemptSucceeds(t *testing.T) {
	h := newHarness(t, map[string][]string{"alice@x.test": {"ok"}}, "alice@x.test")

	acct, reason, err := h.ctrl.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice@x.test", acct.ID)
	assert.Equal(t, selector.ReasonNeverActed, reason)
	assert.Equal(t, 1, h.driver.submits)
	assert.Zero(t, h.rot.calls, "no rotation needed on a clean first attempt")
}

func TestAcquireRetriesThenSucceeds(t *testing.T) {
	h := newHarness(t, map[string][]string{
		"alice@x.test": {"stuck", "stuck", "ok"},
	}, "alice@x.test")

	acct, _, err := h.ctrl.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice@x.test", acct.ID)
	assert.Equal(t, 3, h.driver.submits)
	// Each failed attempt rotates identity and clears cookies before retrying.
	assert.Equal(t, 2, h.rot.calls)
	assert.Equal(t, 2, h.driver.cleared)
}

func TestAcquireExcludesTimedOutAccount(t *testing.T) {
	// alice never clears the login surface; bob succeeds. The controller must
	// burn alice's full budget, exclude her for this call, and move on.
	h := newHarness(t, map[string][]string{
		"bob@x.test": {"ok"},
	}, "alice@x.test", "bob@x.test")
	// Deterministic tier-1 pick: make alice the sole fresh account.
	require.NoError(t, h.ledger.Record(ledger.Record{
		AccountID:  "bob@x.test",
		ActionType: "comment",
		TargetID:   "post-1",
		OccurredAt: time.Now().Add(-time.Hour),
	}))

	acct, _, err := h.ctrl.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bob@x.test", acct.ID)
	assert.Equal(t, 4, h.driver.submits, "3 attempts for alice, 1 for bob")

	// Timeouts do not change account status.
	stored, err := h.store.Get("alice@x.test")
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, stored.Status)
}

func TestAcquireSubmitErrorCountsAsAttempt(t *testing.T) {
	h := newHarness(t, map[string][]string{
		"alice@x.test": {"err", "ok"},
	}, "alice@x.test")

	acct, _, err := h.ctrl.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice@x.test", acct.ID)
	assert.Equal(t, 2, h.driver.submits)
	assert.Equal(t, 1, h.rot.calls)
}

func TestAcquireBanMarksAccountAndReselects(t *testing.T) {
	h := newHarness(t, map[string][]string{
		"alice@x.test": {"banned"},
		"bob@x.test":   {"ok"},
	}, "alice@x.test", "bob@x.test")
	require.NoError(t, h.ledger.Record(ledger.Record{
		AccountID:  "bob@x.test",
		ActionType: "comment",
		TargetID:   "post-1",
		OccurredAt: time.Now().Add(-time.Hour),
	}))

	acct, _, err := h.ctrl.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bob@x.test", acct.ID)

	// The ban verdict is persisted immediately, not just excluded in memory.
	stored, err := h.store.Get("alice@x.test")
	require.NoError(t, err)
	assert.Equal(t, store.StatusBanned, stored.Status)
}

func TestAcquireBanDoesNotBurnFullBudget(t *testing.T) {
	h := newHarness(t, map[string][]string{
		"alice@x.test": {"banned"},
		"bob@x.test":   {"ok"},
	}, "alice@x.test", "bob@x.test")
	require.NoError(t, h.ledger.Record(ledger.Record{
		AccountID:  "bob@x.test",
		ActionType: "comment",
		TargetID:   "post-1",
		OccurredAt: time.Now().Add(-time.Hour),
	}))

	_, _, err := h.ctrl.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, h.driver.submits, "one submission per account, no retries after a ban verdict")
}

func TestAcquireExhausted(t *testing.T) {
	// Every account times out; once all are excluded, Acquire terminates with
	// the selector's sentinel instead of looping.
	h := newHarness(t, map[string][]string{}, "alice@x.test", "bob@x.test")

	_, _, err := h.ctrl.Acquire(context.Background())
	assert.ErrorIs(t, err, selector.ErrNoEligibleAccount)
	assert.Equal(t, 6, h.driver.submits, "3 attempts each before exhaustion")
}

func TestAcquireContextCancellation(t *testing.T) {
	h := newHarness(t, map[string][]string{}, "alice@x.test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := h.ctrl.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.driver.submits)
}

func TestAcquireRotationFailureIsNonFatal(t *testing.T) {
	h := newHarness(t, map[string][]string{
		"alice@x.test": {"stuck", "ok"},
	}, "alice@x.test")
	h.rot.err = errors.New("control port unreachable")

	acct, _, err := h.ctrl.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice@x.test", acct.ID)
	assert.Equal(t, 1, h.rot.calls)
}
