package scheduler

import (
	"context"
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
	"github.com/mhalvorsen/sockpool/internal/selector"
	"github.com/mhalvorsen/sockpool/internal/store"
)

func init() {
	logging.InitializeLogger(&config.Config{LogLevel: "ERROR", LogFormat: "text"})
}

type stubDriver struct{ stuck bool }

func (d stubDriver) SubmitCredentials(accountID, credential string) error { return nil }
func (d stubDriver) OnLoginSurface() bool                                 { return d.stuck }
func (d stubDriver) BanSignal() (string, bool)                            { return "", false }
func (d stubDriver) ClearCookies()                                        {}

func newScheduler(t *testing.T, drv stubDriver, ids ...string) *Scheduler {
	t.Helper()
	dir := t.TempDir()

	st, err := store.NewFileStore(dir)
	require.NoError(t, err)
	ld, err := ledger.NewFileLedger(dir)
	require.NoError(t, err)
	for _, id := range ids {
		_, err := st.Create(id, "pw")
		require.NoError(t, err)
	}

	sel := selector.New(st, ledger.NewGateway(ld), 10*time.Minute, "comment")
	ctrl := login.NewController(sel, st, drv, identity.NewNoopRotator(), bandetect.New(), login.Options{
		MaxAttemptsPerAccount: 2,
		LoginTimeoutWindow:    5 * time.Millisecond,
		LoginPollInterval:     time.Millisecond,
	})
	return New(ctrl)
}

func TestAcquireSession(t *testing.T) {
	s := newScheduler(t, stubDriver{}, "alice@x.test")

	auth, err := s.AcquireSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice@x.test", auth.ID)
	assert.Equal(t, selector.ReasonNeverActed, auth.SelectionReason)
	assert.WithinDuration(t, time.Now(), auth.LoggedInAt, time.Minute)
}

func TestAcquireSessionExhausted(t *testing.T) {
	// Logins never clear the login surface, so every account burns out and
	// the call terminates instead of hanging.
	s := newScheduler(t, stubDriver{stuck: true}, "alice@x.test", "bob@x.test")

	_, err := s.AcquireSession(context.Background())
	assert.ErrorIs(t, err, selector.ErrNoEligibleAccount)
}

func TestAcquireSessionNoAccounts(t *testing.T) {
	s := newScheduler(t, stubDriver{})

	_, err := s.AcquireSession(context.Background())
	assert.ErrorIs(t, err, selector.ErrNoEligibleAccount)
}
