// Package identity rotates the outbound network identity presented to the
// target platform.
package identity

import (
	"context"
	"fmt"
	"net"
	"net/textproto"
	"time"

	"github.com/mhalvorsen/sockpool/internal/logging"
)

// Rotator changes the outbound network identity and blocks until the change
// is believed effective. Rotation is a shared, process-wide mutation, so
// only one caller may hold a session while rotating.
type Rotator interface {
	Rotate(ctx context.Context) error
}

// --- Tor Rotator ---

// TorRotator requests a new circuit from a Tor control port.
type TorRotator struct {
	addr     string
	password string
	settle   time.Duration
	logger   logging.Logger

	// dial is injectable for tests.
	dial func(network, addr string) (net.Conn, error)
}

// NewTorRotator creates a rotator speaking the Tor control protocol.
func NewTorRotator(addr, password string, settle time.Duration) *TorRotator {
	return &TorRotator{
		addr:     addr,
		password: password,
		settle:   settle,
		logger:   logging.Get().Named("tor_rotator"),
		dial: func(network, address string) (net.Conn, error) {
			return net.DialTimeout(network, address, 10*time.Second)
		},
	}
}

// Rotate sends SIGNAL NEWNYM to the control port, then waits the settle
// delay so the new circuit is in place before the caller resumes.
func (r *TorRotator) Rotate(ctx context.Context) error {
	r.logger.Info("Renewing network identity...", "control_addr", r.addr)

	conn, err := r.dial("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to control port %s: %w", r.addr, err)
	}
	defer conn.Close()

	tp := textproto.NewConn(conn)
	defer tp.Close()

	if err := r.command(tp, fmt.Sprintf("AUTHENTICATE %q", r.password)); err != nil {
		return fmt.Errorf("control port authentication failed: %w", err)
	}
	if err := r.command(tp, "SIGNAL NEWNYM"); err != nil {
		return fmt.Errorf("NEWNYM signal failed: %w", err)
	}
	// Best effort; the signal already went through.
	_ = tp.PrintfLine("QUIT")

	r.logger.Info("Identity renewal signalled, waiting for circuit to settle", "settle_delay", r.settle)
	timer := time.NewTimer(r.settle)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.logger.Info("Network identity renewed.")
	return nil
}

// command sends one control command and requires a 250 reply.
func (r *TorRotator) command(tp *textproto.Conn, line string) error {
	if err := tp.PrintfLine("%s", line); err != nil {
		return err
	}
	if _, _, err := tp.ReadResponse(250); err != nil {
		return err
	}
	return nil
}

// --- Noop Rotator ---

// NoopRotator performs no rotation. Used in dry runs and tests.
type NoopRotator struct {
	logger logging.Logger
}

// NewNoopRotator creates a rotator that does nothing.
func NewNoopRotator() *NoopRotator {
	return &NoopRotator{logger: logging.Get().Named("noop_rotator")}
}

// Rotate logs and returns immediately.
func (r *NoopRotator) Rotate(ctx context.Context) error {
	r.logger.Info("Identity rotation disabled.")
	return nil
}
