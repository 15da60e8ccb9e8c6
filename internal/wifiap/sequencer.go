package wifiap

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/vishvananda/netlink"

	"github.com/pixelpi-co-uk/pixelpi/internal/log"
)

// Timing bounds every wait the package performs. All waits are finite so a
// hung control plane cannot wedge boot forever.
type Timing struct {
	// MaxWait caps each readiness poll in the boot sequence.
	MaxWait time.Duration
	// PollInterval is the delay between boot sequence readiness probes.
	PollInterval time.Duration
	// SettleDelay is the pause between readiness and first activation.
	SettleDelay time.Duration
	// ActivationAttempts is how many times activation is tried at boot.
	ActivationAttempts int
	// RetryDelay is the pause between failed activation attempts.
	RetryDelay time.Duration
	// DeviceWait caps the interface readiness poll during enable.
	DeviceWait time.Duration
	// DevicePollInterval is the delay between enable readiness probes.
	DevicePollInterval time.Duration
	// RestartSettle is the pause between deactivate and reactivate.
	RestartSettle time.Duration
}

// DefaultTiming is tuned for slow single-board hardware where the wireless
// chip can take tens of seconds to appear after power-on.
func DefaultTiming() Timing {
	return Timing{
		MaxWait:            60 * time.Second,
		PollInterval:       3 * time.Second,
		SettleDelay:        5 * time.Second,
		ActivationAttempts: 3,
		RetryDelay:         5 * time.Second,
		DeviceWait:         10 * time.Second,
		DevicePollInterval: time.Second,
		RestartSettle:      2 * time.Second,
	}
}

// BootSequencer runs the delayed AP activation at boot. At power-on the
// wireless hardware, its driver and NetworkManager all come up in
// unpredictable order, so each precondition is polled with a bounded budget
// before activation is attempted. The whole sequence is idempotent and safe
// to retry; the unit that runs it restarts on failure.
type BootSequencer struct {
	nm         networkManager
	clock      clock.Clock
	timing     Timing
	iface      string
	connection string

	// linkExists checks kernel visibility of the interface; swapped out
	// by tests.
	linkExists func(iface string) bool
}

func NewBootSequencer(nm networkManager, clk clock.Clock, iface, connection string) *BootSequencer {
	if clk == nil {
		clk = clock.New()
	}
	return &BootSequencer{
		nm:         nm,
		clock:      clk,
		timing:     DefaultTiming(),
		iface:      iface,
		connection: connection,
		linkExists: kernelLinkExists,
	}
}

// WithTiming overrides the poll/retry bounds, used by tests.
func (s *BootSequencer) WithTiming(t Timing) *BootSequencer {
	s.timing = t
	return s
}

// Run executes the boot activation sequence: unblock the radio, wait for the
// kernel to expose the interface, wait for NetworkManager to consider it
// connectable, wait for the control plane itself, settle, then activate with
// bounded retries.
func (s *BootSequencer) Run(ctx context.Context) error {
	log.Info("Starting WiFi AP boot activation", "interface", s.iface, "connection", s.connection)

	if err := s.nm.EnableWifiRadio(ctx); err != nil {
		return err
	}

	if err := s.waitFor(ctx, "interface "+s.iface, func() bool {
		return s.linkExists(s.iface)
	}); err != nil {
		return err
	}

	if err := s.waitFor(ctx, "device state on "+s.iface, func() bool {
		state, err := s.nm.GetDeviceState(ctx, s.iface)
		return err == nil && state.Connectable()
	}); err != nil {
		return err
	}

	if err := s.waitFor(ctx, "NetworkManager", func() bool {
		return s.nm.Ready(ctx)
	}); err != nil {
		return err
	}

	if !s.nm.ConnectionExists(ctx, s.connection) {
		return ErrNotConfigured
	}

	// Everything reports ready, but activating immediately still fails on
	// some chipsets. Give the stack a moment.
	s.clock.Sleep(s.timing.SettleDelay)

	var lastErr error
	for attempt := 1; attempt <= s.timing.ActivationAttempts; attempt++ {
		lastErr = s.nm.ActivateConnection(ctx, s.connection)
		if lastErr == nil {
			log.Info("WiFi AP activated at boot", "connection", s.connection, "attempt", attempt)
			return nil
		}
		log.Warn("Boot activation attempt failed", "attempt", attempt, "error", lastErr)
		if attempt < s.timing.ActivationAttempts {
			s.clock.Sleep(s.timing.RetryDelay)
		}
	}
	return fmt.Errorf("activating %s after %d attempts: %w", s.connection, s.timing.ActivationAttempts, lastErr)
}

// waitFor polls check until it passes or the budget runs out. The first probe
// is immediate so an already-ready precondition costs nothing.
func (s *BootSequencer) waitFor(ctx context.Context, what string, check func() bool) error {
	waited := time.Duration(0)
	for {
		if check() {
			return nil
		}
		if waited >= s.timing.MaxWait {
			return fmt.Errorf("%w: %s after %s", ErrReadinessTimeout, what, s.timing.MaxWait)
		}
		log.Debug("Waiting for readiness", "what", what, "waited", waited.String())
		s.clock.Sleep(s.timing.PollInterval)
		waited += s.timing.PollInterval
	}
}

// kernelLinkExists reports whether the kernel exposes a network interface.
func kernelLinkExists(iface string) bool {
	_, err := netlink.LinkByName(iface)
	return err == nil
}
