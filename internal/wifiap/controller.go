// Package wifiap manages the WiFi access point: a NetworkManager wireless
// connection in shared mode, the dnsmasq directives that keep the system
// service off the wireless interface, and the delayed boot activation that
// works around hardware readiness races.
package wifiap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pixelpi-co-uk/pixelpi/internal/dnsmasq"
	"github.com/pixelpi-co-uk/pixelpi/internal/log"
	"github.com/pixelpi-co-uk/pixelpi/internal/netman"
	"github.com/pixelpi-co-uk/pixelpi/internal/statuscache"
)

// Defaults reported when the AP resource exposes no usable values.
const (
	DefaultSSID    = "WLED-Manager-AP"
	DefaultChannel = 6
	DefaultGateway = "10.0.2.1"
)

// legacyBootUnit is the delayed-start service name used by old installs.
const legacyBootUnit = "wifi-ap-delayed-start.service"

var (
	// ErrNotConfigured means the AP connection profile does not exist;
	// the operator must run configure first.
	ErrNotConfigured = errors.New("wifi AP is not configured")

	// ErrReadinessTimeout means a bounded readiness poll exhausted its
	// budget. The whole operation is safe to retry.
	ErrReadinessTimeout = errors.New("readiness wait timed out")
)

// networkManager is the slice of the nmcli control plane the controller
// needs.
type networkManager interface {
	ConnectionExists(ctx context.Context, name string) bool
	DeleteConnection(ctx context.Context, name string)
	AddAPConnection(ctx context.Context, p netman.APProfile) error
	SetAutoconnect(ctx context.Context, name string, on bool) error
	ActivateConnection(ctx context.Context, name string) error
	DeactivateConnection(ctx context.Context, name string) error
	ConnectionActive(ctx context.Context, name string) (bool, error)
	ConnectionField(ctx context.Context, name, field string) (string, error)
	GetDeviceState(ctx context.Context, device string) (netman.DeviceState, error)
	Ready(ctx context.Context) bool
	EnableWifiRadio(ctx context.Context) error
}

// serviceManager is the slice of systemd the controller needs.
type serviceManager interface {
	Enable(ctx context.Context, unit string) error
	IsEnabled(ctx context.Context, unit string) bool
	InstallUnit(ctx context.Context, unit, content string) error
	RemoveUnit(ctx context.Context, unit string)
}

// configStore batches edits on the shared dnsmasq config.
type configStore interface {
	Edit(ctx context.Context, fn func(d *dnsmasq.Document) bool) (dnsmasq.ApplyResult, error)
}

// Status holds the three independent facts about the AP. All eight
// combinations are legal; installed+active without enabled is a manually
// started AP that will not survive a reboot.
type Status struct {
	Installed bool `json:"installed"`
	Enabled   bool `json:"enabled"`
	Active    bool `json:"active"`
}

// APConfig is the effective AP configuration, defaults overlaid with
// whatever the connection profile reports.
type APConfig struct {
	SSID      string `json:"ssid"`
	Channel   int    `json:"channel"`
	Interface string `json:"interface"`
	Gateway   string `json:"ip_address"`
}

// Client is a station seen in the wireless interface's neighbour table.
type Client struct {
	IP    string `json:"ip"`
	MAC   string `json:"mac"`
	State string `json:"state"`
}

// Controller reconciles the AP toward a caller-supplied desired state.
type Controller struct {
	nm       networkManager
	services serviceManager
	store    configStore
	cache    *statuscache.Cache
	clock    clock.Clock
	timing   Timing

	iface      string
	connection string
	bootUnit   string

	// neighbors lists the wireless interface's neighbour table; swapped
	// out by tests.
	neighbors func(iface string) ([]Client, error)
}

// NewController wires a controller for the given wireless interface,
// connection name and boot unit.
func NewController(nm networkManager, services serviceManager, store configStore, clk clock.Clock, iface, connection, bootUnit string) *Controller {
	if clk == nil {
		clk = clock.New()
	}
	return &Controller{
		nm:         nm,
		services:   services,
		store:      store,
		cache:      statuscache.New(clk, statuscache.DefaultTTL),
		clock:      clk,
		timing:     DefaultTiming(),
		iface:      iface,
		connection: connection,
		bootUnit:   bootUnit,
		neighbors:  netlinkNeighbors,
	}
}

// WithTiming overrides the poll/retry bounds, used by tests.
func (c *Controller) WithTiming(t Timing) *Controller {
	c.timing = t
	return c
}

// InvalidateStatus drops cached status reads. Exposed so out-of-band config
// file edits observed by the watcher flush stale state.
func (c *Controller) InvalidateStatus() {
	c.cache.InvalidateAll()
}

// IsInstalled reports whether the AP connection profile exists.
func (c *Controller) IsInstalled(ctx context.Context) bool {
	installed, _ := statuscache.Get(c.cache, "installed", func() (bool, error) {
		return c.nm.ConnectionExists(ctx, c.connection), nil
	})
	return installed
}

// IsEnabled reports whether the boot activation unit will run at boot.
func (c *Controller) IsEnabled(ctx context.Context) bool {
	enabled, _ := statuscache.Get(c.cache, "enabled", func() (bool, error) {
		return c.services.IsEnabled(ctx, c.bootUnit), nil
	})
	return enabled
}

// IsActive reports whether the AP connection is currently up.
func (c *Controller) IsActive(ctx context.Context) bool {
	active, _ := statuscache.Get(c.cache, "active", func() (bool, error) {
		active, err := c.nm.ConnectionActive(ctx, c.connection)
		if err != nil {
			return false, err
		}
		return active, nil
	})
	return active
}

// Status returns the three independent state facts.
func (c *Controller) Status(ctx context.Context) Status {
	return Status{
		Installed: c.IsInstalled(ctx),
		Enabled:   c.IsEnabled(ctx),
		Active:    c.IsActive(ctx),
	}
}

// validate rejects malformed AP parameters before any external call.
func validate(ssid, psk string, channel int, gateway string) error {
	if strings.TrimSpace(ssid) == "" {
		return errors.New("SSID must not be empty")
	}
	if len(psk) < 8 {
		return errors.New("pre-shared key must be at least 8 characters")
	}
	if channel < 1 || channel > 11 {
		return fmt.Errorf("channel %d out of range 1-11", channel)
	}
	ip := net.ParseIP(gateway)
	if ip == nil || ip.To4() == nil {
		return fmt.Errorf("invalid gateway address %q", gateway)
	}
	return nil
}

// Configure replaces the AP connection profile with a fresh one. The old
// profile is deleted first so no stale fields carry over. The profile is
// created with autoconnect off: boot activation is handled by the sequenced
// unit, not by NetworkManager, to avoid the boot race.
func (c *Controller) Configure(ctx context.Context, ssid, psk string, channel int, gateway string) error {
	if err := validate(ssid, psk, channel, gateway); err != nil {
		return err
	}

	c.nm.DeleteConnection(ctx, c.connection)

	err := c.nm.AddAPConnection(ctx, netman.APProfile{
		Name:      c.connection,
		Interface: c.iface,
		SSID:      ssid,
		PSK:       psk,
		Channel:   channel,
		Gateway:   gateway,
	})
	if err != nil {
		return err
	}

	c.cache.InvalidateAll()
	log.Info("WiFi AP configured", "ssid", ssid, "channel", channel, "gateway", gateway)
	return nil
}

// Enable activates the AP for the current session and registers the delayed
// boot activation. It fails closed: radio or interface readiness failures
// abort before the boot unit is touched.
func (c *Controller) Enable(ctx context.Context) error {
	if !c.nm.ConnectionExists(ctx, c.connection) {
		return ErrNotConfigured
	}

	if err := c.nm.EnableWifiRadio(ctx); err != nil {
		return err
	}

	if err := c.waitForDevice(ctx); err != nil {
		return err
	}

	// Boot activation belongs to the sequenced unit, never to
	// NetworkManager's own autoconnect.
	if err := c.nm.SetAutoconnect(ctx, c.connection, false); err != nil {
		log.Warn("Could not force autoconnect off", "connection", c.connection, "error", err)
	}

	if err := c.reconcileSharedDNSMasq(ctx); err != nil {
		return err
	}

	c.services.RemoveUnit(ctx, legacyBootUnit)

	if err := c.services.InstallUnit(ctx, c.bootUnit, bootUnitContent()); err != nil {
		return err
	}
	if err := c.services.Enable(ctx, c.bootUnit); err != nil {
		return err
	}
	// Without wait-online, systemd never reaches network-online.target and
	// the boot unit is never started.
	if err := c.services.Enable(ctx, "NetworkManager-wait-online.service"); err != nil {
		log.Warn("Could not enable NetworkManager-wait-online", "error", err)
	}

	if err := c.nm.ActivateConnection(ctx, c.connection); err != nil {
		return err
	}

	c.cache.InvalidateAll()
	log.Info("WiFi AP enabled and active", "connection", c.connection)
	return nil
}

// waitForDevice polls NetworkManager until the wireless interface reports a
// connectable state, within the configured budget.
func (c *Controller) waitForDevice(ctx context.Context) error {
	waited := time.Duration(0)
	for {
		state, err := c.nm.GetDeviceState(ctx, c.iface)
		if err == nil && state.Connectable() {
			return nil
		}
		if waited >= c.timing.DeviceWait {
			return fmt.Errorf("%w: %s not connectable after %s", ErrReadinessTimeout, c.iface, c.timing.DeviceWait)
		}
		c.clock.Sleep(c.timing.DevicePollInterval)
		waited += c.timing.DevicePollInterval
	}
}

// reconcileSharedDNSMasq keeps the system dnsmasq off the wireless
// interface. NetworkManager's shared mode runs its own dnsmasq on that
// interface; without these directives the system service grabs ports 53 and
// 67 there first and the embedded one fails with "address already in use".
// All edits land in one write and at most one service reload.
func (c *Controller) reconcileSharedDNSMasq(ctx context.Context) error {
	result, err := c.store.Edit(ctx, func(d *dnsmasq.Document) bool {
		changed := d.EnsureSingletonLine("bind-dynamic")
		changed = d.EnsureSingletonLine("except-interface="+c.iface) || changed
		// Old installs bound the wireless interface explicitly.
		changed = d.RemoveLine("interface="+c.iface) || changed
		return changed
	})
	if err != nil {
		return fmt.Errorf("updating shared dnsmasq config: %w", err)
	}
	if result.ReloadFailed {
		log.Warn("dnsmasq directives saved but reload failed", "error", result.ReloadErr)
	}
	return nil
}

// Disable deactivates the AP and removes the boot activation. Deactivation
// failure is not fatal; the connection may already be down.
func (c *Controller) Disable(ctx context.Context) error {
	if err := c.nm.DeactivateConnection(ctx, c.connection); err != nil {
		log.Warn("Could not deactivate WiFi AP", "connection", c.connection, "error", err)
	}

	if err := c.nm.SetAutoconnect(ctx, c.connection, false); err != nil {
		log.Debug("Autoconnect modify skipped", "connection", c.connection, "error", err)
	}

	c.services.RemoveUnit(ctx, c.bootUnit)
	c.services.RemoveUnit(ctx, legacyBootUnit)

	c.cache.InvalidateAll()
	log.Info("WiFi AP disabled", "connection", c.connection)
	return nil
}

// Restart cycles the AP connection. Only a failed reactivation is an error.
func (c *Controller) Restart(ctx context.Context) error {
	if err := c.nm.DeactivateConnection(ctx, c.connection); err != nil {
		log.Debug("Deactivate before restart skipped", "connection", c.connection, "error", err)
	}

	// Let the interface settle before bringing the AP back.
	c.clock.Sleep(c.timing.RestartSettle)

	err := c.nm.ActivateConnection(ctx, c.connection)
	c.cache.InvalidateAll()
	if err != nil {
		return err
	}
	log.Info("WiFi AP restarted", "connection", c.connection)
	return nil
}

// Config returns the last-known-good defaults overlaid with whatever the
// connection profile reports. Missing or unparseable fields keep their
// defaults. Returns nil when the AP is not configured.
func (c *Controller) Config(ctx context.Context) *APConfig {
	if !c.IsInstalled(ctx) {
		return nil
	}

	cfg := &APConfig{
		SSID:      DefaultSSID,
		Channel:   DefaultChannel,
		Interface: c.iface,
		Gateway:   DefaultGateway,
	}

	if ssid, err := c.nm.ConnectionField(ctx, c.connection, "802-11-wireless.ssid"); err == nil && ssid != "" {
		cfg.SSID = ssid
	}
	if raw, err := c.nm.ConnectionField(ctx, c.connection, "802-11-wireless.channel"); err == nil {
		if channel, convErr := strconv.Atoi(raw); convErr == nil {
			cfg.Channel = channel
		}
	}
	if raw, err := c.nm.ConnectionField(ctx, c.connection, "ipv4.addresses"); err == nil && raw != "" {
		if addr, _, found := strings.Cut(raw, "/"); found {
			cfg.Gateway = addr
		}
	}

	return cfg
}

// ConnectedClients lists stations on the wireless interface. Returns empty
// immediately when the AP is not active: there is nothing to probe.
func (c *Controller) ConnectedClients(ctx context.Context) ([]Client, error) {
	if !c.IsActive(ctx) {
		return []Client{}, nil
	}

	clients, err := c.neighbors(c.iface)
	if err != nil {
		return nil, fmt.Errorf("listing neighbours on %s: %w", c.iface, err)
	}
	return clients, nil
}
