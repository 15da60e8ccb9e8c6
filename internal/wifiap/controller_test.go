package wifiap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelpi-co-uk/pixelpi/internal/dnsmasq"
	"github.com/pixelpi-co-uk/pixelpi/internal/netman"
)

// fakeNM records nmcli-level calls and answers from overridable probes.
type fakeNM struct {
	mu    sync.Mutex
	calls []string

	exists       func() bool
	deviceState  func() (netman.DeviceState, error)
	ready        func() bool
	active       func() (bool, error)
	fields       map[string]string
	fieldErr     error
	activateErr  func() error
	radioErr     error
	addErr       error
	autoconnErr  error
	deactivateErr error
}

func newFakeNM() *fakeNM {
	return &fakeNM{
		exists:      func() bool { return true },
		deviceState: func() (netman.DeviceState, error) { return netman.DeviceDisconnected, nil },
		ready:       func() bool { return true },
		active:      func() (bool, error) { return false, nil },
		fields:      map[string]string{},
		activateErr: func() error { return nil },
	}
}

func (f *fakeNM) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeNM) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeNM) ConnectionExists(ctx context.Context, name string) bool {
	f.record("exists")
	return f.exists()
}

func (f *fakeNM) DeleteConnection(ctx context.Context, name string) {
	f.record("delete")
}

func (f *fakeNM) AddAPConnection(ctx context.Context, p netman.APProfile) error {
	f.record("add:" + p.SSID)
	if f.addErr != nil {
		return f.addErr
	}
	// Serve the stored profile back like nmcli would.
	f.mu.Lock()
	f.fields["802-11-wireless.ssid"] = p.SSID
	f.fields["802-11-wireless.channel"] = strconv.Itoa(p.Channel)
	f.fields["ipv4.addresses"] = p.Gateway + "/24"
	f.mu.Unlock()
	return nil
}

func (f *fakeNM) SetAutoconnect(ctx context.Context, name string, on bool) error {
	f.record("autoconnect")
	return f.autoconnErr
}

func (f *fakeNM) ActivateConnection(ctx context.Context, name string) error {
	f.record("activate")
	return f.activateErr()
}

func (f *fakeNM) DeactivateConnection(ctx context.Context, name string) error {
	f.record("deactivate")
	return f.deactivateErr
}

func (f *fakeNM) ConnectionActive(ctx context.Context, name string) (bool, error) {
	f.record("active")
	return f.active()
}

func (f *fakeNM) ConnectionField(ctx context.Context, name, field string) (string, error) {
	f.record("field:" + field)
	if f.fieldErr != nil {
		return "", f.fieldErr
	}
	return f.fields[field], nil
}

func (f *fakeNM) GetDeviceState(ctx context.Context, device string) (netman.DeviceState, error) {
	f.record("devstate")
	return f.deviceState()
}

func (f *fakeNM) Ready(ctx context.Context) bool {
	f.record("ready")
	return f.ready()
}

func (f *fakeNM) EnableWifiRadio(ctx context.Context) error {
	f.record("radio")
	return f.radioErr
}

// fakeServices records systemd-level calls.
type fakeServices struct {
	mu        sync.Mutex
	installed map[string]string
	enabled   map[string]bool
	enableErr error
}

func newFakeServices() *fakeServices {
	return &fakeServices{installed: map[string]string{}, enabled: map[string]bool{}}
}

func (f *fakeServices) Enable(ctx context.Context, unit string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enableErr != nil {
		return f.enableErr
	}
	f.enabled[unit] = true
	return nil
}

func (f *fakeServices) IsEnabled(ctx context.Context, unit string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled[unit]
}

func (f *fakeServices) InstallUnit(ctx context.Context, unit, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installed[unit] = content
	return nil
}

func (f *fakeServices) RemoveUnit(ctx context.Context, unit string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.installed, unit)
	delete(f.enabled, unit)
}

type fakeReloader struct {
	calls int
	err   error
}

func (f *fakeReloader) Restart(ctx context.Context, unit string) error {
	f.calls++
	return f.err
}

// fastTiming keeps real-clock waits in the microsecond range.
func fastTiming() Timing {
	return Timing{
		MaxWait:            500 * time.Microsecond,
		PollInterval:       100 * time.Microsecond,
		SettleDelay:        time.Microsecond,
		ActivationAttempts: 3,
		RetryDelay:         time.Microsecond,
		DeviceWait:         500 * time.Microsecond,
		DevicePollInterval: 100 * time.Microsecond,
		RestartSettle:      time.Microsecond,
	}
}

func newTestController(t *testing.T, nm *fakeNM) (*Controller, *fakeServices, string, *fakeReloader) {
	t.Helper()
	services := newFakeServices()
	reloader := &fakeReloader{}
	path := filepath.Join(t.TempDir(), "dnsmasq.conf")
	require.NoError(t, os.WriteFile(path, []byte("interface=wlan0\ndomain-needed\n"), 0o644))
	store := dnsmasq.NewStore(path, "dnsmasq", reloader)

	ctrl := NewController(nm, services, store, clock.New(), "wlan0", "pixelpi-ap", "pixelpi-wifi-ap.service").
		WithTiming(fastTiming())
	return ctrl, services, path, reloader
}

func TestConfigureRejectsBadParameters(t *testing.T) {
	nm := newFakeNM()
	ctrl, _, _, _ := newTestController(t, nm)
	ctx := context.Background()

	assert.Error(t, ctrl.Configure(ctx, "net", "short", 6, "10.0.2.1"))
	assert.Error(t, ctrl.Configure(ctx, "net", "longenough", 0, "10.0.2.1"))
	assert.Error(t, ctrl.Configure(ctx, "net", "longenough", 12, "10.0.2.1"))
	assert.Error(t, ctrl.Configure(ctx, "net", "longenough", 6, "not-an-ip"))
	assert.Error(t, ctrl.Configure(ctx, "", "longenough", 6, "10.0.2.1"))

	// Rejected input never reaches the control plane.
	assert.Empty(t, nm.calls)
}

func TestConfigureReplacesProfile(t *testing.T) {
	nm := newFakeNM()
	ctrl, _, _, _ := newTestController(t, nm)

	require.NoError(t, ctrl.Configure(context.Background(), "MyAP", "supersecret", 6, "10.0.2.1"))

	assert.Equal(t, 1, nm.count("delete"))
	assert.Equal(t, 1, nm.count("add:MyAP"))
}

func TestEnableRequiresConfiguredProfile(t *testing.T) {
	nm := newFakeNM()
	nm.exists = func() bool { return false }
	ctrl, services, _, _ := newTestController(t, nm)

	err := ctrl.Enable(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, 0, nm.count("radio"))
	assert.Empty(t, services.installed)
}

func TestEnableReconcilesSharedConfig(t *testing.T) {
	nm := newFakeNM()
	ctrl, services, path, reloader := newTestController(t, nm)
	ctx := context.Background()

	require.NoError(t, ctrl.Enable(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Equal(t, 1, strings.Count(content, "bind-dynamic"))
	assert.Equal(t, 1, strings.Count(content, "except-interface=wlan0"))
	// Line-anchored: except-interface=wlan0 must survive the removal of
	// the legacy binding line.
	assert.NotContains(t, "\n"+content, "\ninterface=wlan0\n")
	assert.Contains(t, content, "domain-needed")

	// A second enable changes nothing and triggers no second reload.
	require.NoError(t, ctrl.Enable(ctx))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "bind-dynamic"))
	assert.Equal(t, 1, reloader.calls)

	assert.Contains(t, services.installed, "pixelpi-wifi-ap.service")
	assert.True(t, services.enabled["pixelpi-wifi-ap.service"])
	assert.True(t, services.enabled["NetworkManager-wait-online.service"])
	assert.Equal(t, 2, nm.count("activate"))
}

func TestEnableFailsClosedWhenDeviceNeverReady(t *testing.T) {
	nm := newFakeNM()
	nm.deviceState = func() (netman.DeviceState, error) { return netman.DeviceUnavailable, nil }
	ctrl, services, _, _ := newTestController(t, nm)

	err := ctrl.Enable(context.Background())
	assert.ErrorIs(t, err, ErrReadinessTimeout)

	// Nothing downstream of readiness may have happened.
	assert.Empty(t, services.installed)
	assert.Equal(t, 0, nm.count("activate"))
}

func TestEnableWritesBootUnit(t *testing.T) {
	nm := newFakeNM()
	ctrl, services, _, _ := newTestController(t, nm)

	require.NoError(t, ctrl.Enable(context.Background()))

	content := services.installed["pixelpi-wifi-ap.service"]
	assert.Contains(t, content, "Type=oneshot")
	assert.Contains(t, content, "After=NetworkManager.service network-online.target")
	assert.Contains(t, content, "TimeoutStartSec=120")
	assert.Contains(t, content, "wifi boot")
}

func TestDisableIsBestEffort(t *testing.T) {
	nm := newFakeNM()
	nm.deactivateErr = errors.New("connection not active")
	ctrl, services, _, _ := newTestController(t, nm)
	services.installed["pixelpi-wifi-ap.service"] = "unit"
	services.enabled["pixelpi-wifi-ap.service"] = true

	require.NoError(t, ctrl.Disable(context.Background()))
	assert.NotContains(t, services.installed, "pixelpi-wifi-ap.service")
	assert.False(t, services.enabled["pixelpi-wifi-ap.service"])
}

func TestRestartReportsOnlyActivationFailure(t *testing.T) {
	nm := newFakeNM()
	nm.deactivateErr = errors.New("already down")
	ctrl, _, _, _ := newTestController(t, nm)

	require.NoError(t, ctrl.Restart(context.Background()))

	nm.activateErr = func() error { return errors.New("device busy") }
	assert.Error(t, ctrl.Restart(context.Background()))
}

func TestStatusProbesAreCachedPerTTL(t *testing.T) {
	nm := newFakeNM()
	services := newFakeServices()
	reloader := &fakeReloader{}
	path := filepath.Join(t.TempDir(), "dnsmasq.conf")
	store := dnsmasq.NewStore(path, "dnsmasq", reloader)
	mock := clock.NewMock()

	ctrl := NewController(nm, services, store, mock, "wlan0", "pixelpi-ap", "pixelpi-wifi-ap.service")
	ctx := context.Background()

	ctrl.Status(ctx)
	ctrl.Status(ctx)
	assert.Equal(t, 1, nm.count("exists"))
	assert.Equal(t, 1, nm.count("active"))

	mock.Add(6 * time.Second)
	ctrl.Status(ctx)
	assert.Equal(t, 2, nm.count("exists"))

	// Explicit invalidation flushes without waiting out the TTL.
	ctrl.InvalidateStatus()
	ctrl.Status(ctx)
	assert.Equal(t, 3, nm.count("exists"))
}

func TestConfigOverlaysProfileOnDefaults(t *testing.T) {
	nm := newFakeNM()
	nm.fields = map[string]string{
		"802-11-wireless.ssid":    "CustomNet",
		"802-11-wireless.channel": "not-a-number",
		"ipv4.addresses":          "192.168.50.1/24",
	}
	ctrl, _, _, _ := newTestController(t, nm)

	cfg := ctrl.Config(context.Background())
	require.NotNil(t, cfg)
	assert.Equal(t, "CustomNet", cfg.SSID)
	// Unparseable channel keeps the default.
	assert.Equal(t, DefaultChannel, cfg.Channel)
	assert.Equal(t, "192.168.50.1", cfg.Gateway)
	assert.Equal(t, "wlan0", cfg.Interface)
}

func TestConfigNilWhenNotInstalled(t *testing.T) {
	nm := newFakeNM()
	nm.exists = func() bool { return false }
	ctrl, _, _, _ := newTestController(t, nm)

	assert.Nil(t, ctrl.Config(context.Background()))
}

func TestConnectedClientsEmptyWhenInactive(t *testing.T) {
	nm := newFakeNM()
	ctrl, _, _, _ := newTestController(t, nm)
	probed := false
	ctrl.neighbors = func(iface string) ([]Client, error) {
		probed = true
		return nil, errors.New("should not be called")
	}

	clients, err := ctrl.ConnectedClients(context.Background())
	require.NoError(t, err)
	assert.Empty(t, clients)
	assert.False(t, probed)
}

func TestConfigureEnableRoundTrip(t *testing.T) {
	nm := newFakeNM()
	active := false
	nm.active = func() (bool, error) { return active, nil }
	nm.activateErr = func() error { active = true; return nil }
	ctrl, _, _, _ := newTestController(t, nm)
	ctx := context.Background()

	require.NoError(t, ctrl.Configure(ctx, "HomeAP", "password1", 6, "10.0.2.1"))
	require.NoError(t, ctrl.Enable(ctx))

	cfg := ctrl.Config(ctx)
	require.NotNil(t, cfg)
	assert.Equal(t, "HomeAP", cfg.SSID)
	assert.Equal(t, 6, cfg.Channel)
	assert.Equal(t, "10.0.2.1", cfg.Gateway)
	assert.True(t, ctrl.IsActive(ctx))
}

func TestConnectedClientsWhenActive(t *testing.T) {
	nm := newFakeNM()
	nm.active = func() (bool, error) { return true, nil }
	ctrl, _, _, _ := newTestController(t, nm)
	ctrl.neighbors = func(iface string) ([]Client, error) {
		return []Client{{IP: "10.0.2.15", MAC: "aa:bb:cc:dd:ee:ff", State: "reachable"}}, nil
	}

	clients, err := ctrl.ConnectedClients(context.Background())
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "10.0.2.15", clients[0].IP)
}
