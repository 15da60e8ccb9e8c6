package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelpi-co-uk/pixelpi/internal/adapter"
	"github.com/pixelpi-co-uk/pixelpi/internal/dnsmasq"
	"github.com/pixelpi-co-uk/pixelpi/internal/wifiap"
	"github.com/pixelpi-co-uk/pixelpi/internal/wled"
)

type stubWifi struct {
	status       wifiap.Status
	cfg          *wifiap.APConfig
	clients      []wifiap.Client
	configureErr error
	enableErr    error
	lastSSID     string
}

func (s *stubWifi) Configure(ctx context.Context, ssid, psk string, channel int, gateway string) error {
	s.lastSSID = ssid
	return s.configureErr
}
func (s *stubWifi) Enable(ctx context.Context) error  { return s.enableErr }
func (s *stubWifi) Disable(ctx context.Context) error { return nil }
func (s *stubWifi) Restart(ctx context.Context) error { return nil }
func (s *stubWifi) Status(ctx context.Context) wifiap.Status {
	return s.status
}
func (s *stubWifi) Config(ctx context.Context) *wifiap.APConfig { return s.cfg }
func (s *stubWifi) ConnectedClients(ctx context.Context) ([]wifiap.Client, error) {
	return s.clients, nil
}

type stubAdapters struct {
	all []adapter.Adapter
	usb []adapter.Adapter
}

func (s *stubAdapters) List() ([]adapter.Adapter, error)        { return s.all, nil }
func (s *stubAdapters) USBEthernet() ([]adapter.Adapter, error) { return s.usb, nil }

type stubProvisioner struct {
	lastIface string
	result    adapter.AssignResult
	err       error
}

func (s *stubProvisioner) Assign(ctx context.Context, iface, address string, prefix int) (adapter.AssignResult, error) {
	s.lastIface = iface
	return s.result, s.err
}

type stubScanner struct {
	scan    *wled.Scan
	devices []wled.Device
	err     error
}

func (s *stubScanner) Sweep(ctx context.Context, subnet string) (*wled.Scan, []wled.Device, error) {
	return s.scan, s.devices, s.err
}

type stubReservations struct {
	list      []dnsmasq.Reservation
	upsertErr error
	removed   bool
}

func (s *stubReservations) UpsertReservation(ctx context.Context, mac, ip, hostname string) (dnsmasq.ApplyResult, error) {
	if s.upsertErr != nil {
		return dnsmasq.ApplyResult{}, s.upsertErr
	}
	return dnsmasq.ApplyResult{Changed: true}, nil
}

func (s *stubReservations) RemoveReservation(ctx context.Context, mac string) (dnsmasq.ApplyResult, error) {
	return dnsmasq.ApplyResult{Changed: s.removed}, nil
}

func (s *stubReservations) ListReservations() ([]dnsmasq.Reservation, error) {
	return s.list, nil
}

type stubInventory struct {
	devices []wled.Device
	scans   []wled.Scan
}

func (s *stubInventory) ListDevices() ([]wled.Device, error)     { return s.devices, nil }
func (s *stubInventory) ListScans(limit int) ([]wled.Scan, error) { return s.scans, nil }

type testEnv struct {
	wifi         *stubWifi
	adapters     *stubAdapters
	provisioner  *stubProvisioner
	scanner      *stubScanner
	reservations *stubReservations
	inventory    *stubInventory
	mux          *http.ServeMux
}

func newTestEnv() *testEnv {
	env := &testEnv{
		wifi:         &stubWifi{},
		adapters:     &stubAdapters{},
		provisioner:  &stubProvisioner{},
		scanner:      &stubScanner{scan: &wled.Scan{ID: "scan-1"}},
		reservations: &stubReservations{},
		inventory:    &stubInventory{},
	}
	env.mux = http.NewServeMux()
	NewHandler(env.wifi, env.adapters, env.provisioner, env.scanner,
		env.reservations, env.inventory).RegisterRoutes(env.mux)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestListAdapters(t *testing.T) {
	env := newTestEnv()
	env.adapters.all = []adapter.Adapter{{Name: "eth1", USB: true}}

	rec, body := env.do(t, http.MethodGet, "/api/adapters", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Len(t, body["adapters"], 1)
}

func TestConfigureAdapter(t *testing.T) {
	env := newTestEnv()
	env.provisioner.result = adapter.AssignResult{Connection: "eth1-static", DHCPApplied: true}

	rec, body := env.do(t, http.MethodPost, "/api/adapters/eth1/configure", `{"ip":"10.0.0.1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "eth1", env.provisioner.lastIface)

	rec, body = env.do(t, http.MethodPost, "/api/adapters/eth1/configure", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestScanWLED(t *testing.T) {
	env := newTestEnv()
	env.scanner.devices = []wled.Device{{IP: "10.0.0.3", Name: "strip"}}

	rec, body := env.do(t, http.MethodPost, "/api/wled/scan", `{"subnet":"10.0.0.0/24"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Len(t, body["devices"], 1)

	rec, _ = env.do(t, http.MethodPost, "/api/wled/scan", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReservationLifecycle(t *testing.T) {
	env := newTestEnv()
	env.reservations.list = []dnsmasq.Reservation{{MAC: "aa:bb:cc:dd:ee:ff", IP: "10.0.0.10"}}
	env.reservations.removed = true

	rec, body := env.do(t, http.MethodPost, "/api/wled/reserve",
		`{"mac":"aa:bb:cc:dd:ee:ff","ip":"10.0.0.10","hostname":"strip"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["dhcp_applied"])

	rec, body = env.do(t, http.MethodGet, "/api/wled/reservations", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["reservations"], 1)

	rec, _ = env.do(t, http.MethodDelete, "/api/wled/reservations/aa:bb:cc:dd:ee:ff", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	env.reservations.removed = false
	rec, _ = env.do(t, http.MethodDelete, "/api/wled/reservations/aa:bb:cc:dd:ee:ff", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReserveRequiresMACAndIP(t *testing.T) {
	env := newTestEnv()

	rec, _ := env.do(t, http.MethodPost, "/api/wled/reserve", `{"mac":"aa:bb:cc:dd:ee:ff"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWifiStatusIncludesConfigWhenInstalled(t *testing.T) {
	env := newTestEnv()
	env.wifi.status = wifiap.Status{Installed: true, Enabled: true, Active: false}
	env.wifi.cfg = &wifiap.APConfig{SSID: "MyAP", Channel: 6}

	rec, body := env.do(t, http.MethodGet, "/api/wifi/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	status := body["status"].(map[string]any)
	assert.Equal(t, true, status["installed"])
	assert.Equal(t, false, status["active"])
	cfg := body["config"].(map[string]any)
	assert.Equal(t, "MyAP", cfg["ssid"])
}

func TestWifiStatusOmitsConfigWhenNotInstalled(t *testing.T) {
	env := newTestEnv()

	rec, body := env.do(t, http.MethodGet, "/api/wifi/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, body, "config")
}

func TestWifiConfigureAppliesDefaults(t *testing.T) {
	env := newTestEnv()

	rec, _ := env.do(t, http.MethodPost, "/api/wifi/configure",
		`{"ssid":"MyAP","psk":"supersecret"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MyAP", env.wifi.lastSSID)
}

func TestWifiEnableNotConfiguredIsConflict(t *testing.T) {
	env := newTestEnv()
	env.wifi.enableErr = wifiap.ErrNotConfigured

	rec, body := env.do(t, http.MethodPost, "/api/wifi/enable", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestSystemStatus(t *testing.T) {
	env := newTestEnv()
	env.adapters.usb = []adapter.Adapter{{Name: "eth1"}}
	env.inventory.devices = []wled.Device{{IP: "10.0.0.3"}, {IP: "10.0.0.4"}}

	rec, body := env.do(t, http.MethodGet, "/api/system/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["usb_adapters"])
	assert.Equal(t, float64(2), body["known_devices"])
}

func TestAuthMiddleware(t *testing.T) {
	protected := AuthMiddleware("sekret", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/adapters", nil)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set("Authorization", "Bearer sekret")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Non-API paths pass through unauthenticated.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/adapters", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}
