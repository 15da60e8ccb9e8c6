package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "/etc/dnsmasq.conf", cfg.DnsmasqConf)
	assert.Equal(t, "wlan0", cfg.WirelessInterface)
	assert.Equal(t, "pixelpi-ap", cfg.APConnectionName)
	assert.Equal(t, "pixelpi-wifi-ap.service", cfg.APBootUnit)
	assert.False(t, cfg.IsAPIAuthEnabled())
}

func TestLoadFromFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pixelpi.ini")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr = :9000
api_token = sekret
wireless_interface = wlan1
scan_timeout = 10s
`), 0o644))

	cfg := Default()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "sekret", cfg.APIAuthToken)
	assert.Equal(t, "wlan1", cfg.WirelessInterface)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	// Untouched keys keep their defaults.
	assert.Equal(t, "/etc/dnsmasq.conf", cfg.DnsmasqConf)
	assert.True(t, cfg.IsAPIAuthEnabled())
}

func TestLoadFromMissingFileKeepsDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.LoadFromFile("/nonexistent/pixelpi.ini"))
	assert.Equal(t, ":8080", cfg.ListenAddr)
}

func TestFlagOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pixelpi.ini")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr = :9000\n"), 0o644))

	configFile = path
	listenAddr = ":7777"
	t.Cleanup(func() {
		configFile = ""
		listenAddr = ""
	})

	cfg := Load()
	assert.Equal(t, ":7777", cfg.ListenAddr)
}
