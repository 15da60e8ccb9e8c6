package config

import (
	"os"
	"time"

	"github.com/paularlott/cli"
	"gopkg.in/ini.v1"

	"github.com/pixelpi-co-uk/pixelpi/internal/log"
)

// Config holds all daemon settings. Defaults cover a stock Raspberry Pi
// install; an optional INI file overrides them and explicit CLI flags or
// environment variables win over both.
type Config struct {
	// HTTP server
	ListenAddr   string
	APIAuthToken string

	// Shared dnsmasq configuration
	DnsmasqConf    string
	DnsmasqService string

	// Interfaces
	WirelessInterface string
	BuiltinInterface  string

	// WiFi access point
	APConnectionName string
	APBootUnit       string

	// WLED scanning
	ScanTimeout time.Duration

	// Storage
	DataDir string

	// Logging
	LogLevel  string
	LogFormat string
}

var (
	configFile   string
	listenAddr   string
	apiAuthToken string
	dataDir      string
	logLevel     string
	logFormat    string
)

func GetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Usage:    "Path to INI configuration file",
			EnvVars:  []string{"PIXELPI_CONFIG"},
			AssignTo: &configFile,
		},
		&cli.StringFlag{
			Name:     "addr",
			Usage:    "Server listen address",
			EnvVars:  []string{"PIXELPI_LISTEN_ADDR"},
			AssignTo: &listenAddr,
		},
		&cli.StringFlag{
			Name:     "api-token",
			Usage:    "API bearer token",
			EnvVars:  []string{"PIXELPI_API_TOKEN"},
			AssignTo: &apiAuthToken,
		},
		&cli.StringFlag{
			Name:     "data-dir",
			Usage:    "Data directory path",
			EnvVars:  []string{"PIXELPI_DATA_DIR"},
			AssignTo: &dataDir,
		},
		&cli.StringFlag{
			Name:     "log-level",
			Usage:    "Log level (debug, info, warn, error)",
			EnvVars:  []string{"PIXELPI_LOG_LEVEL"},
			AssignTo: &logLevel,
		},
		&cli.StringFlag{
			Name:     "log-format",
			Usage:    "Log format (console, json)",
			EnvVars:  []string{"PIXELPI_LOG_FORMAT"},
			AssignTo: &logFormat,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:        ":8080",
		DnsmasqConf:       "/etc/dnsmasq.conf",
		DnsmasqService:    "dnsmasq",
		WirelessInterface: "wlan0",
		BuiltinInterface:  "eth0",
		APConnectionName:  "pixelpi-ap",
		APBootUnit:        "pixelpi-wifi-ap.service",
		ScanTimeout:       5 * time.Second,
		DataDir:           "/var/lib/pixelpi",
		LogLevel:          "info",
		LogFormat:         "console",
	}
}

// LoadFromFile overlays settings from an INI file onto c. A missing file is
// not an error; the defaults stand.
func (c *Config) LoadFromFile(filename string) error {
	if filename == "" {
		return nil
	}
	if _, err := os.Stat(filename); err != nil {
		log.Warn("Skipping config file", "path", filename, "error", err)
		return nil
	}

	cfg, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, filename)
	if err != nil {
		return err
	}

	section := cfg.Section("")
	c.ListenAddr = section.Key("listen_addr").MustString(c.ListenAddr)
	c.APIAuthToken = section.Key("api_token").MustString(c.APIAuthToken)
	c.DnsmasqConf = section.Key("dnsmasq_conf").MustString(c.DnsmasqConf)
	c.DnsmasqService = section.Key("dnsmasq_service").MustString(c.DnsmasqService)
	c.WirelessInterface = section.Key("wireless_interface").MustString(c.WirelessInterface)
	c.BuiltinInterface = section.Key("builtin_interface").MustString(c.BuiltinInterface)
	c.APConnectionName = section.Key("ap_connection").MustString(c.APConnectionName)
	c.APBootUnit = section.Key("ap_boot_unit").MustString(c.APBootUnit)
	c.DataDir = section.Key("data_dir").MustString(c.DataDir)
	c.LogLevel = section.Key("log_level").MustString(c.LogLevel)
	c.LogFormat = section.Key("log_format").MustString(c.LogFormat)
	if d := section.Key("scan_timeout").MustDuration(0); d > 0 {
		c.ScanTimeout = d
	}

	return nil
}

// Load resolves the effective configuration: defaults, then the INI file,
// then any explicitly set flags or environment variables.
func Load() *Config {
	cfg := Default()

	if err := cfg.LoadFromFile(configFile); err != nil {
		log.Error("Failed to load config file", "path", configFile, "error", err)
	}

	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if apiAuthToken != "" {
		cfg.APIAuthToken = apiAuthToken
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	return cfg
}

// IsAPIAuthEnabled checks if API authentication is configured
func (c *Config) IsAPIAuthEnabled() bool {
	return c.APIAuthToken != ""
}
