// Package wifi holds the CLI commands that drive the access point directly
// on the host. They talk to NetworkManager and systemd themselves rather
// than going through the API: the boot path must work before the daemon is
// up, and all of them need root anyway.
package wifi

import (
	"github.com/paularlott/cli"

	"github.com/pixelpi-co-uk/pixelpi/internal/config"
	"github.com/pixelpi-co-uk/pixelpi/internal/dnsmasq"
	"github.com/pixelpi-co-uk/pixelpi/internal/log"
	"github.com/pixelpi-co-uk/pixelpi/internal/netman"
	"github.com/pixelpi-co-uk/pixelpi/internal/sysd"
	"github.com/pixelpi-co-uk/pixelpi/internal/system"
	"github.com/pixelpi-co-uk/pixelpi/internal/wifiap"
)

func Commands() []*cli.Command {
	return []*cli.Command{
		ConfigureCommand(),
		EnableCommand(),
		DisableCommand(),
		RestartCommand(),
		StatusCommand(),
		BootCommand(),
	}
}

// newController wires an AP controller from the effective configuration.
func newController() (*wifiap.Controller, *config.Config) {
	cfg := config.Load()
	log.Configure(cfg.LogLevel, cfg.LogFormat)

	runner := system.NewExecRunner()
	nm := netman.NewClient(runner)
	services := sysd.NewManager(runner)
	store := dnsmasq.NewStore(cfg.DnsmasqConf, cfg.DnsmasqService, services)

	ctrl := wifiap.NewController(nm, services, store, nil,
		cfg.WirelessInterface, cfg.APConnectionName, cfg.APBootUnit)
	return ctrl, cfg
}
