// Package adapter holds the CLI commands for listing and provisioning
// network adapters directly on the host.
package adapter

import (
	"github.com/paularlott/cli"

	netadapter "github.com/pixelpi-co-uk/pixelpi/internal/adapter"
	"github.com/pixelpi-co-uk/pixelpi/internal/config"
	"github.com/pixelpi-co-uk/pixelpi/internal/dnsmasq"
	"github.com/pixelpi-co-uk/pixelpi/internal/log"
	"github.com/pixelpi-co-uk/pixelpi/internal/netman"
	"github.com/pixelpi-co-uk/pixelpi/internal/sysd"
	"github.com/pixelpi-co-uk/pixelpi/internal/system"
)

func Commands() []*cli.Command {
	return []*cli.Command{
		ListCommand(),
		ConfigureCommand(),
	}
}

func newDiscovery() (*netadapter.Discovery, *config.Config) {
	cfg := config.Load()
	log.Configure(cfg.LogLevel, cfg.LogFormat)
	return netadapter.NewDiscovery(cfg.BuiltinInterface, cfg.WirelessInterface), cfg
}

func newConfigurator() (*netadapter.Configurator, *config.Config) {
	cfg := config.Load()
	log.Configure(cfg.LogLevel, cfg.LogFormat)

	runner := system.NewExecRunner()
	nm := netman.NewClient(runner)
	services := sysd.NewManager(runner)
	store := dnsmasq.NewStore(cfg.DnsmasqConf, cfg.DnsmasqService, services)

	return netadapter.NewConfigurator(nm, store), cfg
}
