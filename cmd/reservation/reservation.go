// Package reservation holds the CLI commands for DHCP reservations in the
// shared dnsmasq configuration.
package reservation

import (
	"github.com/paularlott/cli"

	"github.com/pixelpi-co-uk/pixelpi/internal/config"
	"github.com/pixelpi-co-uk/pixelpi/internal/dnsmasq"
	"github.com/pixelpi-co-uk/pixelpi/internal/log"
	"github.com/pixelpi-co-uk/pixelpi/internal/sysd"
	"github.com/pixelpi-co-uk/pixelpi/internal/system"
)

func Commands() []*cli.Command {
	return []*cli.Command{
		AddCommand(),
		RemoveCommand(),
		ListCommand(),
	}
}

func newStore() (*dnsmasq.Store, *config.Config) {
	cfg := config.Load()
	log.Configure(cfg.LogLevel, cfg.LogFormat)

	services := sysd.NewManager(system.NewExecRunner())
	return dnsmasq.NewStore(cfg.DnsmasqConf, cfg.DnsmasqService, services), cfg
}
