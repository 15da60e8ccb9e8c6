package adapter

import (
	"context"
	"fmt"

	"github.com/paularlott/cli"

	"github.com/pixelpi-co-uk/pixelpi/internal/config"
)

func ConfigureCommand() *cli.Command {
	return &cli.Command{
		Name:        "configure",
		Usage:       "Assign a static address and DHCP scope to an adapter",
		Description: "Give the interface a static address and provision a dnsmasq DHCP scope for its /24",
		Flags: append(config.GetFlags(),
			&cli.StringFlag{Name: "interface", Usage: "Interface name", Required: true},
			&cli.StringFlag{Name: "ip", Usage: "Static IPv4 address", Required: true},
			&cli.IntFlag{Name: "prefix", Usage: "Network prefix length", DefaultValue: 24},
		),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			configurator, _ := newConfigurator()

			result, err := configurator.Assign(ctx,
				cmd.GetString("interface"),
				cmd.GetString("ip"),
				cmd.GetInt("prefix"))
			if err != nil {
				return err
			}

			fmt.Printf("Connection %s active\n", result.Connection)
			if result.ScopeCreated {
				fmt.Printf("DHCP scope %s - %s created\n", result.Scope.Start, result.Scope.End)
			} else {
				fmt.Println("Existing DHCP scope kept")
			}
			if !result.DHCPApplied {
				fmt.Println("Warning: dnsmasq reload failed; scope applies after the next service restart")
			}
			return nil
		},
	}
}
