package reservation

import (
	"context"
	"fmt"

	"github.com/paularlott/cli"

	"github.com/pixelpi-co-uk/pixelpi/internal/config"
)

func AddCommand() *cli.Command {
	return &cli.Command{
		Name:        "add",
		Usage:       "Add or update a DHCP reservation",
		Description: "Pin a device to a fixed address, keyed by MAC; an existing reservation for the MAC is replaced",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "mac", Required: true},
			&cli.StringArg{Name: "ip", Required: true},
		},
		Flags: append(config.GetFlags(),
			&cli.StringFlag{Name: "hostname", Usage: "Optional hostname handed to the device"},
		),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			store, _ := newStore()

			mac := cmd.GetStringArg("mac")
			ip := cmd.GetStringArg("ip")

			result, err := store.UpsertReservation(ctx, mac, ip, cmd.GetString("hostname"))
			if err != nil {
				return err
			}

			fmt.Printf("Reservation saved: %s -> %s\n", mac, ip)
			if result.ReloadFailed {
				fmt.Println("Warning: dnsmasq reload failed; reservation applies after the next service restart")
			}
			return nil
		},
	}
}
