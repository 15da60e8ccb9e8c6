package reservation

import (
	"context"
	"fmt"

	"github.com/paularlott/cli"

	"github.com/pixelpi-co-uk/pixelpi/internal/config"
)

func RemoveCommand() *cli.Command {
	return &cli.Command{
		Name:        "remove",
		Usage:       "Remove a DHCP reservation",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "mac", Required: true},
		},
		Flags: config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			store, _ := newStore()

			mac := cmd.GetStringArg("mac")
			result, err := store.RemoveReservation(ctx, mac)
			if err != nil {
				return err
			}
			if !result.Changed {
				fmt.Printf("No reservation found for %s\n", mac)
				return nil
			}

			fmt.Printf("Reservation removed: %s\n", mac)
			return nil
		},
	}
}
