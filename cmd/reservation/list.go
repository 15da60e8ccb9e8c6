package reservation

import (
	"context"
	"fmt"

	"github.com/paularlott/cli"

	"github.com/pixelpi-co-uk/pixelpi/internal/config"
)

func ListCommand() *cli.Command {
	return &cli.Command{
		Name:        "list",
		Usage:       "List DHCP reservations",
		Flags:       config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			store, _ := newStore()

			reservations, err := store.ListReservations()
			if err != nil {
				return err
			}
			if len(reservations) == 0 {
				fmt.Println("No reservations found")
				return nil
			}

			for _, r := range reservations {
				if r.Hostname != "" {
					fmt.Printf("%-17s %-15s %s\n", r.MAC, r.IP, r.Hostname)
				} else {
					fmt.Printf("%-17s %s\n", r.MAC, r.IP)
				}
			}
			return nil
		},
	}
}
