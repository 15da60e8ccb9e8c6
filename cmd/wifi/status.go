package wifi

import (
	"context"
	"fmt"

	"github.com/paularlott/cli"

	"github.com/pixelpi-co-uk/pixelpi/internal/config"
)

func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:        "status",
		Usage:       "Show access point state",
		Description: "Report whether the AP profile exists, starts at boot, and is currently active",
		Flags:       config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			ctrl, _ := newController()

			status := ctrl.Status(ctx)
			fmt.Printf("Installed: %s\n", yesNo(status.Installed))
			fmt.Printf("Enabled:   %s\n", yesNo(status.Enabled))
			fmt.Printf("Active:    %s\n", yesNo(status.Active))

			if cfg := ctrl.Config(ctx); cfg != nil {
				fmt.Printf("SSID:      %s\n", cfg.SSID)
				fmt.Printf("Channel:   %d\n", cfg.Channel)
				fmt.Printf("Gateway:   %s\n", cfg.Gateway)
				fmt.Printf("Interface: %s\n", cfg.Interface)
			}

			if status.Active {
				clients, err := ctrl.ConnectedClients(ctx)
				if err == nil {
					fmt.Printf("Clients:   %d\n", len(clients))
					for _, c := range clients {
						fmt.Printf("  - %s %s (%s)\n", c.IP, c.MAC, c.State)
					}
				}
			}
			return nil
		},
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
