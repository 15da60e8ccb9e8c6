package main

import (
	"context"

	"github.com/paularlott/cli"

	adaptercmd "github.com/pixelpi-co-uk/pixelpi/cmd/adapter"
	"github.com/pixelpi-co-uk/pixelpi/cmd/reservation"
	"github.com/pixelpi-co-uk/pixelpi/cmd/server"
	"github.com/pixelpi-co-uk/pixelpi/cmd/wifi"
	wledcmd "github.com/pixelpi-co-uk/pixelpi/cmd/wled"
	"github.com/pixelpi-co-uk/pixelpi/internal/log"
)

func main() {
	root := &cli.Command{
		Name:        "pixelpi",
		Usage:       "Network provisioning for WLED installations",
		Description: "Manage USB ethernet adapters, DHCP scopes and reservations, WLED discovery and the WiFi access point",
		Commands: []*cli.Command{
			server.Command(),
			{
				Name:     "wifi",
				Usage:    "Manage the WiFi access point",
				Commands: wifi.Commands(),
			},
			{
				Name:     "adapter",
				Usage:    "List and provision network adapters",
				Commands: adaptercmd.Commands(),
			},
			{
				Name:     "reservation",
				Usage:    "Manage DHCP reservations",
				Commands: reservation.Commands(),
			},
			{
				Name:     "wled",
				Usage:    "Discover and inspect WLED controllers",
				Commands: wledcmd.Commands(),
			},
		},
	}

	if err := root.Execute(context.Background()); err != nil {
		log.Fatal("Command failed", "error", err)
	}
}
