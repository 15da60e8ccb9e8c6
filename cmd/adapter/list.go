package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/paularlott/cli"

	netadapter "github.com/pixelpi-co-uk/pixelpi/internal/adapter"
	"github.com/pixelpi-co-uk/pixelpi/internal/config"
)

func ListCommand() *cli.Command {
	return &cli.Command{
		Name:        "list",
		Usage:       "List network adapters",
		Description: "List host interfaces; --filter usb restricts to plug-in USB ethernet adapters",
		Flags: append(config.GetFlags(),
			&cli.StringFlag{Name: "filter", Usage: "Filter adapters (usb)"},
		),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			discovery, _ := newDiscovery()

			var adapters []netadapter.Adapter
			var err error
			if cmd.GetString("filter") == "usb" {
				adapters, err = discovery.USBEthernet()
			} else {
				adapters, err = discovery.List()
			}
			if err != nil {
				return err
			}

			if len(adapters) == 0 {
				fmt.Println("No adapters found")
				return nil
			}
			for _, a := range adapters {
				state := "down"
				if a.Up {
					state = "up"
				}
				fmt.Printf("%-10s %-8s %-5s %-17s %-8s %s\n",
					a.Name, a.Kind, state, a.MAC, a.Driver, strings.Join(a.Addresses, " "))
			}
			return nil
		},
	}
}
