package wifi

import (
	"context"
	"fmt"

	"github.com/paularlott/cli"

	"github.com/pixelpi-co-uk/pixelpi/internal/config"
	"github.com/pixelpi-co-uk/pixelpi/internal/wifiap"
)

func ConfigureCommand() *cli.Command {
	return &cli.Command{
		Name:        "configure",
		Usage:       "Create or replace the access point profile",
		Description: "Replace the AP connection with fresh SSID, passphrase, channel and address settings",
		Flags: append(config.GetFlags(),
			&cli.StringFlag{Name: "ssid", Usage: "Network name", DefaultValue: wifiap.DefaultSSID},
			&cli.StringFlag{Name: "psk", Usage: "WPA passphrase (min 8 characters)", Required: true},
			&cli.IntFlag{Name: "channel", Usage: "2.4GHz channel (1-11)", DefaultValue: wifiap.DefaultChannel},
			&cli.StringFlag{Name: "ip", Usage: "Gateway address for the AP network", DefaultValue: wifiap.DefaultGateway},
		),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			ctrl, _ := newController()

			err := ctrl.Configure(ctx,
				cmd.GetString("ssid"),
				cmd.GetString("psk"),
				cmd.GetInt("channel"),
				cmd.GetString("ip"))
			if err != nil {
				return err
			}

			fmt.Printf("Access point %q configured\n", cmd.GetString("ssid"))
			fmt.Println("Run 'pixelpi wifi enable' to activate it")
			return nil
		},
	}
}
