package wifi

import (
	"context"

	"github.com/paularlott/cli"

	"github.com/pixelpi-co-uk/pixelpi/internal/config"
	"github.com/pixelpi-co-uk/pixelpi/internal/log"
	"github.com/pixelpi-co-uk/pixelpi/internal/netman"
	"github.com/pixelpi-co-uk/pixelpi/internal/system"
	"github.com/pixelpi-co-uk/pixelpi/internal/wifiap"
)

// BootCommand is what the installed oneshot unit runs. It must tolerate the
// wireless hardware and NetworkManager still coming up.
func BootCommand() *cli.Command {
	return &cli.Command{
		Name:        "boot",
		Usage:       "Run the delayed boot activation sequence",
		Description: "Wait for the radio, interface and NetworkManager, then activate the AP with retries",
		Flags:       config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.Load()
			log.Configure(cfg.LogLevel, cfg.LogFormat)

			nm := netman.NewClient(system.NewExecRunner())
			seq := wifiap.NewBootSequencer(nm, nil, cfg.WirelessInterface, cfg.APConnectionName)

			return seq.Run(ctx)
		},
	}
}
