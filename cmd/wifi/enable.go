package wifi

import (
	"context"
	"fmt"

	"github.com/paularlott/cli"

	"github.com/pixelpi-co-uk/pixelpi/internal/config"
)

func EnableCommand() *cli.Command {
	return &cli.Command{
		Name:        "enable",
		Usage:       "Activate the access point and register boot activation",
		Description: "Bring the AP up now and install the delayed activation that survives reboots",
		Flags:       config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			ctrl, _ := newController()

			if err := ctrl.Enable(ctx); err != nil {
				return err
			}

			fmt.Println("Access point enabled and active")
			return nil
		},
	}
}
