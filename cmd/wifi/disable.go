package wifi

import (
	"context"
	"fmt"

	"github.com/paularlott/cli"

	"github.com/pixelpi-co-uk/pixelpi/internal/config"
)

func DisableCommand() *cli.Command {
	return &cli.Command{
		Name:        "disable",
		Usage:       "Deactivate the access point",
		Description: "Bring the AP down and remove its boot activation",
		Flags:       config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			ctrl, _ := newController()

			if err := ctrl.Disable(ctx); err != nil {
				return err
			}

			fmt.Println("Access point disabled")
			return nil
		},
	}
}
