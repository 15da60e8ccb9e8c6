package wifi

import (
	"context"
	"fmt"

	"github.com/paularlott/cli"

	"github.com/pixelpi-co-uk/pixelpi/internal/config"
)

func RestartCommand() *cli.Command {
	return &cli.Command{
		Name:        "restart",
		Usage:       "Cycle the access point connection",
		Flags:       config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			ctrl, _ := newController()

			if err := ctrl.Restart(ctx); err != nil {
				return err
			}

			fmt.Println("Access point restarted")
			return nil
		},
	}
}
