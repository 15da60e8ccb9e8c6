package wled

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paularlott/cli"

	"github.com/pixelpi-co-uk/pixelpi/internal/wled"
)

func ListCommand() *cli.Command {
	return &cli.Command{
		Name:        "list",
		Usage:       "List known WLED controllers",
		Description: "Show every controller the daemon has seen, newest first",
		Flags:       serverFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			resp, err := makeRequest("GET", serverURL(cmd)+"/api/wled/devices",
				cmd.GetString("token"), nil)
			if err != nil {
				return fmt.Errorf("failed to connect to server: %w", err)
			}
			defer resp.Body.Close()
			if err := checkResponse(resp); err != nil {
				return err
			}

			var result struct {
				Devices []wled.Device `json:"devices"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
				return err
			}

			if len(result.Devices) == 0 {
				fmt.Println("No devices found")
				return nil
			}
			for _, d := range result.Devices {
				fmt.Printf("%-15s %-17s %-20s %-10s last seen %s\n",
					d.IP, d.MAC, d.Name, d.Version, d.LastSeen.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}
