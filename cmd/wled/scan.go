package wled

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paularlott/cli"

	"github.com/pixelpi-co-uk/pixelpi/internal/wled"
)

func ScanCommand() *cli.Command {
	return &cli.Command{
		Name:        "scan",
		Usage:       "Scan a subnet for WLED controllers",
		Description: "Ask the daemon to sweep the subnet and record what it finds",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "subnet", Required: true},
		},
		Flags: serverFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			subnet := cmd.GetStringArg("subnet")

			payload, err := json.Marshal(map[string]string{"subnet": subnet})
			if err != nil {
				return err
			}

			resp, err := makeRequest("POST", serverURL(cmd)+"/api/wled/scan",
				cmd.GetString("token"), strings.NewReader(string(payload)))
			if err != nil {
				return fmt.Errorf("failed to connect to server: %w", err)
			}
			defer resp.Body.Close()
			if err := checkResponse(resp); err != nil {
				return err
			}

			var result struct {
				Scan    wled.Scan     `json:"scan"`
				Devices []wled.Device `json:"devices"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
				return err
			}

			fmt.Printf("Scanned %d hosts, found %d WLED devices\n",
				result.Scan.HostsScanned, result.Scan.DevicesFound)
			for _, d := range result.Devices {
				fmt.Printf("%-15s %-17s %-20s %s\n", d.IP, d.MAC, d.Name, d.Version)
			}
			return nil
		},
	}
}
