// Package wled holds the CLI commands for WLED discovery. Unlike the wifi
// and adapter commands these go through the running daemon: scans should use
// its inventory database rather than a second writer on the same file.
package wled

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/paularlott/cli"

	"github.com/pixelpi-co-uk/pixelpi/internal/config"
)

func Commands() []*cli.Command {
	return []*cli.Command{
		ScanCommand(),
		ListCommand(),
	}
}

func getDefaultServerURL() string {
	cfg := config.Load()
	addr := cfg.ListenAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func makeRequest(method, url, token string, body *strings.Reader) (*http.Response, error) {
	client := &http.Client{Timeout: 5 * time.Minute}

	if body == nil {
		body = strings.NewReader("")
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return client.Do(req)
}

func serverFlags() []cli.Flag {
	return append(config.GetFlags(),
		&cli.StringFlag{Name: "server", Usage: "Daemon URL", EnvVars: []string{"PIXELPI_SERVER"}},
		&cli.StringFlag{Name: "token", Usage: "API bearer token", EnvVars: []string{"PIXELPI_API_TOKEN"}},
	)
}

func serverURL(cmd *cli.Command) string {
	if url := cmd.GetString("server"); url != "" {
		return url
	}
	return getDefaultServerURL()
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server error: %s", resp.Status)
	}
	return nil
}
