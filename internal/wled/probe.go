package wled

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-ping/ping"
	"github.com/j-keck/arping"
)

// deviceInfo is the subset of WLED's /json/info payload we care about.
type deviceInfo struct {
	Name    string `json:"name"`
	Version string `json:"ver"`
	Brand   string `json:"brand"`
	MAC     string `json:"mac"`
}

// icmpAlive pings a host once. Without raw socket access ICMP would hang, so
// unprivileged processes fall straight through to the HTTP probe.
func (s *Scanner) icmpAlive(ctx context.Context, ip string) bool {
	if os.Geteuid() != 0 && !canUseRawSocket() {
		return true
	}

	pinger, err := ping.NewPinger(ip)
	if err != nil {
		return false
	}
	pinger.Count = 1
	pinger.Timeout = s.timeout
	pinger.SetPrivileged(true)

	// Run blocks until the count is answered or the timeout fires.
	if err := pinger.Run(); err != nil {
		return false
	}
	return pinger.Statistics().PacketsRecv > 0
}

func canUseRawSocket() bool {
	conn, err := net.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// arpMAC resolves a MAC over ARP; empty on failure, callers fall back to the
// MAC the device reports about itself.
func arpMAC(ip string) string {
	mac, _, err := arping.Ping(net.ParseIP(ip))
	if err != nil {
		return ""
	}
	return mac.String()
}

// httpIdentify asks the host's /json/info endpoint to prove it is a WLED
// controller.
func (s *Scanner) httpIdentify(ctx context.Context, ip string) (*deviceInfo, error) {
	return fetchInfo(ctx, fmt.Sprintf("http://%s/json/info", ip), s.timeout)
}

func fetchInfo(ctx context.Context, url string, timeout time.Duration) (*deviceInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var info deviceInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding device info: %w", err)
	}
	if info.Name == "" && info.Version == "" {
		return nil, fmt.Errorf("no WLED identity in response")
	}
	return &info, nil
}
