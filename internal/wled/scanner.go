// Package wled finds WLED LED controllers on an adapter's subnet and keeps
// an inventory of what was seen.
package wled

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pixelpi-co-uk/pixelpi/internal/log"
)

// Device is one WLED controller found on the network.
type Device struct {
	IP       string    `json:"ip"`
	MAC      string    `json:"mac"`
	Name     string    `json:"name"`
	Version  string    `json:"version"`
	Brand    string    `json:"brand"`
	LastSeen time.Time `json:"last_seen"`
}

// Scan is one sweep over a subnet.
type Scan struct {
	ID           string    `json:"id"`
	Subnet       string    `json:"subnet"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	HostsScanned int       `json:"hosts_scanned"`
	DevicesFound int       `json:"devices_found"`
}

// Inventory persists discovery results.
type Inventory interface {
	UpsertDevice(device *Device) error
	RecordScan(scan *Scan) error
}

// Scanner sweeps a subnet for WLED controllers: liveness by ICMP, identity
// by the controller's /json/info endpoint, MAC by ARP.
type Scanner struct {
	inventory Inventory
	timeout   time.Duration
	workers   int

	// probes, swapped out by tests
	alive      func(ctx context.Context, ip string) bool
	resolveMAC func(ip string) string
	identify   func(ctx context.Context, ip string) (*deviceInfo, error)
}

// NewScanner builds a scanner. A nil inventory disables persistence; scans
// then only report their in-memory results.
func NewScanner(inventory Inventory, timeout time.Duration) *Scanner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	s := &Scanner{
		inventory: inventory,
		timeout:   timeout,
		workers:   16,
	}
	s.alive = s.icmpAlive
	s.resolveMAC = arpMAC
	s.identify = s.httpIdentify
	return s
}

// Sweep probes every host of the subnet and returns the WLED devices found.
// Hosts that answer ping but are not WLED controllers are silently skipped.
func (s *Scanner) Sweep(ctx context.Context, subnet string) (*Scan, []Device, error) {
	hosts, err := hostsIn(subnet)
	if err != nil {
		return nil, nil, err
	}

	scan := &Scan{
		ID:           uuid.New().String(),
		Subnet:       subnet,
		StartedAt:    time.Now(),
		HostsScanned: len(hosts),
	}
	log.Info("Starting WLED sweep", "scan_id", scan.ID, "subnet", subnet, "hosts", len(hosts))

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var devices []Device

	for _, host := range hosts {
		wg.Add(1)
		go func(ip string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			device, ok := s.probeHost(ctx, ip)
			if !ok {
				return
			}

			mu.Lock()
			devices = append(devices, device)
			mu.Unlock()
		}(host)
	}
	wg.Wait()

	scan.CompletedAt = time.Now()
	scan.DevicesFound = len(devices)

	if s.inventory != nil {
		for i := range devices {
			if err := s.inventory.UpsertDevice(&devices[i]); err != nil {
				log.Warn("Could not persist device", "ip", devices[i].IP, "error", err)
			}
		}
		if err := s.inventory.RecordScan(scan); err != nil {
			log.Warn("Could not persist scan record", "scan_id", scan.ID, "error", err)
		}
	}

	log.Info("WLED sweep complete", "scan_id", scan.ID, "found", len(devices),
		"duration", scan.CompletedAt.Sub(scan.StartedAt).String())
	return scan, devices, nil
}

// probeHost turns one live, identified host into a Device.
func (s *Scanner) probeHost(ctx context.Context, ip string) (Device, bool) {
	if !s.alive(ctx, ip) {
		return Device{}, false
	}

	info, err := s.identify(ctx, ip)
	if err != nil {
		// Alive but not a WLED controller.
		log.Debug("Host is not a WLED device", "ip", ip, "error", err)
		return Device{}, false
	}

	mac := s.resolveMAC(ip)
	if mac == "" {
		mac = formatInfoMAC(info.MAC)
	}

	return Device{
		IP:       ip,
		MAC:      mac,
		Name:     info.Name,
		Version:  info.Version,
		Brand:    info.Brand,
		LastSeen: time.Now(),
	}, true
}

// hostsIn enumerates the usable host addresses of an IPv4 subnet, excluding
// the network and broadcast addresses.
func hostsIn(subnet string) ([]string, error) {
	ip, ipnet, err := net.ParseCIDR(subnet)
	if err != nil {
		return nil, fmt.Errorf("parsing subnet %q: %w", subnet, err)
	}
	if ip.To4() == nil {
		return nil, fmt.Errorf("subnet %q is not IPv4", subnet)
	}

	var hosts []string
	for addr := ip.Mask(ipnet.Mask).To4(); ipnet.Contains(addr); addr = nextIP(addr) {
		hosts = append(hosts, addr.String())
	}
	if len(hosts) <= 2 {
		return nil, fmt.Errorf("subnet %q has no usable hosts", subnet)
	}
	return hosts[1 : len(hosts)-1], nil
}

func nextIP(ip net.IP) net.IP {
	next := make(net.IP, len(ip))
	copy(next, ip)
	for i := len(next) - 1; i >= 0; i-- {
		next[i]++
		if next[i] != 0 {
			break
		}
	}
	return next
}

// formatInfoMAC converts the bare hex MAC WLED reports ("aabbccddeeff") to
// colon notation.
func formatInfoMAC(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if len(raw) != 12 {
		return raw
	}
	parts := make([]string, 0, 6)
	for i := 0; i < 12; i += 2 {
		parts = append(parts, raw[i:i+2])
	}
	return strings.Join(parts, ":")
}
