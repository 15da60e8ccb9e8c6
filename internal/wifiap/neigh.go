package wifiap

import (
	"fmt"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// netlinkNeighbors lists IPv4 neighbours on an interface straight from the
// kernel table. Stations associated with the AP show up here once they have
// taken a DHCP lease and exchanged traffic.
func netlinkNeighbors(iface string) ([]Client, error) {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return nil, fmt.Errorf("looking up link %s: %w", iface, err)
	}

	neighs, err := netlink.NeighList(link.Attrs().Index, netlink.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("reading neighbour table: %w", err)
	}

	clients := make([]Client, 0, len(neighs))
	for _, n := range neighs {
		// Only entries with confirmed reachability count as clients;
		// FAILED and INCOMPLETE entries are leftovers.
		if n.State&(unix.NUD_REACHABLE|unix.NUD_STALE|unix.NUD_DELAY|unix.NUD_PROBE) == 0 {
			continue
		}
		if n.IP == nil || n.HardwareAddr == nil {
			continue
		}
		clients = append(clients, Client{
			IP:    n.IP.String(),
			MAC:   n.HardwareAddr.String(),
			State: neighStateName(n.State),
		})
	}
	return clients, nil
}

func neighStateName(state int) string {
	switch {
	case state&unix.NUD_REACHABLE != 0:
		return "reachable"
	case state&unix.NUD_STALE != 0:
		return "stale"
	case state&unix.NUD_DELAY != 0:
		return "delay"
	case state&unix.NUD_PROBE != 0:
		return "probe"
	default:
		return "unknown"
	}
}
