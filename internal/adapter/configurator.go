package adapter

import (
	"context"
	"fmt"
	"net"

	"github.com/pixelpi-co-uk/pixelpi/internal/dnsmasq"
	"github.com/pixelpi-co-uk/pixelpi/internal/log"
)

// DHCP scope bounds carved out of the adapter's /24. Host addresses below
// .10 stay free for static assignments.
const (
	scopeStartHost = 10
	scopeEndHost   = 50
	scopeLease     = "24h"
)

var scopeDNS = []string{"8.8.8.8", "8.8.4.4"}

// networkManager is the slice of nmcli the configurator needs.
type networkManager interface {
	ConnectionExists(ctx context.Context, name string) bool
	AddEthernetStatic(ctx context.Context, name, iface, address string, prefix int) error
	ModifyStaticAddress(ctx context.Context, name, address string, prefix int) error
	ActivateConnection(ctx context.Context, name string) error
}

// scopeStore provisions the DHCP scope in the shared dnsmasq config.
type scopeStore interface {
	EnsureScope(ctx context.Context, sc dnsmasq.Scope) (dnsmasq.ApplyResult, bool, error)
}

// AssignResult reports what an assignment actually did. DHCPApplied false
// with a nil error means the scope is saved but dnsmasq could not be
// reloaded; addresses will be served after the next service restart.
type AssignResult struct {
	Connection   string        `json:"connection"`
	Scope        dnsmasq.Scope `json:"scope"`
	ScopeCreated bool          `json:"scope_created"`
	DHCPApplied  bool          `json:"dhcp_applied"`
}

// Configurator gives a USB ethernet adapter a static address and a DHCP
// scope so devices plugged into it get addresses immediately.
type Configurator struct {
	nm    networkManager
	store scopeStore
}

func NewConfigurator(nm networkManager, store scopeStore) *Configurator {
	return &Configurator{nm: nm, store: store}
}

// connectionName is the NM profile owned by an interface assignment.
func connectionName(iface string) string {
	return iface + "-static"
}

// Assign sets a static address on the interface and ensures a DHCP scope for
// its /24. The scope is first-write-wins: re-assigning with a different
// address keeps an already provisioned scope where it is.
func (c *Configurator) Assign(ctx context.Context, iface, address string, prefix int) (AssignResult, error) {
	if iface == "" {
		return AssignResult{}, fmt.Errorf("interface name must not be empty")
	}
	ip := net.ParseIP(address)
	if ip == nil || ip.To4() == nil {
		return AssignResult{}, fmt.Errorf("invalid IPv4 address %q", address)
	}
	if prefix <= 0 || prefix > 30 {
		prefix = 24
	}

	name := connectionName(iface)
	if c.nm.ConnectionExists(ctx, name) {
		if err := c.nm.ModifyStaticAddress(ctx, name, address, prefix); err != nil {
			return AssignResult{}, err
		}
	} else {
		if err := c.nm.AddEthernetStatic(ctx, name, iface, address, prefix); err != nil {
			return AssignResult{}, err
		}
	}

	if err := c.nm.ActivateConnection(ctx, name); err != nil {
		return AssignResult{}, err
	}

	scope := scopeFor(iface, ip)
	applied, created, err := c.store.EnsureScope(ctx, scope)
	if err != nil {
		return AssignResult{}, fmt.Errorf("provisioning DHCP scope for %s: %w", iface, err)
	}
	if applied.ReloadFailed {
		log.Warn("DHCP scope saved but dnsmasq reload failed",
			"interface", iface, "error", applied.ReloadErr)
	}

	log.Info("Adapter assigned", "interface", iface, "address", address,
		"scope_created", created)

	return AssignResult{
		Connection:   name,
		Scope:        scope,
		ScopeCreated: created,
		DHCPApplied:  !applied.ReloadFailed,
	}, nil
}

// scopeFor derives the .10 to .50 range of the address's /24. The adapter
// address itself doubles as the gateway handed to DHCP clients.
func scopeFor(iface string, ip net.IP) dnsmasq.Scope {
	v4 := ip.To4()
	base := net.IPv4(v4[0], v4[1], v4[2], 0).To4()

	start := make(net.IP, len(base))
	copy(start, base)
	start[3] = scopeStartHost

	end := make(net.IP, len(base))
	copy(end, base)
	end[3] = scopeEndHost

	return dnsmasq.Scope{
		Interface: iface,
		Start:     start.String(),
		End:       end.String(),
		Lease:     scopeLease,
		Gateway:   v4.String(),
		DNS:       scopeDNS,
	}
}
