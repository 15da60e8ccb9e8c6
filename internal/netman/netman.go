// Package netman drives NetworkManager through nmcli. It is a thin,
// deterministic wrapper: every operation is one command invocation with its
// output captured, so callers own retry and caching policy.
package netman

import (
	"context"
	"fmt"
	"strings"

	"github.com/pixelpi-co-uk/pixelpi/internal/log"
	"github.com/pixelpi-co-uk/pixelpi/internal/system"
)

const (
	nmcliBin  = "nmcli"
	rfkillBin = "rfkill"
)

// DeviceState is the NetworkManager view of a device.
type DeviceState string

const (
	DeviceUnavailable  DeviceState = "unavailable"
	DeviceDisconnected DeviceState = "disconnected"
	DeviceConnected    DeviceState = "connected"
	DeviceUnknown      DeviceState = "unknown"
)

// Connectable reports whether the device is ready to carry a connection.
func (s DeviceState) Connectable() bool {
	return s == DeviceDisconnected || s == DeviceConnected
}

// APProfile describes a wireless access-point connection profile. Shared
// ipv4 method makes NetworkManager's embedded dnsmasq assign client
// addresses; autoconnect stays off because boot activation is sequenced
// separately.
type APProfile struct {
	Name      string
	Interface string
	SSID      string
	PSK       string
	Channel   int
	Gateway   string
}

// Client wraps the nmcli control plane.
type Client struct {
	runner system.Runner
}

func NewClient(runner system.Runner) *Client {
	return &Client{runner: runner}
}

// ConnectionExists checks whether a named connection profile is defined.
func (c *Client) ConnectionExists(ctx context.Context, name string) bool {
	_, err := c.runner.Run(ctx, nmcliBin, "connection", "show", name)
	return err == nil
}

// DeleteConnection removes a connection profile. Deleting a profile that
// does not exist is not an error.
func (c *Client) DeleteConnection(ctx context.Context, name string) {
	if _, err := c.runner.Run(ctx, nmcliBin, "connection", "delete", name); err != nil {
		log.Debug("Connection delete skipped", "name", name, "error", err)
	}
}

// AddAPConnection creates a fresh wireless AP profile.
func (c *Client) AddAPConnection(ctx context.Context, p APProfile) error {
	_, err := c.runner.Run(ctx, nmcliBin, "connection", "add",
		"type", "wifi",
		"ifname", p.Interface,
		"con-name", p.Name,
		"autoconnect", "no",
		"ssid", p.SSID,
		"802-11-wireless.mode", "ap",
		"802-11-wireless.band", "bg",
		"802-11-wireless.channel", fmt.Sprintf("%d", p.Channel),
		"ipv4.method", "shared",
		"ipv4.addresses", p.Gateway+"/24",
		"wifi-sec.key-mgmt", "wpa-psk",
		"wifi-sec.psk", p.PSK,
	)
	if err != nil {
		return fmt.Errorf("creating AP connection %s: %w", p.Name, err)
	}
	return nil
}

// AddEthernetStatic creates an autoconnecting wired profile with a manual
// address.
func (c *Client) AddEthernetStatic(ctx context.Context, name, iface, address string, prefix int) error {
	_, err := c.runner.Run(ctx, nmcliBin, "connection", "add",
		"type", "ethernet",
		"ifname", iface,
		"con-name", name,
		"ipv4.addresses", fmt.Sprintf("%s/%d", address, prefix),
		"ipv4.method", "manual",
		"connection.autoconnect", "yes",
	)
	if err != nil {
		return fmt.Errorf("creating connection %s: %w", name, err)
	}
	return nil
}

// ModifyStaticAddress updates the manual address of an existing profile.
func (c *Client) ModifyStaticAddress(ctx context.Context, name, address string, prefix int) error {
	_, err := c.runner.Run(ctx, nmcliBin, "connection", "modify", name,
		"ipv4.addresses", fmt.Sprintf("%s/%d", address, prefix),
		"ipv4.method", "manual",
	)
	if err != nil {
		return fmt.Errorf("modifying connection %s: %w", name, err)
	}
	return nil
}

// SetAutoconnect flips the autoconnect flag of a profile.
func (c *Client) SetAutoconnect(ctx context.Context, name string, on bool) error {
	value := "no"
	if on {
		value = "yes"
	}
	_, err := c.runner.Run(ctx, nmcliBin, "connection", "modify", name, "autoconnect", value)
	if err != nil {
		return fmt.Errorf("setting autoconnect on %s: %w", name, err)
	}
	return nil
}

// ActivateConnection brings a profile up.
func (c *Client) ActivateConnection(ctx context.Context, name string) error {
	if _, err := c.runner.Run(ctx, nmcliBin, "connection", "up", name); err != nil {
		return fmt.Errorf("activating connection %s: %w", name, err)
	}
	return nil
}

// DeactivateConnection brings a profile down.
func (c *Client) DeactivateConnection(ctx context.Context, name string) error {
	if _, err := c.runner.Run(ctx, nmcliBin, "connection", "down", name); err != nil {
		return fmt.Errorf("deactivating connection %s: %w", name, err)
	}
	return nil
}

// ConnectionActive reports whether the named connection is currently up.
func (c *Client) ConnectionActive(ctx context.Context, name string) (bool, error) {
	out, err := c.runner.Run(ctx, nmcliBin, "-t", "-f", "NAME", "connection", "show", "--active")
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == name {
			return true, nil
		}
	}
	return false, nil
}

// ConnectionField reads one field from a profile in terse mode. The returned
// value is the text after the first colon; a missing field yields "".
func (c *Client) ConnectionField(ctx context.Context, name, field string) (string, error) {
	out, err := c.runner.Run(ctx, nmcliBin, "-t", "-f", field, "connection", "show", name)
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(out)
	if _, value, found := strings.Cut(line, ":"); found {
		return value, nil
	}
	return "", nil
}

// GetDeviceState returns NetworkManager's state for a device.
func (c *Client) GetDeviceState(ctx context.Context, device string) (DeviceState, error) {
	out, err := c.runner.Run(ctx, nmcliBin, "-t", "-f", "DEVICE,STATE", "device")
	if err != nil {
		return DeviceUnknown, err
	}
	for _, line := range strings.Split(out, "\n") {
		name, state, found := strings.Cut(strings.TrimSpace(line), ":")
		if found && name == device {
			return DeviceState(state), nil
		}
	}
	return DeviceUnknown, nil
}

// Ready reports whether the NetworkManager control plane answers at all.
func (c *Client) Ready(ctx context.Context) bool {
	_, err := c.runner.Run(ctx, nmcliBin, "general", "status")
	return err == nil
}

// EnableWifiRadio unblocks the wifi radio at driver level and switches it on
// in NetworkManager; rfkill alone is not always enough.
func (c *Client) EnableWifiRadio(ctx context.Context) error {
	if _, err := c.runner.Run(ctx, rfkillBin, "unblock", "wifi"); err != nil {
		return fmt.Errorf("rfkill unblock: %w", err)
	}
	if _, err := c.runner.Run(ctx, nmcliBin, "radio", "wifi", "on"); err != nil {
		return fmt.Errorf("enabling wifi radio: %w", err)
	}
	return nil
}
