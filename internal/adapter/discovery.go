// Package adapter discovers network interfaces on the host and provisions
// USB ethernet adapters with a static address and a matching DHCP scope.
package adapter

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/vishvananda/netlink"
)

const sysClassNet = "/sys/class/net"

// Adapter is one network interface as seen by the kernel.
type Adapter struct {
	Name      string   `json:"name"`
	MAC       string   `json:"mac"`
	Up        bool     `json:"up"`
	Kind      string   `json:"kind"`
	Driver    string   `json:"driver"`
	USB       bool     `json:"usb"`
	Addresses []string `json:"addresses"`
}

// Discovery lists host interfaces via netlink, with driver and bus details
// filled in from sysfs.
type Discovery struct {
	sysfs   string
	builtin map[string]bool

	// netlink access, swapped out by tests.
	listLinks func() ([]netlink.Link, error)
	listAddrs func(link netlink.Link) ([]netlink.Addr, error)
}

// NewDiscovery builds a Discovery. The builtin interfaces are the board's
// own NICs; they never count as attachable USB adapters even when they sit
// on an internal USB bus, as they do on some single-board computers.
func NewDiscovery(builtin ...string) *Discovery {
	d := &Discovery{
		sysfs:     sysClassNet,
		builtin:   map[string]bool{},
		listLinks: netlink.LinkList,
		listAddrs: func(link netlink.Link) ([]netlink.Addr, error) {
			return netlink.AddrList(link, netlink.FAMILY_V4)
		},
	}
	for _, name := range builtin {
		d.builtin[name] = true
	}
	return d
}

// WithSysfs overrides the sysfs root, used by tests.
func (d *Discovery) WithSysfs(root string) *Discovery {
	d.sysfs = root
	return d
}

// List returns every interface except loopback.
func (d *Discovery) List() ([]Adapter, error) {
	links, err := d.listLinks()
	if err != nil {
		return nil, fmt.Errorf("listing links: %w", err)
	}

	adapters := make([]Adapter, 0, len(links))
	for _, link := range links {
		attrs := link.Attrs()
		if attrs.Name == "lo" || attrs.Flags&net.FlagLoopback != 0 {
			continue
		}

		a := Adapter{
			Name:   attrs.Name,
			Up:     attrs.Flags&net.FlagUp != 0,
			Kind:   d.kind(attrs.Name),
			Driver: d.driver(attrs.Name),
			USB:    d.onUSBBus(attrs.Name),
		}
		if attrs.HardwareAddr != nil {
			a.MAC = attrs.HardwareAddr.String()
		}

		addrs, err := d.listAddrs(link)
		if err == nil {
			for _, addr := range addrs {
				if addr.IPNet != nil {
					a.Addresses = append(a.Addresses, addr.IPNet.String())
				}
			}
		}

		adapters = append(adapters, a)
	}
	return adapters, nil
}

// USBEthernet returns plug-in USB ethernet adapters: on the USB bus, wired,
// and not one of the board's builtin interfaces.
func (d *Discovery) USBEthernet() ([]Adapter, error) {
	all, err := d.List()
	if err != nil {
		return nil, err
	}

	usb := make([]Adapter, 0, len(all))
	for _, a := range all {
		if a.USB && a.Kind == "ethernet" && !d.builtin[a.Name] {
			usb = append(usb, a)
		}
	}
	return usb, nil
}

func (d *Discovery) kind(name string) string {
	if _, err := os.Stat(filepath.Join(d.sysfs, name, "wireless")); err == nil {
		return "wireless"
	}
	if _, err := os.Lstat(filepath.Join(d.sysfs, name, "device")); err == nil {
		return "ethernet"
	}
	return "virtual"
}

func (d *Discovery) driver(name string) string {
	target, err := os.Readlink(filepath.Join(d.sysfs, name, "device", "driver"))
	if err != nil {
		return ""
	}
	return filepath.Base(target)
}

// onUSBBus checks the device symlink target; USB-attached interfaces resolve
// through a usb segment of the device tree.
func (d *Discovery) onUSBBus(name string) bool {
	target, err := os.Readlink(filepath.Join(d.sysfs, name, "device"))
	if err != nil {
		return false
	}
	return strings.Contains(target, "usb")
}
