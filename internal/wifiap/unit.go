package wifiap

import "os"

const defaultBinaryPath = "/usr/local/bin/pixelpi"

// bootUnitContent renders the oneshot unit that runs the boot activation
// sequence. Ordering after network-online.target is what actually delays
// activation past the boot race; the generous start timeout covers the
// sequencer's worst-case readiness waits.
func bootUnitContent() string {
	return `[Unit]
Description=PixelPi WiFi access point activation
After=NetworkManager.service network-online.target
Wants=NetworkManager.service network-online.target

[Service]
Type=oneshot
ExecStart=` + binaryPath() + ` wifi boot
RemainAfterExit=yes
TimeoutStartSec=120

[Install]
WantedBy=multi-user.target
`
}

// binaryPath resolves the installed binary so the unit survives reinstalls
// to a different prefix.
func binaryPath() string {
	if path, err := os.Executable(); err == nil {
		return path
	}
	return defaultBinaryPath
}
