// Package sysd drives systemd through systemctl and manages unit files under
// /etc/systemd/system.
package sysd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pixelpi-co-uk/pixelpi/internal/log"
	"github.com/pixelpi-co-uk/pixelpi/internal/system"
)

const systemctlBin = "systemctl"

// DefaultUnitDir is where installed unit files live.
const DefaultUnitDir = "/etc/systemd/system"

// Manager wraps the systemctl control plane.
type Manager struct {
	runner  system.Runner
	unitDir string
}

func NewManager(runner system.Runner) *Manager {
	return &Manager{runner: runner, unitDir: DefaultUnitDir}
}

// WithUnitDir overrides the unit file directory, used by tests.
func (m *Manager) WithUnitDir(dir string) *Manager {
	m.unitDir = dir
	return m
}

func (m *Manager) Enable(ctx context.Context, unit string) error {
	if _, err := m.runner.Run(ctx, systemctlBin, "enable", unit); err != nil {
		return fmt.Errorf("enabling %s: %w", unit, err)
	}
	return nil
}

func (m *Manager) Disable(ctx context.Context, unit string) error {
	if _, err := m.runner.Run(ctx, systemctlBin, "disable", unit); err != nil {
		return fmt.Errorf("disabling %s: %w", unit, err)
	}
	return nil
}

func (m *Manager) Stop(ctx context.Context, unit string) error {
	if _, err := m.runner.Run(ctx, systemctlBin, "stop", unit); err != nil {
		return fmt.Errorf("stopping %s: %w", unit, err)
	}
	return nil
}

func (m *Manager) Restart(ctx context.Context, unit string) error {
	if _, err := m.runner.Run(ctx, systemctlBin, "restart", unit); err != nil {
		return fmt.Errorf("restarting %s: %w", unit, err)
	}
	return nil
}

// IsEnabled reports whether a unit is registered to start at boot.
func (m *Manager) IsEnabled(ctx context.Context, unit string) bool {
	out, err := m.runner.Run(ctx, systemctlBin, "is-enabled", unit)
	return err == nil && strings.TrimSpace(out) == "enabled"
}

// IsActive reports whether a unit is currently running.
func (m *Manager) IsActive(ctx context.Context, unit string) bool {
	_, err := m.runner.Run(ctx, systemctlBin, "is-active", unit)
	return err == nil
}

func (m *Manager) DaemonReload(ctx context.Context) {
	if _, err := m.runner.Run(ctx, systemctlBin, "daemon-reload"); err != nil {
		log.Warn("systemd daemon-reload failed", "error", err)
	}
}

// InstallUnit writes a unit file and reloads systemd so it is visible.
func (m *Manager) InstallUnit(ctx context.Context, unit, content string) error {
	path := filepath.Join(m.unitDir, unit)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing unit %s: %w", path, err)
	}
	m.DaemonReload(ctx)
	log.Info("Installed systemd unit", "unit", unit)
	return nil
}

// RemoveUnit stops, disables and deletes a unit. Every step is best-effort:
// the unit may never have been installed.
func (m *Manager) RemoveUnit(ctx context.Context, unit string) {
	if _, err := m.runner.Run(ctx, systemctlBin, "stop", unit); err != nil {
		log.Debug("Unit stop skipped", "unit", unit, "error", err)
	}
	if _, err := m.runner.Run(ctx, systemctlBin, "disable", unit); err != nil {
		log.Debug("Unit disable skipped", "unit", unit, "error", err)
	}

	path := filepath.Join(m.unitDir, unit)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("Could not remove unit file", "path", path, "error", err)
	}
	m.DaemonReload(ctx)
}

// UnitInstalled reports whether the unit file exists on disk.
func (m *Manager) UnitInstalled(unit string) bool {
	_, err := os.Stat(filepath.Join(m.unitDir, unit))
	return err == nil
}
