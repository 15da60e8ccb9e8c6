// Package storage persists the WLED device inventory and scan history in
// SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pixelpi-co-uk/pixelpi/internal/log"
	"github.com/pixelpi-co-uk/pixelpi/internal/wled"
)

// SQLiteStorage is the inventory backend. It satisfies wled.Inventory.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database and applies the schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	// SQLite serializes writers anyway; a single connection avoids
	// SQLITE_BUSY churn under concurrent scan persistence.
	db.SetMaxOpenConns(1)

	s := &SQLiteStorage{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("Inventory database ready", "path", path)
	return s, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS wled_devices (
		key TEXT PRIMARY KEY,
		mac TEXT,
		ip TEXT NOT NULL,
		name TEXT,
		version TEXT,
		brand TEXT,
		first_seen TIMESTAMP NOT NULL,
		last_seen TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_wled_devices_ip ON wled_devices(ip);

	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		subnet TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP NOT NULL,
		hosts_scanned INTEGER NOT NULL,
		devices_found INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

// deviceKey identifies a device across scans. MAC when known; controllers
// behind an unresolvable ARP entry fall back to their address.
func deviceKey(d *wled.Device) string {
	if d.MAC != "" {
		return d.MAC
	}
	return "ip:" + d.IP
}

// UpsertDevice inserts a newly seen device or refreshes an existing row.
// first_seen survives updates.
func (s *SQLiteStorage) UpsertDevice(device *wled.Device) error {
	_, err := s.db.Exec(`
		INSERT INTO wled_devices (key, mac, ip, name, version, brand, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			mac = excluded.mac,
			ip = excluded.ip,
			name = excluded.name,
			version = excluded.version,
			brand = excluded.brand,
			last_seen = excluded.last_seen
	`, deviceKey(device), device.MAC, device.IP, device.Name, device.Version,
		device.Brand, device.LastSeen, device.LastSeen)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", deviceKey(device), err)
	}
	return nil
}

// ListDevices returns the inventory, most recently seen first.
func (s *SQLiteStorage) ListDevices() ([]wled.Device, error) {
	rows, err := s.db.Query(`
		SELECT mac, ip, name, version, brand, last_seen
		FROM wled_devices ORDER BY last_seen DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []wled.Device
	for rows.Next() {
		var d wled.Device
		var lastSeen time.Time
		if err := rows.Scan(&d.MAC, &d.IP, &d.Name, &d.Version, &d.Brand, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		d.LastSeen = lastSeen
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// RecordScan appends one sweep to the history.
func (s *SQLiteStorage) RecordScan(scan *wled.Scan) error {
	_, err := s.db.Exec(`
		INSERT INTO scans (id, subnet, started_at, completed_at, hosts_scanned, devices_found)
		VALUES (?, ?, ?, ?, ?, ?)
	`, scan.ID, scan.Subnet, scan.StartedAt, scan.CompletedAt, scan.HostsScanned, scan.DevicesFound)
	if err != nil {
		return fmt.Errorf("recording scan %s: %w", scan.ID, err)
	}
	return nil
}

// ListScans returns the most recent sweeps, newest first.
func (s *SQLiteStorage) ListScans(limit int) ([]wled.Scan, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, subnet, started_at, completed_at, hosts_scanned, devices_found
		FROM scans ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	defer rows.Close()

	var scans []wled.Scan
	for rows.Next() {
		var sc wled.Scan
		if err := rows.Scan(&sc.ID, &sc.Subnet, &sc.StartedAt, &sc.CompletedAt,
			&sc.HostsScanned, &sc.DevicesFound); err != nil {
			return nil, fmt.Errorf("scanning scan row: %w", err)
		}
		scans = append(scans, sc)
	}
	return scans, rows.Err()
}
