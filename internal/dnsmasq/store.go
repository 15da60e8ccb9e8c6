// Package dnsmasq manages the shared dnsmasq configuration file.
//
// The file is consumed by the system dnsmasq service and edited by several
// features (per-interface DHCP scopes, MAC reservations, global directives),
// so every mutation is an idempotent read/modify/write on the parsed form:
// marker blocks are replaced wholesale, singleton directives never duplicate,
// and reservations are keyed by MAC. dnsmasq itself is an external
// collaborator reloaded after each saved change.
package dnsmasq

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pixelpi-co-uk/pixelpi/internal/log"
)

// BackupSuffix is appended to the config path for the pre-write copy.
const BackupSuffix = ".backup"

// Reloader restarts the service consuming the config file.
type Reloader interface {
	Restart(ctx context.Context, unit string) error
}

// ApplyResult reports how a saved change propagated. A failed reload is a
// degraded success: the configuration is on disk, only the running service
// lags behind.
type ApplyResult struct {
	Changed      bool
	ReloadFailed bool
	ReloadErr    error
}

// Store performs idempotent edits on the shared dnsmasq config file.
type Store struct {
	mu       sync.Mutex
	path     string
	service  string
	reloader Reloader
}

// NewStore creates a store over path. service names the systemd unit to
// reload after saved changes; an empty service or nil reloader disables
// reloads (used by tests and by read-only callers).
func NewStore(path, service string, reloader Reloader) *Store {
	return &Store{
		path:     path,
		service:  service,
		reloader: reloader,
	}
}

// Path returns the config file path.
func (s *Store) Path() string {
	return s.path
}

// Read returns the current file text. A missing file reads as empty.
func (s *Store) Read() (string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		log.Warn("Config file not found, treating as empty", "path", s.path)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", s.path, err)
	}
	return string(data), nil
}

// load parses the current file.
func (s *Store) load() (*Document, error) {
	text, err := s.Read()
	if err != nil {
		return nil, err
	}
	return Parse(text), nil
}

// write backs up the current file and replaces it with the document text.
func (s *Store) write(d *Document) error {
	if current, err := os.ReadFile(s.path); err == nil {
		if err := os.WriteFile(s.path+BackupSuffix, current, 0o644); err != nil {
			return fmt.Errorf("writing backup %s: %w", s.path+BackupSuffix, err)
		}
	}
	if err := os.WriteFile(s.path, []byte(d.String()), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	return nil
}

// Edit runs fn against the parsed document and, if fn reports a change,
// writes the file (backup first) and reloads the consuming service once.
// Batching several directive edits into one fn call yields a single reload.
func (s *Store) Edit(ctx context.Context, fn func(d *Document) bool) (ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return ApplyResult{}, err
	}

	if !fn(doc) {
		return ApplyResult{}, nil
	}

	if err := s.write(doc); err != nil {
		return ApplyResult{}, err
	}

	return s.reload(ctx), nil
}

// reload restarts the consuming service. Failure is non-fatal: the primary
// mutation is already saved, so it surfaces as a warning-level result.
func (s *Store) reload(ctx context.Context) ApplyResult {
	res := ApplyResult{Changed: true}
	if s.service == "" || s.reloader == nil {
		return res
	}
	if err := s.reloader.Restart(ctx, s.service); err != nil {
		log.Warn("Config saved but service reload failed", "service", s.service, "error", err)
		res.ReloadFailed = true
		res.ReloadErr = err
	}
	return res
}

// HasLine reports whether the file contains exactly line (trimmed).
func (s *Store) HasLine(line string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return false, err
	}
	return doc.HasLine(line), nil
}

// EnsureSingletonLine adds line iff no identical line exists.
func (s *Store) EnsureSingletonLine(ctx context.Context, line string) (ApplyResult, error) {
	return s.Edit(ctx, func(d *Document) bool {
		return d.EnsureSingletonLine(line)
	})
}

// UpsertBlock replaces the marker-delimited block with block.
func (s *Store) UpsertBlock(ctx context.Context, marker, block string) (ApplyResult, error) {
	return s.Edit(ctx, func(d *Document) bool {
		return d.UpsertBlock(marker, block)
	})
}

// RemoveBlock deletes the marker-delimited block.
func (s *Store) RemoveBlock(ctx context.Context, marker string) (ApplyResult, error) {
	return s.Edit(ctx, func(d *Document) bool {
		return d.RemoveBlock(marker)
	})
}

// UpsertReservation validates and stores a reservation, replacing any prior
// line for the same MAC.
func (s *Store) UpsertReservation(ctx context.Context, mac, ip, hostname string) (ApplyResult, error) {
	res := Reservation{
		MAC:      strings.ToLower(strings.TrimSpace(mac)),
		Hostname: strings.TrimSpace(hostname),
		IP:       strings.TrimSpace(ip),
	}
	if err := res.Validate(); err != nil {
		return ApplyResult{}, err
	}

	result, err := s.Edit(ctx, func(d *Document) bool {
		return d.UpsertReservation(res)
	})
	if err == nil && result.Changed {
		log.Info("DHCP reservation stored", "mac", res.MAC, "ip", res.IP)
	}
	return result, err
}

// RemoveReservation deletes the reservation for mac.
func (s *Store) RemoveReservation(ctx context.Context, mac string) (ApplyResult, error) {
	normalized := strings.ToLower(strings.TrimSpace(mac))
	if !macPattern.MatchString(normalized) {
		return ApplyResult{}, fmt.Errorf("invalid MAC address %q", mac)
	}
	result, err := s.Edit(ctx, func(d *Document) bool {
		return d.RemoveReservation(normalized)
	})
	if err == nil && result.Changed {
		log.Info("DHCP reservation removed", "mac", normalized)
	}
	return result, err
}

// ListReservations returns all parseable dhcp-host entries. Malformed lines
// are logged and skipped.
func (s *Store) ListReservations() ([]Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	reservations, parseErr := doc.Reservations()
	if parseErr != nil {
		log.Warn("Skipping malformed reservation lines", "path", s.path, "error", parseErr)
	}
	return reservations, nil
}

// Scope is a per-interface DHCP range with its router and DNS options.
type Scope struct {
	Interface string
	Start     string
	End       string
	Lease     string
	Gateway   string
	DNS       []string
}

// ScopeMarker is the comment heading an interface's DHCP block.
func ScopeMarker(iface string) string {
	return fmt.Sprintf("# %s - USB Ethernet Adapter", iface)
}

func (sc Scope) block() string {
	lines := []string{
		fmt.Sprintf("interface=%s", sc.Interface),
		fmt.Sprintf("dhcp-range=%s,%s,%s,%s", sc.Interface, sc.Start, sc.End, sc.Lease),
		fmt.Sprintf("dhcp-option=%s,3,%s", sc.Interface, sc.Gateway),
	}
	if len(sc.DNS) > 0 {
		lines = append(lines, fmt.Sprintf("dhcp-option=%s,6,%s", sc.Interface, strings.Join(sc.DNS, ",")))
	}
	return strings.Join(lines, "\n")
}

// EnsureScope provisions a DHCP scope block for sc.Interface unless one
// already exists. First write wins: re-running with a different address does
// not move an existing scope (use RemoveBlock first to reconfigure). The
// bind-dynamic singleton rides along so dnsmasq only binds configured
// interfaces. Returns created=false when the block was already present.
func (s *Store) EnsureScope(ctx context.Context, sc Scope) (ApplyResult, bool, error) {
	created := false
	result, err := s.Edit(ctx, func(d *Document) bool {
		changed := d.EnsureSingletonLine("bind-dynamic")
		if d.HasBlock(ScopeMarker(sc.Interface)) {
			return changed
		}
		created = true
		return d.UpsertBlock(ScopeMarker(sc.Interface), sc.block()) || changed
	})
	return result, created, err
}
