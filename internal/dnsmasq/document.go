package dnsmasq

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

const reservationPrefix = "dhcp-host="

// reservationSection heads the block of dhcp-host lines we own.
const reservationSection = "# WLED Reservations"

var macPattern = regexp.MustCompile(`^([0-9a-f]{2}:){5}[0-9a-f]{2}$`)

// Reservation is a fixed IP bound to a device MAC, with an optional hostname.
// The MAC is the natural key: re-adding a MAC replaces its line.
type Reservation struct {
	MAC      string `json:"mac"`
	Hostname string `json:"hostname,omitempty"`
	IP       string `json:"ip"`
}

// Line renders the reservation in dnsmasq dhcp-host syntax.
func (r Reservation) Line() string {
	if r.Hostname != "" {
		return fmt.Sprintf("%s%s,%s,%s", reservationPrefix, r.MAC, r.Hostname, r.IP)
	}
	return fmt.Sprintf("%s%s,%s", reservationPrefix, r.MAC, r.IP)
}

// Validate checks MAC and IP syntax. MACs must be lowercase colon-separated
// six octets; callers normalise case before storing.
func (r Reservation) Validate() error {
	if !macPattern.MatchString(r.MAC) {
		return fmt.Errorf("invalid MAC address %q", r.MAC)
	}
	ip := net.ParseIP(r.IP)
	if ip == nil || ip.To4() == nil {
		return fmt.Errorf("invalid IPv4 address %q", r.IP)
	}
	return nil
}

// parseReservation parses a dhcp-host line. The IP is always the last field
// and the hostname, if present, the middle one; anything with more fields is
// a parse error rather than a guess.
func parseReservation(raw string) (Reservation, error) {
	body := strings.TrimPrefix(strings.TrimSpace(raw), reservationPrefix)
	parts := strings.Split(body, ",")
	switch len(parts) {
	case 2:
		return Reservation{MAC: strings.ToLower(parts[0]), IP: parts[1]}, nil
	case 3:
		return Reservation{MAC: strings.ToLower(parts[0]), Hostname: parts[1], IP: parts[2]}, nil
	default:
		return Reservation{}, fmt.Errorf("malformed reservation line %q", raw)
	}
}

// LineKind classifies a config line.
type LineKind int

const (
	KindOther       LineKind = iota // blank lines, comments, unknown text
	KindMarker                      // "# <resource> - <purpose>" block marker
	KindDirective                   // key=value or bare directive
	KindReservation                 // dhcp-host=...
)

// Record is one line of the shared config file. Raw preserves the exact text
// so serialization never disturbs content we do not own.
type Record struct {
	Kind LineKind
	Raw  string
}

var markerPattern = regexp.MustCompile(`^# \S+ - .+$`)

func classify(raw string) LineKind {
	trimmed := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(trimmed, reservationPrefix):
		return KindReservation
	case markerPattern.MatchString(trimmed):
		return KindMarker
	case trimmed == "" || strings.HasPrefix(trimmed, "#"):
		return KindOther
	default:
		return KindDirective
	}
}

// Document is the parsed, ordered form of the shared config file. All
// mutations happen on the parsed records; serialization reproduces the
// line-oriented grammar exactly.
type Document struct {
	records []Record
}

// Parse builds a Document from config file text.
func Parse(text string) *Document {
	d := &Document{}
	if text == "" {
		return d
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for _, l := range lines {
		d.records = append(d.records, Record{Kind: classify(l), Raw: l})
	}
	return d
}

// String serializes the document back to file text.
func (d *Document) String() string {
	if len(d.records) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range d.records {
		b.WriteString(r.Raw)
		b.WriteByte('\n')
	}
	return b.String()
}

// HasLine reports whether any line equals line exactly after trimming
// whitespace.
func (d *Document) HasLine(line string) bool {
	want := strings.TrimSpace(line)
	for _, r := range d.records {
		if strings.TrimSpace(r.Raw) == want {
			return true
		}
	}
	return false
}

// EnsureSingletonLine appends line unless an identical line already exists.
// Returns true if the document changed.
func (d *Document) EnsureSingletonLine(line string) bool {
	if d.HasLine(line) {
		return false
	}
	d.append(Record{Kind: classify(line), Raw: line})
	return true
}

// RemoveLine deletes every line exactly equal to line (trimmed). Returns true
// if anything was removed.
func (d *Document) RemoveLine(line string) bool {
	want := strings.TrimSpace(line)
	return d.removeMatching(func(r Record) bool {
		return strings.TrimSpace(r.Raw) == want
	})
}

// HasBlock reports whether a block headed by marker exists.
func (d *Document) HasBlock(marker string) bool {
	want := strings.TrimSpace(marker)
	for _, r := range d.records {
		if r.Kind == KindMarker && strings.TrimSpace(r.Raw) == want {
			return true
		}
	}
	return false
}

// UpsertBlock replaces the block headed by marker with block, appending at
// end of file. The old block is bounded by the next blank line or the next
// marker, whichever comes first, so unrelated content is never disturbed.
// Applying the same block twice yields one occurrence. Returns true if the
// document changed.
func (d *Document) UpsertBlock(marker, block string) bool {
	before := d.String()
	d.RemoveBlock(marker)
	d.appendBlank()
	d.append(Record{Kind: KindMarker, Raw: marker})
	for _, l := range strings.Split(strings.TrimRight(block, "\n"), "\n") {
		d.append(Record{Kind: classify(l), Raw: l})
	}
	return d.String() != before
}

// RemoveBlock deletes the block headed by marker, from the marker line to the
// next blank line or next marker. Returns true if a block was removed.
func (d *Document) RemoveBlock(marker string) bool {
	want := strings.TrimSpace(marker)
	start := -1
	for i, r := range d.records {
		if r.Kind == KindMarker && strings.TrimSpace(r.Raw) == want {
			start = i
			break
		}
	}
	if start < 0 {
		return false
	}
	end := len(d.records)
	for i := start + 1; i < len(d.records); i++ {
		r := d.records[i]
		if strings.TrimSpace(r.Raw) == "" || r.Kind == KindMarker {
			end = i
			break
		}
	}
	d.records = append(d.records[:start], d.records[end:]...)
	return true
}

// UpsertReservation replaces any dhcp-host line for res.MAC with the freshly
// formatted line, keyed by MAC. Returns true if the document changed.
func (d *Document) UpsertReservation(res Reservation) bool {
	before := d.String()
	prefix := reservationPrefix + res.MAC
	d.removeMatching(func(r Record) bool {
		return r.Kind == KindReservation &&
			strings.HasPrefix(strings.ToLower(strings.TrimSpace(r.Raw)), prefix)
	})
	if !d.HasLine(reservationSection) {
		d.appendBlank()
		d.append(Record{Kind: KindOther, Raw: reservationSection})
	}
	d.append(Record{Kind: KindReservation, Raw: res.Line()})
	return d.String() != before
}

// RemoveReservation deletes the dhcp-host line for mac. Returns true if a
// line was removed.
func (d *Document) RemoveReservation(mac string) bool {
	prefix := reservationPrefix + strings.ToLower(mac)
	return d.removeMatching(func(r Record) bool {
		return r.Kind == KindReservation &&
			strings.HasPrefix(strings.ToLower(strings.TrimSpace(r.Raw)), prefix)
	})
}

// Reservations parses every dhcp-host line. Valid reservations are returned
// even when other lines are malformed; the joined error reports each bad
// line.
func (d *Document) Reservations() ([]Reservation, error) {
	var (
		out  []Reservation
		errs []error
	)
	for _, r := range d.records {
		if r.Kind != KindReservation {
			continue
		}
		res, err := parseReservation(r.Raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, res)
	}
	return out, errors.Join(errs...)
}

func (d *Document) append(r Record) {
	d.records = append(d.records, r)
}

// appendBlank adds a separating blank line unless the file is empty or
// already ends with one.
func (d *Document) appendBlank() {
	if len(d.records) == 0 {
		return
	}
	if strings.TrimSpace(d.records[len(d.records)-1].Raw) == "" {
		return
	}
	d.append(Record{Kind: KindOther, Raw: ""})
}

func (d *Document) removeMatching(match func(Record) bool) bool {
	kept := d.records[:0]
	removed := false
	for _, r := range d.records {
		if match(r) {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	d.records = kept
	return removed
}
