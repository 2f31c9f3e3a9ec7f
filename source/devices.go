package source

import (
	"strings"
	"time"
)

// DeviceProfile describes a family of MIDI devices
type DeviceProfile struct {
	// Pattern is matched case-insensitively against the port name
	Pattern string        `json:"pattern"`
	Vendor  string        `json:"vendor"`
	Latency time.Duration `json:"latency"`
	// Excluded ports are never auto-connected (virtual and system ports)
	Excluded bool `json:"excluded"`
}

// DeviceTable maps port names to device profiles. Entries are consulted in
// order, so earlier entries win both lookups and port preference.
type DeviceTable struct {
	Profiles []DeviceProfile `json:"profiles"`
	// Fallback applies to ports no entry matches
	Fallback DeviceProfile `json:"fallback"`
}

// DefaultDeviceTable returns the built-in compatibility table
func DefaultDeviceTable() DeviceTable {
	return DeviceTable{
		Profiles: []DeviceProfile{
			{Pattern: "Midi Through", Excluded: true},
			{Pattern: "Through Port", Excluded: true},
			{Pattern: "Dummy", Excluded: true},
			{Pattern: "Roland", Vendor: "Roland", Latency: 6 * time.Millisecond},
			{Pattern: "Yamaha", Vendor: "Yamaha", Latency: 7 * time.Millisecond},
			{Pattern: "Digital Piano", Vendor: "Yamaha", Latency: 7 * time.Millisecond},
			{Pattern: "Kawai", Vendor: "Kawai", Latency: 7 * time.Millisecond},
			{Pattern: "Casio", Vendor: "Casio", Latency: 10 * time.Millisecond},
			{Pattern: "Korg", Vendor: "Korg", Latency: 6 * time.Millisecond},
			{Pattern: "Launchkey", Vendor: "Novation", Latency: 5 * time.Millisecond},
			{Pattern: "Novation", Vendor: "Novation", Latency: 5 * time.Millisecond},
			{Pattern: "Arturia", Vendor: "Arturia", Latency: 5 * time.Millisecond},
			{Pattern: "M-Audio", Vendor: "M-Audio", Latency: 8 * time.Millisecond},
			{Pattern: "Nektar", Vendor: "Nektar", Latency: 7 * time.Millisecond},
		},
		Fallback: DeviceProfile{Vendor: "generic", Latency: 10 * time.Millisecond},
	}
}

// Lookup returns the first profile matching name, or the fallback with
// false when nothing matches
func (t DeviceTable) Lookup(name string) (DeviceProfile, bool) {
	for _, p := range t.Profiles {
		if p.Pattern != "" && containsFold(name, p.Pattern) {
			return p, true
		}
	}
	return t.Fallback, false
}

// Pick chooses the port to connect among names: the first port matching the
// earliest known profile, else the first port that is not excluded
func (t DeviceTable) Pick(names []string) (string, DeviceProfile, bool) {
	for _, p := range t.Profiles {
		if p.Excluded || p.Pattern == "" {
			continue
		}
		for _, name := range names {
			if !containsFold(name, p.Pattern) {
				continue
			}
			// an earlier exclusion may still cover this name
			if got, _ := t.Lookup(name); got.Excluded {
				continue
			}
			return name, p, true
		}
	}
	for _, name := range names {
		if p, _ := t.Lookup(name); !p.Excluded {
			return name, p, true
		}
	}
	return "", DeviceProfile{}, false
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
