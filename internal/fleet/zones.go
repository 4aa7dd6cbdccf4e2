package fleet

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ZoneRegistry maps site names to administrative zones. The planner charges
// a penalty when a tour leg crosses from one zone into another, so operators
// tend to finish a zone before moving on.
type ZoneRegistry struct {
	siteZones map[string]string
}

type zoneFile struct {
	Zones []zoneEntry `yaml:"zones"`
}

type zoneEntry struct {
	Name  string   `yaml:"name"`
	Sites []string `yaml:"sites"`
}

// LoadZoneRegistry reads a zones YAML file. A missing path yields an empty
// registry rather than an error; zone-aware planning is optional.
func LoadZoneRegistry(path string) (*ZoneRegistry, error) {
	if strings.TrimSpace(path) == "" {
		return &ZoneRegistry{siteZones: map[string]string{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ZoneRegistry{siteZones: map[string]string{}}, nil
		}
		return nil, err
	}

	return ParseZoneRegistry(content)
}

// ParseZoneRegistry parses zone definitions from YAML content.
func ParseZoneRegistry(content []byte) (*ZoneRegistry, error) {
	var f zoneFile
	if err := yaml.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("parse zones yaml: %w", err)
	}

	siteZones := make(map[string]string)
	for _, z := range f.Zones {
		zone := normalizeZoneKey(z.Name)
		if zone == "" {
			continue
		}
		for _, site := range z.Sites {
			key := normalizeZoneKey(site)
			if key == "" {
				continue
			}
			// First zone claiming a site wins; duplicates are a config bug.
			if _, exists := siteZones[key]; exists {
				return nil, fmt.Errorf("site %q assigned to more than one zone", site)
			}
			siteZones[key] = zone
		}
	}

	return &ZoneRegistry{siteZones: siteZones}, nil
}

func normalizeZoneKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ZoneForSite returns the zone a site belongs to, or "" when unassigned.
func (r *ZoneRegistry) ZoneForSite(siteName string) string {
	if r == nil {
		return ""
	}
	return r.siteZones[normalizeZoneKey(siteName)]
}

// Annotate fills in Device.Zone from the device's site name. Devices whose
// site is not in the registry keep an empty zone and never incur the
// crossing penalty.
func (r *ZoneRegistry) Annotate(devices []Device) []Device {
	if r == nil || len(r.siteZones) == 0 {
		return devices
	}
	out := make([]Device, len(devices))
	copy(out, devices)
	for i := range out {
		if out[i].Zone == "" {
			out[i].Zone = r.ZoneForSite(out[i].SiteName)
		}
	}
	return out
}

// Zones lists the distinct zone names in the registry, sorted.
func (r *ZoneRegistry) Zones() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, zone := range r.siteZones {
		if _, ok := seen[zone]; ok {
			continue
		}
		seen[zone] = struct{}{}
		out = append(out, zone)
	}
	sort.Strings(out)
	return out
}
