package fleet

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

const zonesYAML = `
zones:
  - name: Central
    sites:
      - Riverside
      - Market Square
  - name: East
    sites:
      - Depot
`

func TestParseZoneRegistry_LookupIsCaseInsensitive(t *testing.T) {
	reg, err := ParseZoneRegistry([]byte(zonesYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if zone := reg.ZoneForSite("riverside"); zone != "central" {
		t.Fatalf("expected central, got %q", zone)
	}
	if zone := reg.ZoneForSite("  MARKET SQUARE  "); zone != "central" {
		t.Fatalf("expected central, got %q", zone)
	}
	if zone := reg.ZoneForSite("Depot"); zone != "east" {
		t.Fatalf("expected east, got %q", zone)
	}
	if zone := reg.ZoneForSite("unknown"); zone != "" {
		t.Fatalf("expected empty zone for unknown site, got %q", zone)
	}
}

func TestParseZoneRegistry_DuplicateSiteRejected(t *testing.T) {
	content := `
zones:
  - name: central
    sites: [riverside]
  - name: east
    sites: [riverside]
`
	if _, err := ParseZoneRegistry([]byte(content)); err == nil {
		t.Fatal("expected error for site assigned to two zones")
	}
}

func TestParseZoneRegistry_InvalidYAML(t *testing.T) {
	if _, err := ParseZoneRegistry([]byte("zones: [whoops")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadZoneRegistry_MissingPathYieldsEmptyRegistry(t *testing.T) {
	reg, err := LoadZoneRegistry("")
	if err != nil {
		t.Fatalf("empty path: %v", err)
	}
	if zone := reg.ZoneForSite("riverside"); zone != "" {
		t.Fatalf("expected empty registry, got %q", zone)
	}

	reg, err = LoadZoneRegistry(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if len(reg.Zones()) != 0 {
		t.Fatalf("expected no zones, got %v", reg.Zones())
	}
}

func TestLoadZoneRegistry_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.yaml")
	if err := os.WriteFile(path, []byte(zonesYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	reg, err := LoadZoneRegistry(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	zones := reg.Zones()
	if len(zones) != 2 || zones[0] != "central" || zones[1] != "east" {
		t.Fatalf("expected [central east], got %v", zones)
	}
}

func TestAnnotate_FillsZoneFromSite(t *testing.T) {
	reg, err := ParseZoneRegistry([]byte(zonesYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	in := []Device{
		{ID: "aq-1", SiteName: "Riverside"},
		{ID: "aq-2", SiteName: "Depot"},
		{ID: "aq-3", SiteName: "Nowhere"},
		{ID: "aq-4", SiteName: "Riverside", Zone: "override"},
	}
	out := reg.Annotate(in)

	if out[0].Zone != "central" || out[1].Zone != "east" {
		t.Fatalf("expected zones filled, got %q %q", out[0].Zone, out[1].Zone)
	}
	if out[2].Zone != "" {
		t.Fatalf("expected empty zone for unknown site, got %q", out[2].Zone)
	}
	if out[3].Zone != "override" {
		t.Fatalf("expected preset zone kept, got %q", out[3].Zone)
	}
	// Input slice must not be mutated.
	if in[0].Zone != "" {
		t.Fatalf("expected input untouched, got %q", in[0].Zone)
	}
}

func TestHasCoordinates(t *testing.T) {
	cases := []struct {
		name string
		d    Device
		want bool
	}{
		{"valid", Device{Latitude: 51.5, Longitude: -0.12}, true},
		{"origin", Device{Latitude: 0, Longitude: 0}, true},
		{"lat out of range", Device{Latitude: 91, Longitude: 0}, false},
		{"lon out of range", Device{Latitude: 0, Longitude: 181}, false},
		{"lat nan", Device{Latitude: math.NaN(), Longitude: 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.d.HasCoordinates(); got != tc.want {
				t.Fatalf("HasCoordinates() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	d := Device{ID: "aq-1"}
	if d.DisplayName() != "aq-1" {
		t.Fatalf("expected id fallback, got %q", d.DisplayName())
	}
	d.Name = "riverside"
	if d.DisplayName() != "riverside" {
		t.Fatalf("expected name, got %q", d.DisplayName())
	}
}
