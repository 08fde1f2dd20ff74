// Package platform models the permission surface of the host Bluetooth
// stack. The surface varies by platform generation: modern stacks hand out
// distinct scan and connect grants, legacy stacks use a single coarse
// device-discovery grant as a proxy for scan permission. The bridge asks an
// Authority before every operation and fails fast when grants are missing.
package platform

// Permission is a single platform capability grant.
type Permission string

const (
	// PermScan allows starting BLE discovery.
	PermScan Permission = "bluetooth-scan"
	// PermConnect allows establishing a GATT link.
	PermConnect Permission = "bluetooth-connect"
	// PermDiscovery is the legacy coarse grant covering both.
	PermDiscovery Permission = "device-discovery"
)

// Generation identifies the permission model of the host stack.
type Generation int

const (
	// GenerationLegacy requires the single coarse PermDiscovery grant.
	GenerationLegacy Generation = iota
	// GenerationModern requires distinct PermScan and PermConnect grants.
	GenerationModern
)

func (g Generation) String() string {
	if g == GenerationModern {
		return "modern"
	}
	return "legacy"
}

// Authority reports the host's permission generation, the grants held by
// this process, and the adapter power state.
type Authority interface {
	Generation() Generation
	Has(p Permission) bool

	// AdapterPowered reports whether the Bluetooth adapter is present and
	// powered on.
	AdapterPowered() (bool, error)
}

// Required returns the grant set a generation demands for BLE operations.
func Required(g Generation) []Permission {
	if g == GenerationModern {
		return []Permission{PermScan, PermConnect}
	}
	return []Permission{PermDiscovery}
}

// Missing returns the required grants the authority does not hold, as
// strings suitable for a PermissionError. Empty means fully granted.
func Missing(a Authority) []string {
	var missing []string
	for _, p := range Required(a.Generation()) {
		if !a.Has(p) {
			missing = append(missing, string(p))
		}
	}
	return missing
}

// StaticAuthority is a fixed-answer Authority for tests and embedding.
type StaticAuthority struct {
	Gen        Generation
	Grants     []Permission
	Powered    bool
	PoweredErr error
}

func (a *StaticAuthority) Generation() Generation { return a.Gen }

func (a *StaticAuthority) Has(p Permission) bool {
	for _, g := range a.Grants {
		if g == p {
			return true
		}
	}
	return false
}

func (a *StaticAuthority) AdapterPowered() (bool, error) {
	return a.Powered, a.PoweredErr
}

// AllGranted returns an authority with every grant of the given generation,
// adapter powered. Convenient default for tests.
func AllGranted(g Generation) *StaticAuthority {
	return &StaticAuthority{Gen: g, Grants: Required(g), Powered: true}
}
