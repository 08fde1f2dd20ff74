package platform

// darwinAuthority reports the modern generation with all grants held: the
// OS mediates Bluetooth authorization through its own consent dialog, and
// denial surfaces from CoreBluetooth when the transport is opened.
type darwinAuthority struct{}

// NewSystemAuthority returns the authority for the host stack. The adapter
// argument is accepted for interface parity and ignored on darwin.
func NewSystemAuthority(adapter string) Authority {
	return darwinAuthority{}
}

func (darwinAuthority) Generation() Generation { return GenerationModern }

func (darwinAuthority) Has(p Permission) bool {
	return p == PermScan || p == PermConnect
}

// AdapterPowered is optimistic on darwin: CoreBluetooth only exposes the
// manager state once a central is created, and a powered-off adapter is
// surfaced (and normalized to ErrBluetoothOff) at that point.
func (darwinAuthority) AdapterPowered() (bool, error) {
	return true, nil
}
