package platform

import (
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"
)

const (
	bluezBus          = "org.bluez"
	bluezAdapterIface = "org.bluez.Adapter1"
	defaultAdapter    = "hci0"
)

// linuxAuthority derives grants from process capabilities and reads the
// adapter power state from BlueZ over the system D-Bus. Raw HCI access
// needs CAP_NET_ADMIN for scanning and CAP_NET_RAW for connections.
type linuxAuthority struct {
	adapter string
}

// NewSystemAuthority returns the authority for the host stack. adapter
// selects the BlueZ adapter (e.g. "hci0"); empty uses the default.
func NewSystemAuthority(adapter string) Authority {
	if adapter == "" {
		adapter = defaultAdapter
	}
	return &linuxAuthority{adapter: adapter}
}

func (a *linuxAuthority) Generation() Generation {
	return GenerationModern
}

func (a *linuxAuthority) Has(p Permission) bool {
	if os.Geteuid() == 0 {
		return true
	}
	switch p {
	case PermScan:
		return hasEffectiveCap(unix.CAP_NET_ADMIN)
	case PermConnect:
		return hasEffectiveCap(unix.CAP_NET_RAW)
	case PermDiscovery:
		return hasEffectiveCap(unix.CAP_NET_ADMIN) && hasEffectiveCap(unix.CAP_NET_RAW)
	default:
		return false
	}
}

// AdapterPowered queries org.bluez.Adapter1.Powered for the configured
// adapter. A missing adapter object is reported as an error, not as
// powered-off, so callers can distinguish "no Bluetooth" from "turned off".
func (a *linuxAuthority) AdapterPowered() (bool, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return false, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	obj := conn.Object(bluezBus, dbus.ObjectPath("/org/bluez/"+a.adapter))
	variant, err := obj.GetProperty(bluezAdapterIface + ".Powered")
	if err != nil {
		return false, fmt.Errorf("failed to query adapter %s: %w", a.adapter, err)
	}

	powered, ok := variant.Value().(bool)
	if !ok {
		return false, fmt.Errorf("unexpected Powered property type %T", variant.Value())
	}
	return powered, nil
}

// hasEffectiveCap checks a capability bit in the effective set of the
// calling thread.
func hasEffectiveCap(cap int) bool {
	hdr := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
	var data [2]unix.CapUserData
	if err := unix.Capget(&hdr, &data[0]); err != nil {
		return false
	}
	return data[cap>>5].Effective&(1<<(uint(cap)&31)) != 0
}
