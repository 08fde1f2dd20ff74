package bridge

// EventType marks the kind of asynchronous notification emitted by the
// bridge, independent of any pending operation slot.
type EventType int

const (
	// EventDeviceFound fires once per device address within a scan window.
	EventDeviceFound EventType = iota
	// EventDisconnected fires when the active connection drops.
	EventDisconnected
	// EventValueChanged fires for peripheral-initiated value updates on a
	// characteristic with notifications enabled.
	EventValueChanged
)

func (t EventType) String() string {
	switch t {
	case EventDeviceFound:
		return "device_found"
	case EventDisconnected:
		return "disconnected"
	case EventValueChanged:
		return "value_changed"
	default:
		return "unknown"
	}
}

// Event is an asynchronous bridge notification.
type Event struct {
	Type EventType

	// Device is set for EventDeviceFound.
	Device *DiscoveredDevice

	// CharUUID and Value are set for EventValueChanged. Value is owned by
	// the receiver.
	CharUUID string
	Value    []byte
}

// DiscoveredDevice is a transient scan result. It exists for the duration
// of one scan window; a new scan discards prior results.
type DiscoveredDevice struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	RSSI    int    `json:"rssi"`
}
