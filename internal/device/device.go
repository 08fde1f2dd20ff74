// Package device defines the transport-neutral interfaces of the peripheral
// link: advertisements, connections, and the GATT capability snapshot. The
// go-ble backed implementation lives in the goble subpackage; tests use the
// fakes in internal/testutils.
package device

import "context"

// Advertisement is a single received advertising frame.
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	Services() []string
	Connectable() bool
	TxPowerLevel() int

	RSSI() int
	Addr() string
}

// Scanner performs BLE discovery, invoking handler for every received
// advertisement until ctx expires or is canceled.
type Scanner interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// Transport produces scanners and connections. It is the seam between the
// bridge and the platform Bluetooth stack.
type Transport interface {
	Scanner

	// Dial connects to the peripheral at address and discovers its full
	// capability tree before returning. The returned Connection is live.
	Dial(ctx context.Context, address string) (Connection, error)
}

// Connection represents a live link to a peripheral plus the read-only
// capability snapshot taken at discovery time. The snapshot is not kept in
// sync with later changes on the remote device.
type Connection interface {
	Address() string

	// Services returns the capability snapshot in discovery order.
	Services() []Service

	// GetCharacteristic resolves a characteristic by (service, uuid).
	// Returns *NotFoundError when either half of the pair is absent.
	GetCharacteristic(serviceUUID, charUUID string) (Characteristic, error)

	// Subscribe enables notifications for the characteristic and delivers
	// each value change to handler on the stack's callback goroutine.
	Subscribe(serviceUUID, charUUID string, handler func(data []byte)) error

	// ExchangeMTU issues a single best-effort transfer-unit request and
	// returns the negotiated value.
	ExchangeMTU(mtu int) (int, error)

	// Disconnected is closed when the link drops, locally or remotely.
	Disconnected() <-chan struct{}

	// Close tears down the link and releases the transport handle.
	// It is idempotent.
	Close() error
}

// Service is a node of the capability snapshot.
type Service interface {
	UUID() string
	KnownName() string
	Primary() bool
	Characteristics() []Characteristic
}

// Characteristic is a readable/writable/notifiable data point.
type Characteristic interface {
	UUID() string
	KnownName() string
	Properties() Properties

	Read() ([]byte, error)
	Write(data []byte, withResponse bool) error
}
