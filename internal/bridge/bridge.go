// Package bridge is the BLE link core: it serializes one in-flight
// hardware operation per category (scan, connect, read, write) and
// translates asynchronous stack callbacks into single-shot completions
// plus an event stream.
//
// The two pieces of behavior the package owns outright are the
// single-pending-operation-per-category discipline and the platform
// permission gate; everything else is a pass-through to the transport.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/attunepos/poslink/internal/device"
	"github.com/attunepos/poslink/internal/platform"
	"github.com/attunepos/poslink/internal/ringchan"
)

const (
	// DefaultScanTimeout bounds a scan window when the caller gives none.
	DefaultScanTimeout = 10 * time.Second

	// MTU bounds come from the ATT spec: 23 is the unnegotiated minimum,
	// 517 the largest request the stack accepts.
	MinMTU = 23
	MaxMTU = 517

	// eventBuffer bounds the async event channel. Overwrite-oldest: a
	// slow consumer loses old events, hardware callbacks never block.
	eventBuffer = 100
)

// ScanOptions configures one scan window.
type ScanOptions struct {
	// Timeout is the fixed scan duration. Zero means DefaultScanTimeout.
	Timeout time.Duration

	// Name keeps only devices advertising this local name. Empty keeps all.
	Name string
}

// ConnectResult reports a completed connect, after capability discovery.
type ConnectResult struct {
	Address  string
	Services int
}

// Bridge serializes BLE operations against a single peripheral.
type Bridge struct {
	transport device.Transport
	authority platform.Authority
	logger    *logrus.Logger

	slots  slotSet
	events *ringchan.RingChannel[Event]

	// found is the scan-window dedup map, keyed by device address.
	// Recreated at every scan start.
	foundMu sync.RWMutex
	found   *hashmap.Map[string, *DiscoveredDevice]

	scanMu     sync.Mutex
	scanCancel context.CancelFunc

	connMu sync.RWMutex
	conn   device.Connection
}

// New creates a Bridge over the given transport and permission authority.
func New(transport device.Transport, authority platform.Authority, logger *logrus.Logger) *Bridge {
	if logger == nil {
		logger = logrus.New()
	}
	return &Bridge{
		transport: transport,
		authority: authority,
		logger:    logger,
		events:    ringchan.New[Event](eventBuffer),
		found:     hashmap.New[string, *DiscoveredDevice](),
	}
}

// Events returns the asynchronous notification stream. Events flow
// independently of any pending operation slot.
func (b *Bridge) Events() <-chan Event {
	return b.events.C()
}

// Enabled reports whether the Bluetooth adapter is present and powered on.
func (b *Bridge) Enabled() (bool, error) {
	return b.authority.AdapterPowered()
}

// checkPermissions fails fast when the authority is missing grants for its
// platform generation.
func (b *Bridge) checkPermissions(op string) error {
	if missing := platform.Missing(b.authority); len(missing) > 0 {
		b.logger.WithFields(logrus.Fields{
			"op":         op,
			"generation": b.authority.Generation().String(),
			"missing":    missing,
		}).Warn("Operation blocked by missing permissions")
		return fmt.Errorf("%s: %w", op, &device.PermissionError{Missing: missing})
	}
	return nil
}

// checkAdapter fails fast when the adapter is absent or powered off.
func (b *Bridge) checkAdapter(op string) error {
	powered, err := b.authority.AdapterPowered()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !powered {
		return fmt.Errorf("%s: %w", op, device.ErrAdapterDisabled)
	}
	return nil
}

// Scan runs one scan window and returns the deduplicated results sorted by
// address. Results of a previous window are discarded at start. Each new
// address additionally emits an EventDeviceFound.
func (b *Bridge) Scan(ctx context.Context, opts ScanOptions) ([]DiscoveredDevice, error) {
	if err := b.checkPermissions("scan"); err != nil {
		return nil, err
	}
	if err := b.checkAdapter("scan"); err != nil {
		return nil, err
	}
	if err := b.slots.get(CategoryScan).acquire(CategoryScan); err != nil {
		return nil, err
	}
	defer b.slots.get(CategoryScan).release()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}

	// New window: clear previous discoveries.
	b.foundMu.Lock()
	b.found = hashmap.New[string, *DiscoveredDevice]()
	window := b.found
	b.foundMu.Unlock()

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b.scanMu.Lock()
	b.scanCancel = cancel
	b.scanMu.Unlock()
	defer func() {
		b.scanMu.Lock()
		b.scanCancel = nil
		b.scanMu.Unlock()
	}()

	b.logger.WithField("timeout", timeout).Info("Starting BLE scan")

	err := b.transport.Scan(scanCtx, false, func(adv device.Advertisement) {
		b.handleAdvertisement(window, adv, opts.Name)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, &device.StackError{Op: "scan", Cause: err}
	}

	results := b.snapshotResults(window)
	b.logger.WithField("device_count", len(results)).Info("BLE scan completed")
	return results, nil
}

// handleAdvertisement deduplicates by address within the scan window and
// emits EventDeviceFound for new addresses.
func (b *Bridge) handleAdvertisement(window *hashmap.Map[string, *DiscoveredDevice], adv device.Advertisement, nameFilter string) {
	if nameFilter != "" && adv.LocalName() != nameFilter {
		return
	}

	entry := &DiscoveredDevice{
		Address: adv.Addr(),
		Name:    adv.LocalName(),
		RSSI:    adv.RSSI(),
	}

	if _, loaded := window.GetOrInsert(adv.Addr(), entry); loaded {
		return
	}

	b.logger.WithFields(logrus.Fields{
		"address": entry.Address,
		"name":    entry.Name,
		"rssi":    entry.RSSI,
	}).Info("Discovered new device")

	b.events.ForceSend(Event{Type: EventDeviceFound, Device: entry})
}

// StopScan ends the current scan window early, if one is running, and
// returns the results collected so far. It is not slot-gated and always
// succeeds.
func (b *Bridge) StopScan() []DiscoveredDevice {
	b.scanMu.Lock()
	if b.scanCancel != nil {
		b.scanCancel()
	}
	b.scanMu.Unlock()

	b.foundMu.RLock()
	window := b.found
	b.foundMu.RUnlock()
	return b.snapshotResults(window)
}

func (b *Bridge) snapshotResults(window *hashmap.Map[string, *DiscoveredDevice]) []DiscoveredDevice {
	results := make([]DiscoveredDevice, 0, window.Len())
	window.Range(func(_ string, d *DiscoveredDevice) bool {
		results = append(results, *d)
		return true
	})
	sort.Slice(results, func(i, j int) bool { return results[i].Address < results[j].Address })
	return results
}

// Connect dials the peripheral and discovers its capability tree before
// reporting success. At most one connection exists system-wide.
func (b *Bridge) Connect(ctx context.Context, address string) (*ConnectResult, error) {
	if address == "" {
		return nil, fmt.Errorf("connect: device address is required")
	}
	if err := b.checkPermissions("connect"); err != nil {
		return nil, err
	}
	if err := b.checkAdapter("connect"); err != nil {
		return nil, err
	}
	if err := b.slots.get(CategoryConnect).acquire(CategoryConnect); err != nil {
		return nil, err
	}
	defer b.slots.get(CategoryConnect).release()

	b.connMu.Lock()
	if b.conn != nil {
		b.connMu.Unlock()
		return nil, fmt.Errorf("connect: %w", device.ErrAlreadyConnected)
	}
	b.connMu.Unlock()

	conn, err := b.transport.Dial(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("connect to %q: %w", address, err)
	}

	b.connMu.Lock()
	if b.conn != nil {
		// Lost the race against a concurrent connect that slipped between
		// the check and the dial; keep the first, drop ours.
		b.connMu.Unlock()
		conn.Close()
		return nil, fmt.Errorf("connect: %w", device.ErrAlreadyConnected)
	}
	b.conn = conn
	b.connMu.Unlock()

	go b.watchDisconnect(conn)

	return &ConnectResult{
		Address:  conn.Address(),
		Services: len(conn.Services()),
	}, nil
}

// watchDisconnect emits EventDisconnected when the link drops, whether the
// teardown was local or remote, and clears the active connection.
func (b *Bridge) watchDisconnect(conn device.Connection) {
	<-conn.Disconnected()

	b.connMu.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	b.connMu.Unlock()

	b.logger.Info("BLE link dropped")
	b.events.ForceSend(Event{Type: EventDisconnected})
}

// Disconnect tears down the active connection. Idempotent: disconnecting
// with no active connection completes without error. The transport handle
// is always released.
func (b *Bridge) Disconnect() error {
	b.connMu.Lock()
	conn := b.conn
	b.conn = nil
	b.connMu.Unlock()

	if conn == nil {
		b.logger.Debug("Disconnect with no active connection")
		return nil
	}
	return conn.Close()
}

// Connected reports whether a connection is active.
func (b *Bridge) Connected() bool {
	b.connMu.RLock()
	defer b.connMu.RUnlock()
	return b.conn != nil
}

func (b *Bridge) activeConn(op string) (device.Connection, error) {
	b.connMu.RLock()
	defer b.connMu.RUnlock()
	if b.conn == nil {
		return nil, fmt.Errorf("%s: %w", op, device.ErrNotConnected)
	}
	return b.conn, nil
}

// Read fetches the value of (serviceUUID, charUUID) from the discovered
// snapshot. Unknown identifiers fail with a NotFoundError, never silently.
func (b *Bridge) Read(ctx context.Context, serviceUUID, charUUID string) ([]byte, error) {
	if err := b.checkPermissions("read"); err != nil {
		return nil, err
	}
	conn, err := b.activeConn("read")
	if err != nil {
		return nil, err
	}
	if err := b.slots.get(CategoryRead).acquire(CategoryRead); err != nil {
		return nil, err
	}
	defer b.slots.get(CategoryRead).release()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	char, err := conn.GetCharacteristic(serviceUUID, charUUID)
	if err != nil {
		return nil, err
	}
	return char.Read()
}

// Write sends value to (serviceUUID, charUUID). The payload is opaque to
// the bridge; tagging belongs to the façade.
func (b *Bridge) Write(ctx context.Context, serviceUUID, charUUID string, value []byte, withResponse bool) error {
	if err := b.checkPermissions("write"); err != nil {
		return err
	}
	conn, err := b.activeConn("write")
	if err != nil {
		return err
	}
	if err := b.slots.get(CategoryWrite).acquire(CategoryWrite); err != nil {
		return err
	}
	defer b.slots.get(CategoryWrite).release()

	if err := ctx.Err(); err != nil {
		return err
	}

	char, err := conn.GetCharacteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}
	return char.Write(value, withResponse)
}

// EnableNotifications subscribes to (serviceUUID, charUUID); each value
// change from the peripheral is emitted as an EventValueChanged.
func (b *Bridge) EnableNotifications(serviceUUID, charUUID string) error {
	if err := b.checkPermissions("subscribe"); err != nil {
		return err
	}
	conn, err := b.activeConn("subscribe")
	if err != nil {
		return err
	}

	normalized := device.NormalizeUUID(charUUID)
	return conn.Subscribe(serviceUUID, charUUID, func(data []byte) {
		// Copy: the stack may reuse the callback buffer.
		value := make([]byte, len(data))
		copy(value, data)
		b.events.ForceSend(Event{
			Type:     EventValueChanged,
			CharUUID: normalized,
			Value:    value,
		})
	})
}

// Services returns the capability snapshot of the active connection.
func (b *Bridge) Services() ([]device.Service, error) {
	conn, err := b.activeConn("services")
	if err != nil {
		return nil, err
	}
	return conn.Services(), nil
}

// RequestMTU issues a single best-effort transfer-unit request. There is
// no fallback chunking of over-limit payloads.
func (b *Bridge) RequestMTU(mtu int) (int, error) {
	if mtu < MinMTU || mtu > MaxMTU {
		return 0, fmt.Errorf("mtu must be between %d and %d", MinMTU, MaxMTU)
	}
	conn, err := b.activeConn("request mtu")
	if err != nil {
		return 0, err
	}
	return conn.ExchangeMTU(mtu)
}
