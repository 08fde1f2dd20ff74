// Package testutils provides in-memory BLE doubles for exercising the
// bridge and façade without hardware.
package testutils

import (
	"context"
	"sync"

	"github.com/attunepos/poslink/internal/device"
)

// FakeAdvertisement is a static advertisement report.
type FakeAdvertisement struct {
	Address     string
	Name        string
	Rssi        int
	TxPower     int
	Mfg         []byte
	ServiceIDs  []string
	CanConnect  bool
}

func (a *FakeAdvertisement) LocalName() string        { return a.Name }
func (a *FakeAdvertisement) ManufacturerData() []byte { return a.Mfg }
func (a *FakeAdvertisement) Services() []string       { return device.NormalizeUUIDs(a.ServiceIDs) }
func (a *FakeAdvertisement) TxPowerLevel() int        { return a.TxPower }
func (a *FakeAdvertisement) RSSI() int                { return a.Rssi }
func (a *FakeAdvertisement) Addr() string             { return a.Address }
func (a *FakeAdvertisement) Connectable() bool        { return a.CanConnect }

// FakeCharacteristic is a scripted characteristic. Read and Write can be
// held open via the Hold channels to provoke operation overlap in tests.
type FakeCharacteristic struct {
	ID    string
	Name  string
	Props device.Properties

	ReadValue []byte
	ReadErr   error

	// ReadStarted, when set, is closed once the first Read begins; ReadHold,
	// when set, blocks Read until closed. Together they let a test pin an
	// operation mid-flight.
	ReadStarted chan struct{}
	ReadHold    chan struct{}

	readOnce sync.Once

	WriteErr  error
	WriteHold chan struct{}

	mu      sync.Mutex
	written [][]byte

	notifyMu sync.Mutex
	notify   func(data []byte)
}

func (c *FakeCharacteristic) UUID() string                  { return device.NormalizeUUID(c.ID) }
func (c *FakeCharacteristic) KnownName() string             { return c.Name }
func (c *FakeCharacteristic) Properties() device.Properties { return c.Props }

func (c *FakeCharacteristic) Read() ([]byte, error) {
	if c.ReadStarted != nil {
		c.readOnce.Do(func() { close(c.ReadStarted) })
	}
	if c.ReadHold != nil {
		<-c.ReadHold
	}
	if c.ReadErr != nil {
		return nil, c.ReadErr
	}
	return c.ReadValue, nil
}

func (c *FakeCharacteristic) Write(data []byte, withResponse bool) error {
	if c.WriteHold != nil {
		<-c.WriteHold
	}
	if c.WriteErr != nil {
		return c.WriteErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.written = append(c.written, buf)
	return nil
}

// Written returns every payload written so far, in order.
func (c *FakeCharacteristic) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// Push delivers a value-change notification to the subscribed handler.
// No-op when nothing subscribed.
func (c *FakeCharacteristic) Push(data []byte) {
	c.notifyMu.Lock()
	h := c.notify
	c.notifyMu.Unlock()
	if h != nil {
		h(data)
	}
}

func (c *FakeCharacteristic) subscribe(handler func(data []byte)) {
	c.notifyMu.Lock()
	c.notify = handler
	c.notifyMu.Unlock()
}

// FakeService groups fake characteristics under one UUID.
type FakeService struct {
	ID    string
	Name  string
	Chars []*FakeCharacteristic
}

func (s *FakeService) UUID() string      { return device.NormalizeUUID(s.ID) }
func (s *FakeService) KnownName() string { return s.Name }
func (s *FakeService) Primary() bool     { return true }

func (s *FakeService) Characteristics() []device.Characteristic {
	out := make([]device.Characteristic, len(s.Chars))
	for i, c := range s.Chars {
		out[i] = c
	}
	return out
}

// FakePeripheral is a connected device double.
type FakePeripheral struct {
	Addr  string
	Svcs  []*FakeService
	MTU   int
	MTUEr error

	SubscribeErr error

	disconnected chan struct{}
	closeOnce    sync.Once
}

// NewFakePeripheral builds a connectable peripheral with the given services.
func NewFakePeripheral(addr string, svcs ...*FakeService) *FakePeripheral {
	return &FakePeripheral{
		Addr:         addr,
		Svcs:         svcs,
		disconnected: make(chan struct{}),
	}
}

func (p *FakePeripheral) Address() string { return p.Addr }

func (p *FakePeripheral) Services() []device.Service {
	out := make([]device.Service, len(p.Svcs))
	for i, s := range p.Svcs {
		out[i] = s
	}
	return out
}

func (p *FakePeripheral) findCharacteristic(serviceUUID, charUUID string) (*FakeCharacteristic, error) {
	su := device.NormalizeUUID(serviceUUID)
	cu := device.NormalizeUUID(charUUID)
	for _, s := range p.Svcs {
		if s.UUID() != su {
			continue
		}
		for _, c := range s.Chars {
			if c.UUID() == cu {
				return c, nil
			}
		}
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{su, cu}}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{su}}
}

func (p *FakePeripheral) GetCharacteristic(serviceUUID, charUUID string) (device.Characteristic, error) {
	return p.findCharacteristic(serviceUUID, charUUID)
}

func (p *FakePeripheral) Subscribe(serviceUUID, charUUID string, handler func(data []byte)) error {
	if p.SubscribeErr != nil {
		return p.SubscribeErr
	}
	c, err := p.findCharacteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}
	c.subscribe(handler)
	return nil
}

func (p *FakePeripheral) ExchangeMTU(mtu int) (int, error) {
	if p.MTUEr != nil {
		return 0, p.MTUEr
	}
	if p.MTU > 0 && p.MTU < mtu {
		return p.MTU, nil
	}
	return mtu, nil
}

func (p *FakePeripheral) Disconnected() <-chan struct{} { return p.disconnected }

// DropLink simulates a remote-initiated disconnect.
func (p *FakePeripheral) DropLink() {
	p.closeOnce.Do(func() { close(p.disconnected) })
}

func (p *FakePeripheral) Close() error {
	p.DropLink()
	return nil
}

// FakeTransport is a scripted device.Transport. Scan replays the configured
// advertisements (repeating each Repeats+1 times) then blocks until the
// context ends, mirroring a real radio's behavior.
type FakeTransport struct {
	Advertisements []*FakeAdvertisement
	Repeats        int

	// ScanStarted, when set, is closed once the first Scan begins.
	ScanStarted chan struct{}
	scanOnce    sync.Once

	Peripherals map[string]*FakePeripheral
	DialErr     error

	// DialStarted, when set, is closed once the first Dial begins; DialHold,
	// when set, blocks Dial until closed.
	DialStarted chan struct{}
	DialHold    chan struct{}

	dialOnce sync.Once
	mu       sync.Mutex
	dials    []string
}

func (t *FakeTransport) Scan(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
	if t.ScanStarted != nil {
		t.scanOnce.Do(func() { close(t.ScanStarted) })
	}
	for i := 0; i <= t.Repeats; i++ {
		for _, adv := range t.Advertisements {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			handler(adv)
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (t *FakeTransport) Dial(ctx context.Context, address string) (device.Connection, error) {
	if t.DialStarted != nil {
		t.dialOnce.Do(func() { close(t.DialStarted) })
	}
	if t.DialHold != nil {
		select {
		case <-t.DialHold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	t.mu.Lock()
	t.dials = append(t.dials, address)
	t.mu.Unlock()

	if t.DialErr != nil {
		return nil, t.DialErr
	}
	p, ok := t.Peripherals[address]
	if !ok {
		return nil, &device.NotFoundError{Resource: "device", UUIDs: []string{address}}
	}
	return p, nil
}

// Dials returns the addresses dialed so far, in order.
func (t *FakeTransport) Dials() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.dials))
	copy(out, t.dials)
	return out
}
