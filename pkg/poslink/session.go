// Package poslink is the service façade over the BLE bridge. A Session
// talks to one point-of-sale controller: it finds the peripheral, keeps
// the selected service/characteristic pair, tags outgoing commands, and
// fans pushed values out to registered listeners.
package poslink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/attunepos/poslink/internal/bridge"
	"github.com/attunepos/poslink/internal/device"
)

// Firmware contract: these identifiers are baked into the controller and
// must match it exactly.
const (
	// DefaultServiceUUID is the controller's primary service.
	DefaultServiceUUID = "4fafc201-1fb5-459e-8fcc-c5c9c331914b"
	// DefaultCharacteristicUUID is the controller's command/data endpoint.
	DefaultCharacteristicUUID = "beb5483e-36e1-4688-b7f5-ea07361b26a8"
	// CommandPrefix tags every outgoing command so the firmware can tell
	// commands from raw data on the shared characteristic.
	CommandPrefix = "Cmd:"
)

// Listener receives values pushed by the controller.
type Listener func(value []byte)

// Options tune a Session. Zero values select the firmware defaults.
type Options struct {
	Service        string
	Characteristic string

	// ScanTimeout bounds ConnectByName's discovery phase.
	ScanTimeout time.Duration

	// MTU is requested best-effort after connect. Zero skips the request.
	MTU int
}

// Session wraps the bridge for one controller link. Concurrency discipline
// (one pending operation per category) comes entirely from the bridge.
type Session struct {
	bridge *bridge.Bridge
	logger *logrus.Logger
	opts   Options

	service string
	char    string

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int
	match     chan bridge.DiscoveredDevice
	address   string

	stop     chan struct{}
	stopOnce sync.Once
}

// NewSession builds a façade over the bridge and starts its event pump.
func NewSession(b *bridge.Bridge, opts Options, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	service := opts.Service
	if service == "" {
		service = DefaultServiceUUID
	}
	char := opts.Characteristic
	if char == "" {
		char = DefaultCharacteristicUUID
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = bridge.DefaultScanTimeout
	}

	s := &Session{
		bridge:    b,
		logger:    logger,
		opts:      opts,
		service:   service,
		char:      char,
		listeners: make(map[int]Listener),
		stop:      make(chan struct{}),
	}
	go s.pump()
	return s
}

// pump dispatches bridge events: pushed values to listeners, discoveries to
// a waiting ConnectByName, disconnects to session state.
func (s *Session) pump() {
	events := s.bridge.Events()
	for {
		select {
		case <-s.stop:
			return
		case ev := <-events:
			switch ev.Type {
			case bridge.EventValueChanged:
				s.dispatch(ev.Value)
			case bridge.EventDeviceFound:
				s.mu.Lock()
				match := s.match
				s.mu.Unlock()
				if match != nil && ev.Device != nil {
					select {
					case match <- *ev.Device:
					default:
					}
				}
			case bridge.EventDisconnected:
				s.mu.Lock()
				s.address = ""
				s.mu.Unlock()
				s.logger.Info("Controller link dropped")
			}
		}
	}
}

func (s *Session) dispatch(value []byte) {
	s.mu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(value)
	}
}

type scanOutcome struct {
	results []bridge.DiscoveredDevice
	err     error
}

// ConnectByName scans for a controller advertising name and connects to
// the first match. The scan ends as soon as a match shows up; when the
// window closes without one, the device is reported as not found.
func (s *Session) ConnectByName(ctx context.Context, name string) (*bridge.ConnectResult, error) {
	if name == "" {
		return nil, fmt.Errorf("connect by name: name is required")
	}

	match := make(chan bridge.DiscoveredDevice, 1)
	s.mu.Lock()
	s.match = match
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.match = nil
		s.mu.Unlock()
	}()

	scanDone := make(chan scanOutcome, 1)
	go func() {
		results, err := s.bridge.Scan(ctx, bridge.ScanOptions{Timeout: s.opts.ScanTimeout, Name: name})
		scanDone <- scanOutcome{results: results, err: err}
	}()

	select {
	case dev := <-match:
		s.bridge.StopScan()
		<-scanDone
		return s.ConnectByAddress(ctx, dev.Address)
	case out := <-scanDone:
		if out.err != nil {
			return nil, out.err
		}
		if len(out.results) == 0 {
			return nil, &device.NotFoundError{Resource: "device", UUIDs: []string{name}}
		}
		return s.ConnectByAddress(ctx, out.results[0].Address)
	case <-ctx.Done():
		s.bridge.StopScan()
		<-scanDone
		return nil, ctx.Err()
	}
}

// ConnectByAddress connects directly and requests the configured transfer
// unit. The MTU request is best-effort and never fails the connect.
func (s *Session) ConnectByAddress(ctx context.Context, address string) (*bridge.ConnectResult, error) {
	result, err := s.bridge.Connect(ctx, address)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.address = result.Address
	s.mu.Unlock()

	if s.opts.MTU > 0 {
		if granted, err := s.bridge.RequestMTU(s.opts.MTU); err != nil {
			s.logger.WithError(err).Warn("MTU request failed, continuing with stack default")
		} else {
			s.logger.WithField("mtu", granted).Debug("MTU negotiated")
		}
	}
	return result, nil
}

// SendCommand tags cmd with the command prefix and writes it to the
// selected characteristic. The payload is plain UTF-8, no framing.
func (s *Session) SendCommand(ctx context.Context, cmd string) error {
	if cmd == "" {
		return fmt.Errorf("send command: command is required")
	}
	return s.bridge.Write(ctx, s.service, s.char, []byte(CommandPrefix+cmd), true)
}

// SendData writes raw bytes to the selected characteristic, untagged.
func (s *Session) SendData(ctx context.Context, data []byte) error {
	return s.bridge.Write(ctx, s.service, s.char, data, true)
}

// ReadValue reads the selected characteristic's current value.
func (s *Session) ReadValue(ctx context.Context) ([]byte, error) {
	return s.bridge.Read(ctx, s.service, s.char)
}

// EnableAutoPush subscribes to the selected characteristic; pushed values
// reach every registered listener.
func (s *Session) EnableAutoPush() error {
	return s.bridge.EnableNotifications(s.service, s.char)
}

// AddListener registers a value listener and returns its remover.
func (s *Session) AddListener(l Listener) (remove func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Services exposes the connected controller's capability tree.
func (s *Session) Services() ([]device.Service, error) {
	return s.bridge.Services()
}

// Address returns the connected controller's address, empty when offline.
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// Connected reports whether the controller link is up.
func (s *Session) Connected() bool {
	return s.bridge.Connected()
}

// Close tears the link down and stops the event pump. Idempotent.
func (s *Session) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return s.bridge.Disconnect()
}
