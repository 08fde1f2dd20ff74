package goble

import (
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/attunepos/poslink/internal/device"
)

// Connection is a live go-ble link plus the capability snapshot taken at
// discovery time. The snapshot preserves discovery order and is never
// refreshed after connect.
type Connection struct {
	client  ble.Client
	address string
	logger  *logrus.Logger

	services *orderedmap.OrderedMap[string, *Service]

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// newConnection discovers the remote profile and builds the snapshot.
func newConnection(client ble.Client, address string, logger *logrus.Logger) (*Connection, error) {
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		return nil, &device.StackError{Op: "discover services", Cause: device.NormalizeError(err)}
	}

	conn := &Connection{
		client:   client,
		address:  address,
		logger:   logger,
		services: orderedmap.New[string, *Service](),
	}

	for _, bleSvc := range profile.Services {
		svcUUID := device.NormalizeUUID(bleSvc.UUID.String())
		logger.WithField("service_uuid", svcUUID).Debug("Found service")

		svc, ok := conn.services.Get(svcUUID)
		if !ok {
			svc = newService(bleSvc)
			conn.services.Set(svcUUID, svc)
		}

		for _, bleChar := range bleSvc.Characteristics {
			charUUID := device.NormalizeUUID(bleChar.UUID.String())
			logger.WithFields(logrus.Fields{
				"service_uuid": svcUUID,
				"char_uuid":    charUUID,
			}).Debug("Found characteristic")
			svc.addCharacteristic(newCharacteristic(bleChar, conn))
		}
	}

	return conn, nil
}

func (c *Connection) Address() string { return c.address }

// Services returns the capability snapshot in discovery order.
func (c *Connection) Services() []device.Service {
	result := make([]device.Service, 0, c.services.Len())
	for pair := c.services.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}
	return result
}

// GetCharacteristic resolves a characteristic by (service, uuid) against
// the snapshot. Both UUIDs are normalized before lookup.
func (c *Connection) GetCharacteristic(serviceUUID, charUUID string) (device.Characteristic, error) {
	svcKey := device.NormalizeUUID(serviceUUID)
	svc, ok := c.services.Get(svcKey)
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{serviceUUID}}
	}

	char, ok := svc.characteristic(device.NormalizeUUID(charUUID))
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{serviceUUID, charUUID}}
	}
	return char, nil
}

// Subscribe enables notifications (or indications when the characteristic
// only supports those) and delivers value changes to handler on the
// stack's callback goroutine.
func (c *Connection) Subscribe(serviceUUID, charUUID string, handler func(data []byte)) error {
	char, err := c.GetCharacteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}
	bleChar := char.(*Characteristic)

	props := char.Properties()
	if !props.CanNotify() {
		return fmt.Errorf("characteristic %q does not support notifications", charUUID)
	}

	// Prefer notify; fall back to indicate-only characteristics.
	indicate := props&device.PropNotify == 0

	if err := c.client.Subscribe(bleChar.raw, indicate, func(data []byte) {
		handler(data)
	}); err != nil {
		return &device.StackError{Op: "subscribe", Cause: device.NormalizeError(err)}
	}

	c.logger.WithFields(logrus.Fields{
		"service_uuid": serviceUUID,
		"char_uuid":    charUUID,
		"indicate":     indicate,
	}).Info("Subscribed to characteristic notifications")
	return nil
}

// ExchangeMTU issues a single best-effort transfer-unit request.
func (c *Connection) ExchangeMTU(mtu int) (int, error) {
	negotiated, err := c.client.ExchangeMTU(mtu)
	if err != nil {
		return 0, &device.StackError{Op: "exchange MTU", Cause: device.NormalizeError(err)}
	}
	return negotiated, nil
}

// Disconnected is closed when the link drops, locally or remotely.
func (c *Connection) Disconnected() <-chan struct{} {
	return c.client.Disconnected()
}

// Close tears down the link and releases the transport handle. Safe to
// call multiple times; only the first call reaches the stack.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.client.CancelConnection()
		if c.closeErr != nil {
			c.logger.WithError(c.closeErr).Warn("BLE device disconnected with errors")
		} else {
			c.logger.Info("BLE device disconnected")
		}
	})
	return c.closeErr
}
