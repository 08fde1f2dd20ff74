// Package goble implements the device interfaces on top of go-ble,
// covering the linux (HCI) and darwin (CoreBluetooth) stacks. The
// DeviceFactory variable is the seam tests use to substitute mocks.
package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/attunepos/poslink/internal/device"
)

// Transport is the go-ble backed device.Transport.
type Transport struct {
	logger *logrus.Logger
}

// NewTransport creates a Transport logging through logger.
func NewTransport(logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{logger: logger}
}

// Scan runs BLE discovery until ctx expires, delivering each received
// advertisement to handler. Context expiry is a normal end of the scan
// window, not an error.
func (t *Transport) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	dev, err := DeviceFactory()
	if err != nil {
		return device.NormalizeError(err)
	}

	err = dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	})
	if err != nil {
		return device.NormalizeError(err)
	}
	return nil
}

// Dial connects to the peripheral at address and discovers its capability
// tree before returning.
func (t *Transport) Dial(ctx context.Context, address string) (device.Connection, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, device.NormalizeError(err)
	}

	t.logger.WithField("address", address).Info("Connecting to BLE device...")

	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, device.NormalizeError(err)
	}

	conn, err := newConnection(client, address, t.logger)
	if err != nil {
		client.CancelConnection()
		return nil, err
	}

	t.logger.WithFields(logrus.Fields{
		"address":  address,
		"services": len(conn.Services()),
	}).Info("BLE device connected")
	return conn, nil
}
