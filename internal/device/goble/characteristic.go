package goble

import (
	"github.com/go-ble/ble"

	"github.com/attunepos/poslink/internal/bledb"
	"github.com/attunepos/poslink/internal/device"
)

// Characteristic is a snapshot node holding the live go-ble handle for
// read/write operations.
type Characteristic struct {
	uuid      string
	knownName string
	props     device.Properties
	raw       *ble.Characteristic
	conn      *Connection
}

func newCharacteristic(c *ble.Characteristic, conn *Connection) *Characteristic {
	rawUUID := c.UUID.String()
	return &Characteristic{
		uuid:      device.NormalizeUUID(rawUUID),
		knownName: bledb.LookupCharacteristic(rawUUID),
		props:     device.Properties(c.Property),
		raw:       c,
		conn:      conn,
	}
}

func (c *Characteristic) UUID() string                  { return c.uuid }
func (c *Characteristic) KnownName() string             { return c.knownName }
func (c *Characteristic) Properties() device.Properties { return c.props }

// Read fetches the current value from the device.
func (c *Characteristic) Read() ([]byte, error) {
	data, err := c.conn.client.ReadCharacteristic(c.raw)
	if err != nil {
		return nil, &device.StackError{Op: "read", Cause: device.NormalizeError(err)}
	}
	return data, nil
}

// Write sends data to the device. Writes are serialized per connection:
// the ATT layer allows one outstanding request at a time.
func (c *Characteristic) Write(data []byte, withResponse bool) error {
	c.conn.writeMu.Lock()
	defer c.conn.writeMu.Unlock()

	if err := c.conn.client.WriteCharacteristic(c.raw, data, !withResponse); err != nil {
		return &device.StackError{Op: "write", Cause: device.NormalizeError(err)}
	}
	return nil
}
