package device

import "strings"

// Properties is the GATT characteristic property bitmask as defined by the
// Bluetooth Core spec (Vol 3, Part G, 3.3.1.1).
type Properties uint8

const (
	PropBroadcast            Properties = 1 << iota // 0x01
	PropRead                                        // 0x02
	PropWriteWithoutResponse                        // 0x04
	PropWrite                                       // 0x08
	PropNotify                                      // 0x10
	PropIndicate                                    // 0x20
	PropSignedWrite                                 // 0x40
	PropExtended                                    // 0x80
)

func (p Properties) CanRead() bool  { return p&PropRead != 0 }
func (p Properties) CanWrite() bool { return p&(PropWrite|PropWriteWithoutResponse) != 0 }

// CanNotify reports whether the peripheral can push value changes, via
// either notification or indication.
func (p Properties) CanNotify() bool { return p&(PropNotify|PropIndicate) != 0 }

var propertyNames = []struct {
	bit  Properties
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteWithoutResponse, "write-without-response"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
	{PropSignedWrite, "signed-write"},
	{PropExtended, "extended"},
}

func (p Properties) String() string {
	var names []string
	for _, pn := range propertyNames {
		if p&pn.bit != 0 {
			names = append(names, pn.name)
		}
	}
	return strings.Join(names, "|")
}
