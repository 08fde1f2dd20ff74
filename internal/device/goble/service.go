package goble

import (
	"github.com/go-ble/ble"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/attunepos/poslink/internal/bledb"
	"github.com/attunepos/poslink/internal/device"
)

// Service is a snapshot node for a discovered GATT service.
type Service struct {
	uuid      string
	knownName string
	chars     *orderedmap.OrderedMap[string, *Characteristic]
}

func newService(svc *ble.Service) *Service {
	rawUUID := svc.UUID.String()
	return &Service{
		uuid:      device.NormalizeUUID(rawUUID),
		knownName: bledb.LookupService(rawUUID),
		chars:     orderedmap.New[string, *Characteristic](),
	}
}

func (s *Service) UUID() string      { return s.uuid }
func (s *Service) KnownName() string { return s.knownName }

// Primary is always true for go-ble snapshots: profile discovery walks
// primary services only.
func (s *Service) Primary() bool { return true }

func (s *Service) Characteristics() []device.Characteristic {
	result := make([]device.Characteristic, 0, s.chars.Len())
	for pair := s.chars.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}
	return result
}

func (s *Service) addCharacteristic(c *Characteristic) {
	if _, exists := s.chars.Get(c.uuid); !exists {
		s.chars.Set(c.uuid, c)
	}
}

func (s *Service) characteristic(normalizedUUID string) (*Characteristic, bool) {
	return s.chars.Get(normalizedUUID)
}
