package bridge

import (
	"sync/atomic"

	"github.com/attunepos/poslink/internal/device"
)

// Category names an operation class with its own pending slot.
type Category string

const (
	CategoryScan    Category = "scan"
	CategoryConnect Category = "connect"
	CategoryRead    Category = "read"
	CategoryWrite   Category = "write"
)

// slot tracks at most one in-flight call for a category. A second caller
// is rejected outright, never queued; the occupant's eventual resolution
// is unaffected by rejected calls.
type slot struct {
	busy atomic.Bool
}

// acquire claims the slot or returns an InProgressError for the category.
func (s *slot) acquire(c Category) error {
	if !s.busy.CompareAndSwap(false, true) {
		return &device.InProgressError{Category: string(c)}
	}
	return nil
}

func (s *slot) release() {
	s.busy.Store(false)
}

// slotSet holds the four per-category slots.
type slotSet struct {
	scan    slot
	connect slot
	read    slot
	write   slot
}

func (ss *slotSet) get(c Category) *slot {
	switch c {
	case CategoryScan:
		return &ss.scan
	case CategoryConnect:
		return &ss.connect
	case CategoryRead:
		return &ss.read
	case CategoryWrite:
		return &ss.write
	default:
		panic("bridge: unknown operation category " + string(c))
	}
}
