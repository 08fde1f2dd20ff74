package device

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "device", "service", "characteristic"
	UUIDs    []string // One or more identifiers (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	// Characteristics live inside services; the parent identifier comes first.
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	AdapterDisabled  ConnectionState = "adapter_disabled"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrAdapterDisabled  = &ConnectionError{State: AdapterDisabled}
)

// InProgressError is returned when an operation category already has a
// pending call. The category's slot holds at most one caller; a second
// call is rejected outright, never queued.
type InProgressError struct {
	Category string // "scan", "connect", "read", "write"
}

func (e *InProgressError) Error() string {
	return fmt.Sprintf("%s already in progress", e.Category)
}

// Is allows errors.Is comparison against the ErrInProgress sentinel
// regardless of category.
func (e *InProgressError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*InProgressError)
	if !ok {
		return false
	}
	return t.Category == "" || t.Category == e.Category
}

// ErrInProgress matches any InProgressError via errors.Is.
var ErrInProgress = &InProgressError{}

// PermissionError reports missing platform permission grants.
type PermissionError struct {
	Missing []string
}

func (e *PermissionError) Error() string {
	if len(e.Missing) == 0 {
		return "permission denied"
	}
	return fmt.Sprintf("permission denied: missing %s", strings.Join(e.Missing, ", "))
}

// Is allows errors.Is comparison against the ErrPermissionDenied sentinel.
func (e *PermissionError) Is(target error) bool {
	_, ok := target.(*PermissionError)
	return e != nil && ok
}

// ErrPermissionDenied matches any PermissionError via errors.Is.
var ErrPermissionDenied = &PermissionError{}

// StackError wraps a failure reported by the underlying Bluetooth stack,
// keeping the raw status code when the stack provides one.
type StackError struct {
	Op    string
	Code  int // raw platform status code, 0 when unavailable
	Cause error
}

func (e *StackError) Error() string {
	switch {
	case e.Cause != nil && e.Code != 0:
		return fmt.Sprintf("%s failed with status %d: %v", e.Op, e.Code, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Cause)
	default:
		return fmt.Sprintf("%s failed with status %d", e.Op, e.Code)
	}
}

func (e *StackError) Unwrap() error {
	return e.Cause
}

// ErrBluetoothOff indicates the adapter is present but powered off.
var ErrBluetoothOff = errors.New("bluetooth is turned off")

// NormalizeError maps known platform stack error strings to structured
// error types. It ensures consistent handling even if the upstream stack
// changes messages slightly. Returns wrapped errors to preserve context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "central manager has invalid state") && containsIgnoreCase(msg, "have=4"):
		// Darwin CoreBluetooth: state 4 is PoweredOff
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "operation not permitted"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	default:
		return err
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}
