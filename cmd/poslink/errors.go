package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/attunepos/poslink/internal/device"
	"github.com/attunepos/poslink/internal/payment"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the controller link dropped mid-operation.
	// This is distinct from device.ErrNotConnected, which indicates an attempt
	// to use a controller that was never connected or already disconnected.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError turns taxonomy errors into operator-facing messages.
// Unknown errors pass through unchanged.
func FormatUserError(err error) string {
	var permErr *device.PermissionError
	if errors.As(err, &permErr) {
		return fmt.Sprintf("missing Bluetooth permissions: %s (grant them or run with elevated capabilities)",
			strings.Join(permErr.Missing, ", "))
	}

	if errors.Is(err, device.ErrAdapterDisabled) || errors.Is(err, device.ErrBluetoothOff) {
		return "Bluetooth adapter is off or missing - power it on and retry"
	}

	var inProgress *device.InProgressError
	if errors.As(err, &inProgress) {
		return fmt.Sprintf("another %s operation is still running - wait for it to finish", inProgress.Category)
	}

	var notFound *device.NotFoundError
	if errors.As(err, &notFound) {
		return notFound.Error()
	}

	if errors.Is(err, device.ErrNotConnected) {
		return "no controller connected - connect first"
	}
	if errors.Is(err, device.ErrAlreadyConnected) {
		return "a controller is already connected - disconnect first"
	}
	if errors.Is(err, ErrConnectionLost) {
		return "controller link dropped - reconnect and retry"
	}
	if errors.Is(err, payment.ErrNoCredentials) {
		return "payment credentials missing - set client_id, client_name and api_key in the config"
	}

	var terminalErr *payment.TerminalError
	if errors.As(err, &terminalErr) {
		return terminalErr.Error()
	}

	return err.Error()
}
