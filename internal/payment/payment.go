// Package payment wraps a card terminal SDK behind a synchronous gateway.
// The SDK surface is callback-shaped; the gateway translates each call into
// a blocking request/response pair and enforces one active call at a time.
package payment

import (
	"context"
	"fmt"
)

// StatusVoidApproved is the only terminal status that counts as a
// successful void. Anything else surfaces the terminal's error text.
const StatusVoidApproved = 222

// Credentials identify the merchant against the terminal.
type Credentials struct {
	ClientID   string
	ClientName string
	APIKey     string
}

// Complete reports whether every credential field is present.
func (c Credentials) Complete() bool {
	return c.ClientID != "" && c.ClientName != "" && c.APIKey != ""
}

// SaleRequest starts a card payment. Amount is in minor currency units.
type SaleRequest struct {
	Amount  int64  `json:"amount"`
	OrderID string `json:"orderId,omitempty"`
}

// VoidRequest cancels a prior transaction on the terminal.
type VoidRequest struct {
	TxID     string `json:"txId"`
	CardType string `json:"cardType"`
}

// StatusRequest queries the terminal for a transaction's state.
type StatusRequest struct {
	TxID     string `json:"txId"`
	CardType string `json:"cardType"`
}

// Result is the terminal's answer to a sale or void.
type Result struct {
	Status       int    `json:"status"`
	Message      string `json:"message"`
	TxID         string `json:"txId"`
	CardType     string `json:"cardType"`
	ApprovalCode string `json:"approvalCode,omitempty"`
}

// TxStatus describes a transaction's current state on the terminal.
type TxStatus struct {
	Status  int    `json:"status"`
	State   string `json:"state"`
	Message string `json:"message"`
}

// Profile is one merchant profile configured on the terminal.
type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ResultListener receives the outcome of a sale or void. Exactly one of
// the two methods is invoked, exactly once.
type ResultListener interface {
	OnResult(r Result)
	OnError(status int, message string)
}

// StatusListener receives the outcome of a status query.
type StatusListener interface {
	OnStatus(s TxStatus)
	OnError(status int, message string)
}

// ProfileListener receives the outcome of a profile list request.
type ProfileListener interface {
	OnProfiles(profiles []Profile)
	OnError(status int, message string)
}

// Client is the terminal SDK surface. Implementations deliver results via
// the listener, possibly from another goroutine; they must respect ctx
// cancellation by reporting an error.
type Client interface {
	StartPayment(ctx context.Context, req SaleRequest, l ResultListener)
	RequestVoid(ctx context.Context, req VoidRequest, l ResultListener)
	RequestStatus(ctx context.Context, req StatusRequest, l StatusListener)
	RequestProfiles(ctx context.Context, l ProfileListener)
}

// TerminalError carries a rejection straight from the terminal.
type TerminalError struct {
	Status  int
	Message string
}

func (e *TerminalError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("terminal rejected with status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("terminal rejected with status %d", e.Status)
}

// ErrNoCredentials fails every gateway call until credentials are set.
var ErrNoCredentials = fmt.Errorf("payment credentials are not configured")
