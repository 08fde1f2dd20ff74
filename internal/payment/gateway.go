package payment

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/attunepos/poslink/internal/device"
)

// Gateway is the synchronous front of a terminal Client. One call may be
// active at a time; a second call is rejected outright, never queued, and
// never affects the first call's resolution.
type Gateway struct {
	client Client
	creds  Credentials
	logger *logrus.Logger
	txlog  *TxLog

	active atomic.Bool
}

// NewGateway wires a terminal client with merchant credentials. txlog may
// be nil to disable transaction logging.
func NewGateway(client Client, creds Credentials, txlog *TxLog, logger *logrus.Logger) *Gateway {
	if logger == nil {
		logger = logrus.New()
	}
	return &Gateway{
		client: client,
		creds:  creds,
		logger: logger,
		txlog:  txlog,
	}
}

func (g *Gateway) begin(op string) error {
	if !g.creds.Complete() {
		return fmt.Errorf("%s: %w", op, ErrNoCredentials)
	}
	if !g.active.CompareAndSwap(false, true) {
		return &device.InProgressError{Category: "payment"}
	}
	return nil
}

func (g *Gateway) end() {
	g.active.Store(false)
}

func (g *Gateway) record(level, format string, args ...interface{}) {
	if g.txlog != nil {
		g.txlog.Append(level, fmt.Sprintf(format, args...))
	}
}

// resultWaiter adapts the listener callback shape to a channel.
type resultWaiter struct {
	ch chan resultOutcome
}

type resultOutcome struct {
	result Result
	err    error
}

func newResultWaiter() *resultWaiter {
	return &resultWaiter{ch: make(chan resultOutcome, 1)}
}

func (w *resultWaiter) OnResult(r Result) {
	w.ch <- resultOutcome{result: r}
}

func (w *resultWaiter) OnError(status int, message string) {
	w.ch <- resultOutcome{err: &TerminalError{Status: status, Message: message}}
}

func (w *resultWaiter) wait(ctx context.Context) (Result, error) {
	select {
	case out := <-w.ch:
		return out.result, out.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Pay runs a card sale and blocks until the terminal answers.
func (g *Gateway) Pay(ctx context.Context, req SaleRequest) (Result, error) {
	if req.Amount <= 0 {
		return Result{}, fmt.Errorf("pay: amount must be positive, got %d", req.Amount)
	}
	if err := g.begin("pay"); err != nil {
		return Result{}, err
	}
	defer g.end()

	g.logger.WithFields(logrus.Fields{"amount": req.Amount, "order_id": req.OrderID}).Info("Starting payment")
	g.record("INFO", "payment started amount=%d order=%s", req.Amount, req.OrderID)

	w := newResultWaiter()
	g.client.StartPayment(ctx, req, w)
	result, err := w.wait(ctx)
	if err != nil {
		g.record("ERROR", "payment failed: %v", err)
		return Result{}, err
	}

	g.record("INFO", "payment approved tx=%s status=%d", result.TxID, result.Status)
	return result, nil
}

// Void cancels a transaction. The terminal approves a void only with
// status 222; any other status is surfaced as a terminal error.
func (g *Gateway) Void(ctx context.Context, req VoidRequest) (Result, error) {
	if req.TxID == "" || req.CardType == "" {
		return Result{}, fmt.Errorf("void: txID and cardType are required")
	}
	if err := g.begin("void"); err != nil {
		return Result{}, err
	}
	defer g.end()

	g.logger.WithFields(logrus.Fields{"tx_id": req.TxID, "card_type": req.CardType}).Info("Requesting void")
	g.record("INFO", "void requested tx=%s", req.TxID)

	w := newResultWaiter()
	g.client.RequestVoid(ctx, req, w)
	result, err := w.wait(ctx)
	if err != nil {
		g.record("ERROR", "void failed: %v", err)
		return Result{}, err
	}
	if result.Status != StatusVoidApproved {
		err := &TerminalError{Status: result.Status, Message: result.Message}
		g.record("ERROR", "void rejected tx=%s: %v", req.TxID, err)
		return Result{}, err
	}

	g.record("INFO", "void approved tx=%s", req.TxID)
	return result, nil
}

// Status queries a transaction's state on the terminal.
func (g *Gateway) Status(ctx context.Context, req StatusRequest) (TxStatus, error) {
	if req.TxID == "" || req.CardType == "" {
		return TxStatus{}, fmt.Errorf("status: txID and cardType are required")
	}
	if err := g.begin("status"); err != nil {
		return TxStatus{}, err
	}
	defer g.end()

	ch := make(chan statusOutcome, 1)
	g.client.RequestStatus(ctx, req, &statusWaiter{ch: ch})
	select {
	case out := <-ch:
		return out.status, out.err
	case <-ctx.Done():
		return TxStatus{}, ctx.Err()
	}
}

type statusOutcome struct {
	status TxStatus
	err    error
}

type statusWaiter struct {
	ch chan statusOutcome
}

func (w *statusWaiter) OnStatus(s TxStatus) {
	w.ch <- statusOutcome{status: s}
}

func (w *statusWaiter) OnError(status int, message string) {
	w.ch <- statusOutcome{err: &TerminalError{Status: status, Message: message}}
}

// Profiles lists the merchant profiles configured on the terminal.
func (g *Gateway) Profiles(ctx context.Context) ([]Profile, error) {
	if err := g.begin("profiles"); err != nil {
		return nil, err
	}
	defer g.end()

	ch := make(chan profileOutcome, 1)
	g.client.RequestProfiles(ctx, &profileWaiter{ch: ch})
	select {
	case out := <-ch:
		return out.profiles, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type profileOutcome struct {
	profiles []Profile
	err      error
}

type profileWaiter struct {
	ch chan profileOutcome
}

func (w *profileWaiter) OnProfiles(profiles []Profile) {
	w.ch <- profileOutcome{profiles: profiles}
}

func (w *profileWaiter) OnError(status int, message string) {
	w.ch <- profileOutcome{err: &TerminalError{Status: status, Message: message}}
}

// LogPath returns the transaction log location, empty when logging is off.
func (g *Gateway) LogPath() string {
	if g.txlog == nil {
		return ""
	}
	return g.txlog.Path()
}

// ClearLog truncates the transaction log. No-op when logging is off.
func (g *Gateway) ClearLog() error {
	if g.txlog == nil {
		return nil
	}
	return g.txlog.Clear()
}
