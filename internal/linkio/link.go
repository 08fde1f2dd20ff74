package linkio

import (
	"bytes"
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/attunepos/poslink/pkg/poslink"
)

// Port is the controller side of a link. *poslink.Session satisfies it.
type Port interface {
	SendCommand(ctx context.Context, cmd string) error
	AddListener(l poslink.Listener) (remove func())
}

// Console is the tool side of a link. *Terminal satisfies it.
type Console interface {
	Write(data []byte) (int, error)
	OnData(fn ReadFunc)
	Close() error
}

// Link pumps between a console and a controller port. Complete lines typed
// into the console become controller commands; values pushed by the
// controller appear on the console one per line.
type Link struct {
	port    Port
	console Console
	logger  *logrus.Logger

	mu      sync.Mutex
	pending []byte

	remove    func()
	closeOnce sync.Once
}

// NewLink wires the console to the port and starts pumping. The port must
// already be connected with auto-push enabled.
func NewLink(ctx context.Context, port Port, console Console, logger *logrus.Logger) *Link {
	if logger == nil {
		logger = logrus.New()
	}
	l := &Link{
		port:    port,
		console: console,
		logger:  logger,
	}

	l.remove = port.AddListener(func(value []byte) {
		line := make([]byte, 0, len(value)+1)
		line = append(line, value...)
		if len(line) == 0 || line[len(line)-1] != '\n' {
			line = append(line, '\n')
		}
		if _, err := console.Write(line); err != nil {
			l.logger.WithError(err).Warn("Dropping controller value, console closed")
		}
	})

	console.OnData(func(data []byte) {
		l.consume(ctx, data)
	})
	return l
}

// consume assembles console bytes into lines and sends each as a command.
// A bare CR or LF both end a line; empty lines are ignored.
func (l *Link) consume(ctx context.Context, data []byte) {
	l.mu.Lock()
	l.pending = append(l.pending, data...)
	var lines [][]byte
	for {
		idx := bytes.IndexAny(l.pending, "\r\n")
		if idx < 0 {
			break
		}
		line := l.pending[:idx]
		l.pending = l.pending[idx+1:]
		if len(line) > 0 {
			lines = append(lines, append([]byte(nil), line...))
		}
	}
	l.mu.Unlock()

	for _, line := range lines {
		if err := l.port.SendCommand(ctx, string(line)); err != nil {
			l.logger.WithError(err).WithField("command", string(line)).Warn("Command not delivered")
		}
	}
}

// Close detaches the link from both sides and closes the console.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.console.OnData(nil)
		if l.remove != nil {
			l.remove()
		}
		err = l.console.Close()
	})
	return err
}
