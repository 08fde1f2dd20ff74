// Package linkio exposes the connected controller as a pseudo-terminal so
// serial-oriented tools can drive it. A Terminal owns the PTY pair and its
// buffered pump loops; a Link bridges the terminal to a controller session.
package linkio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

const (
	defaultBufferCap = 8192
	pollTimeoutMs    = 50
	chunkSize        = 4096
)

// ReadFunc receives bytes the external tool wrote to the terminal. Called
// from a background goroutine; the slice is only valid during the call.
type ReadFunc func(data []byte)

// Terminal is a raw-mode PTY pair with non-blocking buffered I/O on the
// master side. Writes queue into a ring buffer and the oldest bytes are
// dropped on overflow, so a stalled tool never blocks the radio side.
type Terminal struct {
	logger *logrus.Logger

	master *os.File
	slave  *os.File
	name   string

	outBuf *ringbuffer.RingBuffer

	onData atomic.Value

	done   chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool

	droppedOut atomic.Uint64
}

// NewTerminal opens a PTY pair in raw mode and starts the pump loops.
func NewTerminal(logger *logrus.Logger) (*Terminal, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("open pty: %w", err)
	}
	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		master.Close()
		slave.Close()
		return nil, fmt.Errorf("set %s raw: %w", slave.Name(), err)
	}
	if err := syscall.SetNonblock(int(master.Fd()), true); err != nil {
		master.Close()
		slave.Close()
		return nil, fmt.Errorf("set pty master nonblocking: %w", err)
	}

	t := &Terminal{
		logger: logger,
		master: master,
		slave:  slave,
		name:   slave.Name(),
		outBuf: ringbuffer.New(defaultBufferCap),
		done:   make(chan struct{}),
	}

	t.wg.Add(2)
	go t.readLoop()
	go t.writeLoop()
	return t, nil
}

// Name returns the slave device path, e.g. /dev/pts/5.
func (t *Terminal) Name() string {
	return t.name
}

// OnData registers the handler for bytes arriving from the tool side.
// Nil unregisters.
func (t *Terminal) OnData(fn ReadFunc) {
	t.onData.Store(fn)
}

// Write queues data for the tool side. Non-blocking; on overflow the
// oldest queued bytes are dropped and the short count reflects it.
func (t *Terminal) Write(data []byte) (int, error) {
	if t.closed.Load() {
		return 0, os.ErrClosed
	}
	if len(data) == 0 {
		return 0, nil
	}

	n, err := t.outBuf.Write(data)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
		return 0, err
	}
	if n < len(data) {
		t.droppedOut.Add(uint64(len(data) - n))
		t.logger.WithField("dropped", len(data)-n).Warn("Terminal output buffer overflow")
	}
	return n, nil
}

// DroppedBytes reports how many outbound bytes overflowed so far.
func (t *Terminal) DroppedBytes() uint64 {
	return t.droppedOut.Load()
}

// readLoop moves bytes from the master to the registered handler.
func (t *Terminal) readLoop() {
	defer t.wg.Done()

	fd := []unix.PollFd{{Fd: int32(t.master.Fd()), Events: unix.POLLIN}}
	buf := make([]byte, chunkSize)

	for {
		select {
		case <-t.done:
			return
		default:
		}

		ready, err := unix.Poll(fd, pollTimeoutMs)
		if err != nil && !errors.Is(err, syscall.EINTR) {
			t.logger.WithError(err).Warn("Terminal read poll failed")
		}
		if ready == 0 {
			continue
		}

		n, err := t.master.Read(buf)
		if n > 0 {
			if fn, ok := t.onData.Load().(ReadFunc); ok && fn != nil {
				fn(buf[:n])
			}
		}
		if err != nil {
			switch {
			case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
				continue
			case errors.Is(err, syscall.EBADF), errors.Is(err, io.EOF), errors.Is(err, os.ErrClosed):
				return
			default:
				t.logger.WithError(err).Warn("Terminal read loop exiting")
				return
			}
		}
	}
}

// writeLoop drains the output ring into the master.
func (t *Terminal) writeLoop() {
	defer t.wg.Done()

	fd := []unix.PollFd{{Fd: int32(t.master.Fd()), Events: unix.POLLOUT}}
	buf := make([]byte, chunkSize)

	for {
		select {
		case <-t.done:
			return
		default:
		}

		if t.outBuf.IsEmpty() {
			if _, err := unix.Poll(fd, pollTimeoutMs); err != nil && !errors.Is(err, syscall.EINTR) {
				t.logger.WithError(err).Warn("Terminal write poll failed")
			}
			continue
		}

		n, err := t.outBuf.TryRead(buf)
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			t.logger.WithError(err).Warn("Terminal output drain failed")
			continue
		}

		offset := 0
		for offset < n {
			written, err := t.master.Write(buf[offset:n])
			offset += written
			if err != nil {
				switch {
				case errors.Is(err, syscall.EINTR):
					continue
				case errors.Is(err, syscall.EAGAIN):
					if _, pollErr := unix.Poll(fd, pollTimeoutMs); pollErr != nil && !errors.Is(pollErr, syscall.EINTR) {
						t.logger.WithError(pollErr).Warn("Terminal write poll failed")
					}
					continue
				case errors.Is(err, syscall.EBADF), errors.Is(err, os.ErrClosed):
					return
				default:
					t.logger.WithError(err).Warn("Terminal write loop exiting")
					return
				}
			}
		}
	}
}

// Close stops the pump loops and closes both PTY ends. Idempotent.
func (t *Terminal) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(t.done)
	t.master.Close()
	t.slave.Close()
	t.wg.Wait()
	return nil
}
