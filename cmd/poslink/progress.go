package main

import (
	"fmt"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter displays a single-line progress message with elapsed or
// remaining time. Single-use: Start at most once, Stop exactly once.
type ProgressPrinter struct {
	prefix    string
	phase     atomic.Value // stores string
	startTime time.Time
	ticker    atomic.Pointer[time.Ticker]
	stopChan  chan struct{}
	done      chan struct{}
	started   atomic.Bool
	countUp   bool
	duration  time.Duration
}

// NewProgressPrinter creates a printer that counts up (shows elapsed time).
func NewProgressPrinter(prefix, phase string) *ProgressPrinter {
	p := &ProgressPrinter{prefix: prefix, countUp: true}
	p.phase.Store(phase)
	return p
}

// NewCountdownProgressPrinter creates a printer counting down from duration.
func NewCountdownProgressPrinter(prefix, phase string, duration time.Duration) *ProgressPrinter {
	p := &ProgressPrinter{prefix: prefix, duration: duration}
	p.phase.Store(phase)
	return p
}

// SetPhase changes the displayed phase name. Safe from any goroutine.
func (p *ProgressPrinter) SetPhase(phase string) {
	p.phase.Store(phase)
}

// Start begins displaying updates in a background goroutine.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}

	p.done = make(chan struct{})
	p.stopChan = make(chan struct{})
	p.startTime = time.Now()
	ticker := time.NewTicker(progressUpdateInterval)
	p.ticker.Store(ticker)

	fmt.Printf("\r%s (%s...)   ", p.prefix, p.phase.Load().(string))

	go func() {
		defer close(p.done)
		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				phase := p.phase.Load().(string)
				elapsed := time.Since(p.startTime)

				var seconds int
				if p.countUp {
					seconds = int(elapsed.Seconds())
				} else {
					remaining := p.duration - elapsed
					if remaining > 0 {
						seconds = int(remaining.Seconds() + 0.5)
					}
				}
				if seconds > 0 {
					fmt.Printf("\r%s (%s %ds)   ", p.prefix, phase, seconds)
				} else {
					fmt.Printf("\r%s (%s...)   ", p.prefix, phase)
				}
			}
		}
	}()
}

// Stop halts the display and clears the line. Safe to call multiple times.
func (p *ProgressPrinter) Stop() {
	ticker := p.ticker.Swap(nil)
	if ticker == nil {
		return
	}

	ticker.Stop()
	close(p.stopChan)
	<-p.done

	fmt.Print(clearLineSequence)
}
