package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter shows a countdown next to the current phase on a single line.
//
// Usage:
//
//	p := NewProgressPrinter(w, "Scanning", 10*time.Second, "Processing results")
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use. Stop is safe to call more than once.
type ProgressPrinter struct {
	w          io.Writer
	prefix     string
	duration   time.Duration
	phase      atomic.Value
	stopPhases map[string]struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

// NewProgressPrinter creates a printer counting down from duration. A zero duration
// shows the phase only. Setting one of stopPhases through Callback stops the printer.
func NewProgressPrinter(w io.Writer, prefix string, duration time.Duration, stopPhases ...string) *ProgressPrinter {
	stopSet := make(map[string]struct{}, len(stopPhases))
	for _, p := range stopPhases {
		stopSet[p] = struct{}{}
	}
	p := &ProgressPrinter{
		w:          w,
		prefix:     prefix,
		duration:   duration,
		stopPhases: stopSet,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	p.phase.Store("Starting")
	return p
}

// Start begins the display loop.
func (p *ProgressPrinter) Start() {
	p.startOnce.Do(func() {
		start := time.Now()
		p.print(p.phase.Load().(string), p.duration)

		go func() {
			defer close(p.done)
			ticker := time.NewTicker(progressUpdateInterval)
			defer ticker.Stop()

			for {
				select {
				case <-p.stopCh:
					return
				case <-ticker.C:
					remaining := p.duration - time.Since(start)
					if remaining < 0 {
						remaining = 0
					}
					p.print(p.phase.Load().(string), remaining)
				}
			}
		}()
	})
}

func (p *ProgressPrinter) print(phase string, remaining time.Duration) {
	if p.duration > 0 {
		// Round to the nearest second
		fmt.Fprintf(p.w, "\r%s (%s %ds)   ", p.prefix, phase, int(remaining.Seconds()+0.5))
		return
	}
	fmt.Fprintf(p.w, "\r%s (%s...)   ", p.prefix, phase)
}

// Callback returns a progress callback that updates the phase.
func (p *ProgressPrinter) Callback() func(phase string) {
	return func(phase string) {
		p.phase.Store(phase)
		if _, ok := p.stopPhases[phase]; ok {
			p.Stop()
		}
	}
}

// Stop ends the display loop and clears the line.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		// A printer that never started has no loop to wait for.
		p.startOnce.Do(func() { close(p.done) })
		<-p.done
		fmt.Fprint(p.w, clearLineSequence)
	})
}
