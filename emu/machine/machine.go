/*
rvsim - Machine: the driver loop stepping harts round-robin

	Copyright 2024, Richard Cornwell

	Permission is hereby granted, free of charge, to any person obtaining a copy
	of this software and associated documentation files (the "Software"), to deal
	in the Software without restriction, including without limitation the rights
	to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
	copies of the Software, and to permit persons to whom the Software is
	furnished to do so, subject to the following conditions:

	The above copyright notice and this permission notice shall be included in
	all copies or substantial portions of the Software.

	THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
	IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
	FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
	AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
	LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
	OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
	SOFTWARE.
*/

// Package machine is the outer driver: it owns the bus, the harts, and the
// platform devices, and runs the single-threaded-cooperative loop of
// spec.md §5 that steps every hart a batch at a time, polls the event
// queue for timer-driven devices, and drains a command channel between
// batches, the same shape as a classic run-loop goroutine.
package machine

import (
	"context"
	"log/slog"
	"time"

	"github.com/rvsim/rvsim/emu/bus"
	"github.com/rvsim/rvsim/emu/event"
	"github.com/rvsim/rvsim/emu/hart"
)

// Stepper is the subset of *hart.Hart the driver needs; kept as an
// interface so tests can drive a fake hart without building a real one.
type Stepper interface {
	Step(n int)
	WaitingForInterrupt() bool
}

// Command is posted to a running Machine from outside the driver
// goroutine (the monitor console, a signal handler); it is only ever
// applied at a batch boundary, matching spec.md §5's "suspension points
// are only at the outer driver loop between batches".
type Command struct {
	Stop     bool
	Continue bool
	Shutdown bool
}

// BatchSize is the number of instructions stepped per hart per driver
// iteration before interrupts are re-evaluated and devices are polled;
// spec.md §4.8 calls this n in step(n).
const BatchSize = 1000

// Config assembles a runnable machine.
type Config struct {
	Harts   []*hart.Hart
	Bus     *bus.Bus
	Log     *slog.Logger
	Devices []Pollable
}

// Pollable is a platform device that needs a chance to run logic once per
// driver iteration even absent a bus access (CLINT incrementing mtime,
// virtio draining its ring). Devices with no per-iteration work simply
// don't implement it.
type Pollable interface {
	Poll()
}

// Machine is one runnable system: N harts sharing a bus, stepped
// round-robin.
type Machine struct {
	harts    []*hart.Hart
	bus      *bus.Bus
	log      *slog.Logger
	devices  []Pollable
	commands chan Command
	running  bool
}

// New builds a Machine; harts and devices must already be wired onto the
// shared bus.
func New(cfg Config) *Machine {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		harts:    cfg.Harts,
		bus:      cfg.Bus,
		log:      log,
		devices:  cfg.Devices,
		commands: make(chan Command, 8),
		running:  true,
	}
}

// Post enqueues a command to be applied at the next batch boundary. It
// never blocks the driver goroutine's stepping.
func (m *Machine) Post(cmd Command) {
	select {
	case m.commands <- cmd:
	default:
		// A full queue means a command is already pending; the driver
		// will catch up on the next boundary without blocking the caller.
	}
}

// Run steps every hart round-robin in batches of BatchSize instructions
// until ctx is cancelled or a Shutdown command is posted, mirroring the
// teacher's core.Start goroutine (cycle, running = cpu.CycleCPU();
// event.Advance(cycle)) generalized to N harts and an event-queue poll
// per batch instead of per instruction.
func (m *Machine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			m.log.Info("machine: context cancelled, stopping")
			return ctx.Err()
		case cmd := <-m.commands:
			if cmd.Shutdown {
				m.log.Info("machine: shutdown requested")
				return nil
			}
			if cmd.Stop {
				m.running = false
			}
			if cmd.Continue {
				m.running = true
			}
		default:
		}

		if !m.running {
			// Even while halted (monitor breakpoint, explicit stop) the
			// event queue still drains so a pending timer interrupt can
			// still surface once execution resumes.
			if event.AnyEvent() {
				event.Advance(1)
			} else {
				time.Sleep(time.Millisecond)
			}
			continue
		}

		for _, h := range m.harts {
			if h.WaitingForInterrupt() {
				continue
			}
			h.Step(BatchSize)
		}
		event.Advance(BatchSize)

		for _, d := range m.devices {
			d.Poll()
		}

		if m.allParked() {
			time.Sleep(time.Millisecond)
		}
	}
}

func (m *Machine) allParked() bool {
	for _, h := range m.harts {
		if !h.WaitingForInterrupt() {
			return false
		}
	}
	return len(m.harts) > 0
}

// Stop halts stepping; the event queue keeps draining, but devices are not
// polled until Continue.
func (m *Machine) Stop() { m.Post(Command{Stop: true}) }

// Continue resumes stepping after Stop.
func (m *Machine) Continue() { m.Post(Command{Continue: true}) }

// Shutdown ends Run on its next iteration.
func (m *Machine) Shutdown() { m.Post(Command{Shutdown: true}) }

// Harts exposes the hart set for the monitor console's reg/csr inspection.
func (m *Machine) Harts() []*hart.Hart { return m.harts }

// Bus exposes the shared bus for the monitor's examine/deposit commands.
func (m *Machine) Bus() *bus.Bus { return m.bus }
