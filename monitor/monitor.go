/*
rvsim - Monitor: interactive debug console

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

	A peterh/liner prompt loop with ctrl-C abort handling and tab
	completion, dispatching through a prefix-matched command table of
	hart/bus inspection verbs.
*/
package monitor

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/peterh/liner"

	"github.com/rvsim/rvsim/emu/bus"
	"github.com/rvsim/rvsim/emu/hart"
	"github.com/rvsim/rvsim/emu/machine"
)

// Monitor is the debug console bound to one running Machine.
type Monitor struct {
	m          *machine.Machine
	breakpoints map[uint64]bool
	selected   int // index into m.Harts() the reg/csr/step commands target
	log        *slog.Logger
}

// New builds a Monitor over m.
func New(m *machine.Machine, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{m: m, breakpoints: make(map[uint64]bool), log: log}
}

// Run drives the console until the user quits or aborts with ctrl-C,
// a liner prompt-read-dispatch loop with ctrl-C as a clean exit.
func (mon *Monitor) Run() {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(l string) []string {
		return CompleteCmd(l)
	})

	for {
		command, err := line.Prompt("rvsim> ")
		if err == nil {
			line.AppendHistory(command)
			quit, err := ProcessCommand(command, mon)
			if err != nil {
				fmt.Println("Error: " + err.Error())
			}
			if quit {
				return
			}
			continue
		}

		if errors.Is(err, liner.ErrPromptAborted) {
			return
		}
		mon.log.Error("monitor: error reading line", "err", err)
		return
	}
}

func (mon *Monitor) hart() (*hart.Hart, error) {
	harts := mon.m.Harts()
	if mon.selected >= len(harts) {
		return nil, fmt.Errorf("no hart %d", mon.selected)
	}
	return harts[mon.selected], nil
}

func (mon *Monitor) bus() *bus.Bus { return mon.m.Bus() }

// AtBreakpoint reports whether pc is a currently armed breakpoint; the
// machine driver can poll this between batches to honor single-instruction
// stepping around a break (full mid-batch breakpoint precision is out of
// scope for the batch-stepped driver of spec.md §5).
func (mon *Monitor) AtBreakpoint(pc uint64) bool {
	return mon.breakpoints[pc]
}
