/*
rvsim - CLINT: core-local interruptor (timer + software IPI)

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

	This is the timer/IPI controller every hart polls mip.MSIP/MTIP through.
	Layout per the external interface: msip[hart] at +4*hart (4 bytes, bit 0
	is the IPI), mtimecmp[hart] at +0x4000+8*hart (8 bytes), mtime at +0xBFF8
	(8 bytes). mtime advances once per Poll call, one tick per driver batch,
	matching the event-queue-driven clock-device pattern used elsewhere in this tree.
*/
package clint

import (
	dev "github.com/rvsim/rvsim/emu/device"
	"github.com/rvsim/rvsim/emu/hart"
)

const (
	msipBase       = 0x0000
	mtimecmpBase   = 0x4000
	mtimeOff       = 0xbff8
	windowSize     = 0xc000
	msipStride     = 4
	mtimecmpStride = 8
)

// CLINT is a memory-mapped timer and software-interrupt controller for up
// to len(harts) cores. It is only ever touched from the driver goroutine
// (a bus access from a stepping hart, or Poll from the driver loop), so no
// locking is needed under the single-threaded-cooperative discipline
// documented on bus.Bus.
type CLINT struct {
	harts    []*hart.IRQLines
	msip     []uint32
	mtimecmp []uint64
	mtime    uint64
	timebase uint64 // ticks added to mtime per Poll call
}

// New builds a CLINT for the given per-hart IRQ lines. timebase is the
// number of mtime ticks advanced per driver batch (Poll call); 1 models a
// timer running at the instruction-batch rate, which is all a functional
// emulator needs.
func New(harts []*hart.IRQLines, timebase uint64) *CLINT {
	return &CLINT{
		harts:    harts,
		msip:     make([]uint32, len(harts)),
		mtimecmp: make([]uint64, len(harts)),
		timebase: timebase,
	}
}

func (c *CLINT) Size() uint64 { return windowSize }

func (c *CLINT) ReadAt(off uint64, length int) (uint64, error) {
	switch {
	case off == mtimeOff && length == 8:
		return c.mtime, nil
	case off >= msipBase && off < msipBase+uint64(len(c.msip))*msipStride:
		h := (off - msipBase) / msipStride
		return uint64(c.msip[h]), nil
	case off >= mtimecmpBase && off < mtimecmpBase+uint64(len(c.mtimecmp))*mtimecmpStride:
		h := (off - mtimecmpBase) / mtimecmpStride
		return c.mtimecmp[h], nil
	}
	return 0, &dev.AccessError{Offset: off}
}

func (c *CLINT) WriteAt(off uint64, length int, value uint64) error {
	switch {
	case off == mtimeOff && length == 8:
		c.mtime = value
		return nil
	case off >= msipBase && off < msipBase+uint64(len(c.msip))*msipStride:
		h := (off - msipBase) / msipStride
		c.msip[h] = uint32(value)
		c.harts[h].MSIP = value&1 != 0
		return nil
	case off >= mtimecmpBase && off < mtimecmpBase+uint64(len(c.mtimecmp))*mtimecmpStride:
		h := (off - mtimecmpBase) / mtimecmpStride
		c.mtimecmp[h] = value
		c.recheckTimer(int(h))
		return nil
	}
	return &dev.AccessError{Offset: off}
}

// Poll advances mtime by one batch tick and re-evaluates every hart's
// MTIP; it is the machine driver's per-iteration hook (spec.md §5's
// "platform may advance the timer... at the outer driver loop between
// batches").
func (c *CLINT) Poll() {
	c.mtime += c.timebase
	for i := range c.harts {
		c.recheckTimer(i)
	}
}

func (c *CLINT) recheckTimer(h int) {
	c.harts[h].MTIP = c.mtime >= c.mtimecmp[h]
}

func (c *CLINT) Shutdown() {}

func (c *CLINT) Debug(option string) error { return nil }
