/*
rvsim - PLIC: platform-level interrupt controller

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

	Layout per the external interface: per-source priorities (4 bytes each,
	starting at +0), per-hart enable bitmaps (bit-per-source, starting at
	+0x2000 with 0x80 stride per hart-context), per-hart threshold (4 bytes)
	and claim/complete (4 bytes) at +0x200000 with 0x1000 stride per
	hart-context. One hart-context per hart, machine-mode only (no separate
	S-mode context) since the supervisor extension here has no PLIC
	delegation path of its own.
*/
package plic

import (
	dev "github.com/rvsim/rvsim/emu/device"
	"github.com/rvsim/rvsim/emu/hart"
)

const (
	maxSources = 1024

	priorityBase = 0x0
	pendingBase  = 0x1000
	enableBase   = 0x2000
	enableStride = 0x80
	contextBase  = 0x200000
	contextStride = 0x1000
	windowSize   = 0x400000
)

// PLIC gathers level-triggered interrupt lines that platform devices
// assert through SetIRQ (none of the devices in this tree calls it) and
// raises MEIP on whichever hart-context has the
// highest-priority pending, enabled source above its threshold.
type PLIC struct {
	harts     []*hart.IRQLines
	numSources int
	priority  []uint32
	pending   []bool
	enable    [][]uint32 // per hart-context, bitmap over sources
	threshold []uint32
	claimed   []bool
}

// New builds a PLIC with numSources interrupt lines feeding harts'
// external-interrupt-pending lines.
func New(harts []*hart.IRQLines, numSources int) *PLIC {
	if numSources > maxSources {
		numSources = maxSources
	}
	words := (numSources + 31) / 32
	enable := make([][]uint32, len(harts))
	for i := range enable {
		enable[i] = make([]uint32, words)
	}
	return &PLIC{
		harts:      harts,
		numSources: numSources,
		priority:   make([]uint32, numSources+1),
		pending:    make([]bool, numSources+1),
		enable:     enable,
		threshold:  make([]uint32, len(harts)),
		claimed:    make([]bool, numSources+1),
	}
}

func (p *PLIC) Size() uint64 { return windowSize }

// SetIRQ implements device.IRQSink: a platform device asserts or
// deasserts its source line.
func (p *PLIC) SetIRQ(source uint32, asserted bool) {
	if int(source) > p.numSources || source == 0 {
		return
	}
	p.pending[source] = asserted
	p.recompute()
}

func (p *PLIC) ReadAt(off uint64, length int) (uint64, error) {
	switch {
	case off >= priorityBase && off < priorityBase+uint64(p.numSources+1)*4:
		src := (off - priorityBase) / 4
		return uint64(p.priority[src]), nil
	case off >= pendingBase && off < pendingBase+uint64((p.numSources+31)/32)*4:
		word := (off - pendingBase) / 4
		return uint64(p.pendingWord(int(word))), nil
	case off >= enableBase && off < enableBase+uint64(len(p.enable))*enableStride:
		ctx := (off - enableBase) / enableStride
		wordOff := (off - enableBase) % enableStride
		word := wordOff / 4
		if int(word) < len(p.enable[ctx]) {
			return uint64(p.enable[ctx][word]), nil
		}
		return 0, nil
	case off >= contextBase && off < contextBase+uint64(len(p.harts))*contextStride:
		ctx := (off - contextBase) / contextStride
		reg := (off - contextBase) % contextStride
		switch reg {
		case 0:
			return uint64(p.threshold[ctx]), nil
		case 4:
			return uint64(p.claimHighest(int(ctx))), nil
		}
	}
	return 0, &dev.AccessError{Offset: off}
}

func (p *PLIC) WriteAt(off uint64, length int, value uint64) error {
	switch {
	case off >= priorityBase && off < priorityBase+uint64(p.numSources+1)*4:
		src := (off - priorityBase) / 4
		p.priority[src] = uint32(value)
		p.recompute()
		return nil
	case off >= enableBase && off < enableBase+uint64(len(p.enable))*enableStride:
		ctx := (off - enableBase) / enableStride
		wordOff := (off - enableBase) % enableStride
		word := wordOff / 4
		if int(word) < len(p.enable[ctx]) {
			p.enable[ctx][word] = uint32(value)
			p.recompute()
		}
		return nil
	case off >= contextBase && off < contextBase+uint64(len(p.harts))*contextStride:
		ctx := (off - contextBase) / contextStride
		reg := (off - contextBase) % contextStride
		switch reg {
		case 0:
			p.threshold[ctx] = uint32(value)
			p.recompute()
			return nil
		case 4:
			if int(value) <= p.numSources {
				p.claimed[value] = false
				p.recompute()
			}
			return nil
		}
	}
	return &dev.AccessError{Offset: off}
}

func (p *PLIC) pendingWord(word int) uint32 {
	var w uint32
	for bit := 0; bit < 32; bit++ {
		src := word*32 + bit
		if src <= p.numSources && src > 0 && p.pending[src] {
			w |= 1 << bit
		}
	}
	return w
}

func (p *PLIC) enabled(ctx, src int) bool {
	word := src / 32
	bit := uint(src % 32)
	if word >= len(p.enable[ctx]) {
		return false
	}
	return p.enable[ctx][word]&(1<<bit) != 0
}

// claimHighest returns and latches the highest-priority pending, enabled,
// unclaimed source for ctx above its threshold, or 0 (no interrupt).
func (p *PLIC) claimHighest(ctx int) uint32 {
	best, bestPrio := 0, p.threshold[ctx]
	for src := 1; src <= p.numSources; src++ {
		if !p.pending[src] || p.claimed[src] || !p.enabled(ctx, src) {
			continue
		}
		if p.priority[src] > bestPrio {
			best, bestPrio = src, p.priority[src]
		}
	}
	if best == 0 {
		return 0
	}
	p.claimed[best] = true
	p.pending[best] = false
	p.recompute()
	return uint32(best)
}

// recompute re-evaluates every hart-context's MEIP line.
func (p *PLIC) recompute() {
	for ctx := range p.harts {
		asserted := false
		for src := 1; src <= p.numSources; src++ {
			if p.pending[src] && !p.claimed[src] && p.enabled(ctx, src) && p.priority[src] > p.threshold[ctx] {
				asserted = true
				break
			}
		}
		p.harts[ctx].MEIP = asserted
	}
}

func (p *PLIC) Shutdown() {}

func (p *PLIC) Debug(option string) error { return nil }
