/*
rvsim - Hart: per-core architectural state and the isa.Machine surface

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

// Package hart implements the execution pipeline of one RISC-V hart: the
// register files, the core (always-present) CSRs, and the fetch-decode-
// execute-commit loop that drives the isa extension handlers. *Hart is the
// implementor of isa.Machine that emu/isa's doc comment refers to; this
// package imports isa, never the reverse, so extension handlers can reach
// back into the hart without an import cycle.
package hart

import (
	"log/slog"

	"github.com/rvsim/rvsim/emu/bus"
	"github.com/rvsim/rvsim/emu/csr"
	"github.com/rvsim/rvsim/emu/decoder"
	"github.com/rvsim/rvsim/emu/isa"
)

// IRQLines is the 2+-bit interrupt vector a platform device drives
// directly (spec.md §3: "a reference to a 2-level IRQ vector from the
// platform"). CLINT sets MSIP/MTIP and PLIC sets MEIP; no device drives
// SEIP. No locking is needed since the driver never steps a hart
// concurrently with a device poll (spec.md §5).
type IRQLines struct {
	MSIP, MTIP, MEIP, SEIP bool
}

// Config builds a Hart at reset. Extensions must already be constructed
// for the chosen xlen (isa.NewIExt(xlen), isa.NewMExt(xlen), ...); Decoder
// is shared read-only across every hart on the machine and must already be
// Lock()ed.
type Config struct {
	ID          int
	XLen        int
	Extensions  []isa.Extension
	Bus         *bus.Bus
	Decoder     *decoder.Decoder
	IRQ         *IRQLines
	EnableDirty bool
	ResetVector uint64
	Log         *slog.Logger
}

// Hart is one RISC-V hardware thread: register files, current privilege,
// and the merged CSR bank composed from the core CSRs this package installs
// plus every enabled extension's own bank.
type Hart struct {
	id   int
	xlen int

	x [32]uint64
	f [32]uint64

	pc, nextPC uint64
	ir         uint32

	priv csr.Privilege

	retired uint64
	cycle   uint64

	bus *bus.Bus
	dec *decoder.Decoder
	irq *IRQLines

	extensions  [26]isa.Extension
	bank        *csr.Bank
	enableDirty bool
	wfi         bool

	resetVector uint64
	log         *slog.Logger

	// core registers kept as direct handles for the trap machinery and the
	// MMU walk, rather than re-looking them up by address on every step.
	mstatusReg  *csr.Reg
	misaReg     *csr.Reg
	medelegReg  *csr.Reg
	midelegReg  *csr.Reg
	mieReg      *csr.Reg
	mtvecReg    *csr.Reg
	mcounterReg *csr.Reg
	mscratchReg *csr.Reg
	mepcReg     *csr.Reg
	mcauseReg   *csr.Reg
	mtvalReg    *csr.Reg
	mipReg      *csr.Reg
	satpReg     *csr.Reg
	stvecReg    *csr.Reg
	sepcReg     *csr.Reg
	scauseReg   *csr.Reg
	stvalReg    *csr.Reg
	sscratchReg *csr.Reg

	mstatusFields mstatusFieldSet
}

// New builds a hart at power-on; call Reset before stepping it.
func New(cfg Config) *Hart {
	h := &Hart{
		id:          cfg.ID,
		xlen:        cfg.XLen,
		bus:         cfg.Bus,
		dec:         cfg.Decoder,
		irq:         cfg.IRQ,
		enableDirty: cfg.EnableDirty,
		resetVector: cfg.ResetVector,
		log:         cfg.Log,
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	if h.irq == nil {
		h.irq = &IRQLines{}
	}
	for _, ext := range cfg.Extensions {
		h.extensions[letterIndex(ext.Letter())] = ext
	}
	h.bank = csr.NewBank()
	h.installCoreCSRs()
	for _, ext := range cfg.Extensions {
		ext.InstallCSRs(h.bank, h)
	}
	h.Reset()
	return h
}

func letterIndex(letter byte) int { return int(letter - 'A') }

// Reset re-initializes architectural state to power-on values, spec.md §3's
// "lifecycle" clause: registers zero, pc = next_pc = reset vector,
// reservations cleared, caches flushed.
func (h *Hart) Reset() {
	for i := range h.x {
		h.x[i] = 0
	}
	for i := range h.f {
		h.f[i] = 0
	}
	h.pc = h.resetVector
	h.nextPC = h.resetVector
	h.priv = csr.Machine
	h.retired = 0
	h.cycle = 0
	h.wfi = false
	h.bus.Release(h.id)
	h.mhartidSet()
	for _, ext := range h.extensions {
		if ext != nil {
			ext.Reset(h)
		}
	}
}

// XLen implements isa.Machine.
func (h *Hart) XLen() int { return h.xlen }

// HartID implements isa.Machine.
func (h *Hart) HartID() int { return h.id }

// GetX implements isa.Machine; x0 always reads as zero.
func (h *Hart) GetX(i int) uint64 {
	if i == 0 {
		return 0
	}
	return h.x[i]
}

// SetX implements isa.Machine; writes to x0 are silently discarded.
func (h *Hart) SetX(i int, v uint64) {
	if i != 0 {
		h.x[i] = v
	}
}

// GetF implements isa.Machine.
func (h *Hart) GetF(i int) uint64 { return h.f[i] }

// SetF implements isa.Machine.
func (h *Hart) SetF(i int, v uint64) { h.f[i] = v }

// MarkFSDirty implements isa.Machine. mstatus.FS is the single source of
// truth for the F-extension dirty flag (spec.md §4.2); every FP register
// write routes through here.
func (h *Hart) MarkFSDirty() {
	if h.mstatusReg == nil {
		return
	}
	h.mstatusReg.SetField(h.mstatusFields.fs, 3)
}

// PC implements isa.Machine.
func (h *Hart) PC() uint64 { return h.pc }

// SetNextPC implements isa.Machine.
func (h *Hart) SetNextPC(pc uint64) { h.nextPC = pc }

// Privilege implements isa.Machine.
func (h *Hart) Privilege() csr.Privilege { return h.priv }

// SetPrivilege implements isa.Machine.
func (h *Hart) SetPrivilege(p csr.Privilege) { h.priv = p }

// CSRBank implements isa.Machine.
func (h *Hart) CSRBank() *csr.Bank { return h.bank }

// IRQLines exposes this hart's interrupt-pending lines for a platform
// device (CLINT, PLIC) to drive directly; safe without locking under the
// single-threaded-cooperative discipline documented on bus.Bus.
func (h *Hart) IRQLines() *IRQLines { return h.irq }

// HasExtension implements isa.Machine.
func (h *Hart) HasExtension(letter byte) bool {
	idx := letterIndex(letter)
	if idx < 0 || idx >= len(h.extensions) {
		return false
	}
	return h.extensions[idx] != nil
}

// AcquireReservation implements isa.Machine, spec.md §4.4/§4.6.
func (h *Hart) AcquireReservation(addr, length uint64) bool {
	return h.bus.Acquire(addr, length, h.id)
}

// HasReservation implements isa.Machine.
func (h *Hart) HasReservation(addr, length uint64) bool {
	return h.bus.HasReservation(addr, length, h.id)
}

// ReleaseReservations implements isa.Machine.
func (h *Hart) ReleaseReservations() { h.bus.Release(h.id) }

// RequestWFI implements isa.Machine; cleared the moment a pending-and-
// enabled interrupt is observed at the next batch boundary.
func (h *Hart) RequestWFI() { h.wfi = true }

// WaitingForInterrupt reports whether wfi is parked, for the driver's
// round-robin scheduler to skip a non-productive step.
func (h *Hart) WaitingForInterrupt() bool { return h.wfi }

// FlushCaches implements isa.Machine. No TLB or decoded-instruction cache
// is modeled (translate and decode are cheap enough to redo every access at
// this emulator's scale; see DESIGN.md), so there is nothing to drop — the
// hook exists purely so satp/sfence.vma/fence.i/privilege-change call sites
// match spec.md §4.3's flush points.
func (h *Hart) FlushCaches() {}

// Retired returns the retired-instruction count (spec.md §8's testable
// "retired counter" property).
func (h *Hart) Retired() uint64 { return h.retired }

// Cycle returns the free-running cycle counter backing mcycle.
func (h *Hart) Cycle() uint64 { return h.cycle }
