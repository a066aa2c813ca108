/*
rvsim - Extension framework: the Machine surface instruction handlers see

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
package isa

import (
	"github.com/rvsim/rvsim/emu/csr"
	"github.com/rvsim/rvsim/emu/decoder"
	"github.com/rvsim/rvsim/emu/mmu"
	"github.com/rvsim/rvsim/emu/trap"
)

// Machine is the surface of a hart that instruction handlers and
// extensions are allowed to touch. It is implemented by *hart.Hart; this
// package never imports hart (hart imports isa instead) so that
// extensions, which must reach into the hart, do not create an import
// cycle.
type Machine interface {
	XLen() int
	HartID() int

	GetX(i int) uint64
	SetX(i int, v uint64)
	GetF(i int) uint64
	SetF(i int, v uint64)
	MarkFSDirty()

	PC() uint64
	SetNextPC(pc uint64)

	Privilege() csr.Privilege
	SetPrivilege(p csr.Privilege)

	CSRBank() *csr.Bank
	ReadCSR(addr uint16) (uint64, bool)
	WriteCSR(addr uint16, value uint64) bool

	Load(addr uint64, width int, signed bool) (uint64, *trap.Exception)
	Store(addr uint64, width int, value uint64) *trap.Exception
	Translate(va uint64, length uint64, op mmu.AccessType) (uint64, *trap.Exception)

	AcquireReservation(addr uint64, length uint64) bool
	HasReservation(addr uint64, length uint64) bool
	ReleaseReservations()

	FlushCaches()
	RequestWFI()

	HasExtension(letter byte) bool

	// TrapReturn performs mret/sret's privilege-stack pop (xPP/xPIE/xIE
	// per spec.md §4.7's reversed trap-entry sequence) and returns the
	// resuming pc taken from xepc.
	TrapReturn(priv csr.Privilege) uint64
}

// Instruction is a decoded handler: a fixed code/mask pair, a mnemonic,
// and the execution body. It has no operand accessors; Execute extracts
// the fields it needs from ir.
type Instruction interface {
	decoder.Entry
	Name() string
	// Execute runs the instruction. ir is the full 16- or 32-bit word the
	// decoder matched this handler against (zero-extended for compressed
	// forms); handlers that need operand fields beyond Code()/Mask()'s
	// fixed bits re-extract them from ir.
	Execute(m Machine, ir uint32) error
}

// Extension is one enabled ISA letter (spec.md §9's "Extension = A | C |
// D | F | I | M | S | U" variant). Each concrete type owns its CSRs and
// its instruction set; the hart holds a fixed array of these indexed by
// letter.
type Extension interface {
	Letter() byte
	Instructions() []Instruction
	// InstallCSRs defines this extension's CSRs into the hart's merged
	// bank. Core (always-present) CSRs have already been installed by
	// the hart itself; extensions needing to compose a view over them
	// (S's sstatus-over-mstatus) look them up via m.CSRBank().
	InstallCSRs(b *csr.Bank, m Machine)
	// Reset re-initializes any extension-private state (the FP register
	// file for F and D) at machine reset.
	Reset(m Machine)
	// Step is an optional per-batch callback. Every extension in this
	// package leaves it empty: A has no reservation timeout and F/D do no
	// lazy FP-state work here.
	Step(m Machine)
}
