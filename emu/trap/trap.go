/*
rvsim - Trap machinery: exception/interrupt taxonomy and priority

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
package trap

import "fmt"

// Exception codes, spec.md §4.7. The same numbering doubles as the
// interrupt code when IsInterrupt is set.
const (
	FetchMisaligned uint = 0
	FetchAccess     uint = 1
	IllegalInsn     uint = 2
	Breakpoint      uint = 3
	LoadMisaligned  uint = 4
	LoadAccess      uint = 5
	StoreMisaligned uint = 6
	StoreAccess     uint = 7
	EcallU          uint = 8
	EcallS          uint = 9
	EcallM          uint = 11
	FetchPageFault  uint = 12
	LoadPageFault   uint = 13
	StorePageFault  uint = 15
)

// Interrupt codes, spec.md §4.7.
const (
	SSI uint = 1 // supervisor software interrupt
	MSI uint = 3 // machine software interrupt
	STI uint = 5 // supervisor timer interrupt
	MTI uint = 7 // machine timer interrupt
	SEI uint = 9 // supervisor external interrupt
	MEI uint = 11
)

// Exception is an architectural trap. It implements error so handler
// signatures stay the idiomatic func(...) error, while still carrying the
// (Code, Tval, IsInterrupt) triple the trap machinery needs.
type Exception struct {
	Code        uint
	Tval        uint64
	IsInterrupt bool
	// Executed marks a trap that still counts as a retired instruction
	// (ecall, ebreak) per spec.md §4.8.
	Executed bool
}

func (e *Exception) Error() string {
	kind := "exception"
	if e.IsInterrupt {
		kind = "interrupt"
	}
	return fmt.Sprintf("%s %d (tval=%#x)", kind, e.Code, e.Tval)
}

// NewException builds a non-executed architectural exception.
func NewException(code uint, tval uint64) *Exception {
	return &Exception{Code: code, Tval: tval}
}

// NewExecutedException builds an exception that still retires (ecall/ebreak).
func NewExecutedException(code uint, tval uint64) *Exception {
	return &Exception{Code: code, Tval: tval, Executed: true}
}

// Cause packs (code, IsInterrupt) into the xlen-wide mcause/scause
// encoding: interrupt bit is bit (xlen-1).
func Cause(code uint, isInterrupt bool, xlen int) uint64 {
	c := uint64(code)
	if isInterrupt {
		c |= uint64(1) << (xlen - 1)
	}
	return c
}

// interruptPriority lists MEI > MSI > MTI > SEI > SSI > STI, spec.md §4.7.
var interruptPriority = []uint{MEI, MSI, MTI, SEI, SSI, STI}

// Pending picks the highest-priority interrupt that is both set in
// `pending` (already mip&mie) and enabled in `enabled` (the per-privilege
// enable mask computed by the caller from mideleg/mstatus, spec.md §4.7).
// ok is false when nothing is both pending and enabled.
func Pending(pending, enabled uint64) (code uint, ok bool) {
	live := pending & enabled
	for _, c := range interruptPriority {
		if live&(1<<c) != 0 {
			return c, true
		}
	}
	return 0, false
}
