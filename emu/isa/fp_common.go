package isa

import "math"

// Floating point is treated as an external collaborator (spec.md §1):
// this package fixes *when* an FP op runs and how its result threads back
// into the fflags/fcsr CSR state, not the IEEE-754 arithmetic itself,
// which is Go's math package and native float32/float64 hardware ops.

const (
	fflagNV = 1 << 4 // invalid operation
	fflagDZ = 1 << 3 // divide by zero
	fflagOF = 1 << 2 // overflow
	fflagUF = 1 << 1 // underflow
	fflagNX = 1 << 0 // inexact
)

// raiseFlags ORs bits into fflags (CSR 0x001). U's InstallCSRs defines that
// CSR only when F is also installed; when it is absent or hidden (mstatus.FS
// off) the read fails and the flags are dropped.
func raiseFlags(m Machine, bits uint64) {
	if bits == 0 {
		return
	}
	old, ok := m.ReadCSR(0x001)
	if !ok {
		return
	}
	m.WriteCSR(0x001, old|bits)
}

func readF32(m Machine, i int) float32 { return math.Float32frombits(uint32(m.GetF(i))) }
func writeF32(m Machine, i int, v float32) {
	m.SetF(i, 0xffffffff00000000|uint64(math.Float32bits(v)))
	m.MarkFSDirty()
}

func readF64(m Machine, i int) float64 { return math.Float64frombits(m.GetF(i)) }
func writeF64(m Machine, i int, v float64) {
	m.SetF(i, math.Float64bits(v))
	m.MarkFSDirty()
}
