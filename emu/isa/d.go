package isa

import (
	"math"

	"github.com/rvsim/rvsim/emu/csr"
)

// DExt is the double-precision floating point extension; it shares the
// FP register file with F (same 32 registers, this extension simply uses
// the full 64 bits instead of a NaN-boxed 32-bit slice).
type DExt struct{ xlen int }

func NewDExt(xlen int) *DExt { return &DExt{xlen: xlen} }

func (e *DExt) Letter() byte { return 'D' }
func (e *DExt) Reset(m Machine) {
	for i := 0; i < 32; i++ {
		writeF64(m, i, 0)
	}
}
func (e *DExt) Step(m Machine)                     {}
func (e *DExt) InstallCSRs(b *csr.Bank, m Machine) {}

const fmtD = 0b01

func (e *DExt) Instructions() []Instruction {
	xlen := e.xlen
	list := []Instruction{
		op(0b0000111|(3<<12), 0x707f, "fld", func(m Machine, ir uint32) error {
			addr := u64(xlen, int64(m.GetX(rs1(ir)))+immI(ir))
			v, ex := m.Load(addr, 8, false)
			if ex != nil {
				return ex
			}
			m.SetF(rd(ir), v)
			m.MarkFSDirty()
			return nil
		}),
		op(0b0100111|(3<<12), 0x707f, "fsd", func(m Machine, ir uint32) error {
			addr := u64(xlen, int64(m.GetX(rs1(ir)))+immS(ir))
			return errOrNil(m.Store(addr, 8, m.GetF(rs2(ir))))
		}),

		arith(fmtD, 0b00000, "fadd.d", func(m Machine, ir uint32) error {
			r := readF64(m, rs1(ir)) + readF64(m, rs2(ir))
			writeF64(m, rd(ir), r)
			flagsFromFloat64(m, r)
			return nil
		}),
		arith(fmtD, 0b00001, "fsub.d", func(m Machine, ir uint32) error {
			r := readF64(m, rs1(ir)) - readF64(m, rs2(ir))
			writeF64(m, rd(ir), r)
			flagsFromFloat64(m, r)
			return nil
		}),
		arith(fmtD, 0b00010, "fmul.d", func(m Machine, ir uint32) error {
			r := readF64(m, rs1(ir)) * readF64(m, rs2(ir))
			writeF64(m, rd(ir), r)
			flagsFromFloat64(m, r)
			return nil
		}),
		arith(fmtD, 0b00011, "fdiv.d", func(m Machine, ir uint32) error {
			b := readF64(m, rs2(ir))
			if b == 0 {
				raiseFlags(m, fflagDZ)
			}
			r := readF64(m, rs1(ir)) / b
			writeF64(m, rd(ir), r)
			flagsFromFloat64(m, r)
			return nil
		}),
		sqrtOp(fmtD, "fsqrt.d", func(m Machine, ir uint32) error {
			a := readF64(m, rs1(ir))
			if a < 0 {
				raiseFlags(m, fflagNV)
			}
			writeF64(m, rd(ir), math.Sqrt(a))
			return nil
		}),

		sgnj(fmtD, 0, "fsgnj.d", func(m Machine, ir uint32) error {
			writeF64(m, rd(ir), math.Copysign(readF64(m, rs1(ir)), readF64(m, rs2(ir))))
			return nil
		}),
		sgnj(fmtD, 1, "fsgnjn.d", func(m Machine, ir uint32) error {
			writeF64(m, rd(ir), math.Copysign(readF64(m, rs1(ir)), -readF64(m, rs2(ir))))
			return nil
		}),
		sgnj(fmtD, 2, "fsgnjx.d", func(m Machine, ir uint32) error {
			a, b := readF64(m, rs1(ir)), readF64(m, rs2(ir))
			sign := 1.0
			if math.Signbit(a) != math.Signbit(b) {
				sign = -1
			}
			writeF64(m, rd(ir), math.Abs(a)*sign)
			return nil
		}),
		minmax(fmtD, 0, "fmin.d", func(m Machine, ir uint32) error {
			writeF64(m, rd(ir), math.Min(readF64(m, rs1(ir)), readF64(m, rs2(ir))))
			return nil
		}),
		minmax(fmtD, 1, "fmax.d", func(m Machine, ir uint32) error {
			writeF64(m, rd(ir), math.Max(readF64(m, rs1(ir)), readF64(m, rs2(ir))))
			return nil
		}),

		cmpOp(fmtD, 2, "feq.d", func(m Machine, ir uint32) error {
			setX(m, rd(ir), boolU64(readF64(m, rs1(ir)) == readF64(m, rs2(ir))))
			return nil
		}),
		cmpOp(fmtD, 1, "flt.d", func(m Machine, ir uint32) error {
			setX(m, rd(ir), boolU64(readF64(m, rs1(ir)) < readF64(m, rs2(ir))))
			return nil
		}),
		cmpOp(fmtD, 0, "fle.d", func(m Machine, ir uint32) error {
			setX(m, rd(ir), boolU64(readF64(m, rs1(ir)) <= readF64(m, rs2(ir))))
			return nil
		}),

		cvtToInt(fmtD, 0, "fcvt.w.d", func(m Machine, ir uint32) error {
			setX(m, rd(ir), sext32(uint32(int32(readF64(m, rs1(ir))))))
			return nil
		}),
		cvtToInt(fmtD, 1, "fcvt.wu.d", func(m Machine, ir uint32) error {
			setX(m, rd(ir), sext32(uint32(readF64(m, rs1(ir)))))
			return nil
		}),
		cvtFromInt(fmtD, 0, "fcvt.d.w", func(m Machine, ir uint32) error {
			writeF64(m, rd(ir), float64(int32(m.GetX(rs1(ir)))))
			return nil
		}),
		cvtFromInt(fmtD, 1, "fcvt.d.wu", func(m Machine, ir uint32) error {
			writeF64(m, rd(ir), float64(uint32(m.GetX(rs1(ir)))))
			return nil
		}),

		fclassOp(fmtD, "fclass.d", func(m Machine, ir uint32) error {
			setX(m, rd(ir), classify64(readF64(m, rs1(ir))))
			return nil
		}),

		// fmt-conversion pair: rs2 field selects the *source* format.
		op(uint32(0b1010011)|(fmtD<<25)|(0b01000<<27), 0xffe0007f, "fcvt.d.s", func(m Machine, ir uint32) error {
			writeF64(m, rd(ir), float64(readF32(m, rs1(ir))))
			return nil
		}),
		op(uint32(0b1010011)|(fmtS<<25)|(0b01000<<27)|(1<<20), 0xffe0007f, "fcvt.s.d", func(m Machine, ir uint32) error {
			writeF32(m, rd(ir), float32(readF64(m, rs1(ir))))
			return nil
		}),

		fusedOp(0b1000011, fmtD, "fmadd.d", func(m Machine, ir uint32) error {
			writeF64(m, rd(ir), readF64(m, rs1(ir))*readF64(m, rs2(ir))+readF64(m, rs3(ir)))
			return nil
		}),
		fusedOp(0b1000111, fmtD, "fmsub.d", func(m Machine, ir uint32) error {
			writeF64(m, rd(ir), readF64(m, rs1(ir))*readF64(m, rs2(ir))-readF64(m, rs3(ir)))
			return nil
		}),
		fusedOp(0b1001011, fmtD, "fnmsub.d", func(m Machine, ir uint32) error {
			writeF64(m, rd(ir), -(readF64(m, rs1(ir))*readF64(m, rs2(ir)))+readF64(m, rs3(ir)))
			return nil
		}),
		fusedOp(0b1001111, fmtD, "fnmadd.d", func(m Machine, ir uint32) error {
			writeF64(m, rd(ir), -(readF64(m, rs1(ir))*readF64(m, rs2(ir)))-readF64(m, rs3(ir)))
			return nil
		}),
	}
	if xlen == 64 {
		list = append(list,
			cvtToInt(fmtD, 2, "fcvt.l.d", func(m Machine, ir uint32) error {
				setX(m, rd(ir), uint64(int64(readF64(m, rs1(ir)))))
				return nil
			}),
			cvtToInt(fmtD, 3, "fcvt.lu.d", func(m Machine, ir uint32) error {
				setX(m, rd(ir), uint64(readF64(m, rs1(ir))))
				return nil
			}),
			cvtFromInt(fmtD, 2, "fcvt.d.l", func(m Machine, ir uint32) error {
				writeF64(m, rd(ir), float64(int64(m.GetX(rs1(ir)))))
				return nil
			}),
			cvtFromInt(fmtD, 3, "fcvt.d.lu", func(m Machine, ir uint32) error {
				writeF64(m, rd(ir), float64(m.GetX(rs1(ir))))
				return nil
			}),
			fmvXfmt(fmtD, 0, "fmv.x.d", func(m Machine, ir uint32) error {
				setX(m, rd(ir), m.GetF(rs1(ir)))
				return nil
			}),
			fmvFmtX(fmtD, "fmv.d.x", func(m Machine, ir uint32) error {
				m.SetF(rd(ir), m.GetX(rs1(ir)))
				m.MarkFSDirty()
				return nil
			}),
		)
	}
	return list
}

func flagsFromFloat64(m Machine, r float64) {
	if math.IsNaN(r) {
		raiseFlags(m, fflagNV)
	}
	if math.IsInf(r, 0) {
		raiseFlags(m, fflagOF)
	}
}

func classify64(v float64) uint64 {
	bits := math.Float64bits(v)
	neg := bits>>63 == 1
	switch {
	case math.IsNaN(v):
		if bits&(1<<51) == 0 {
			return 1 << 8
		}
		return 1 << 9
	case math.IsInf(v, -1):
		return 1 << 0
	case math.IsInf(v, 1):
		return 1 << 7
	case v == 0 && neg:
		return 1 << 3
	case v == 0:
		return 1 << 4
	case neg:
		return 1 << 1
	default:
		return 1 << 6
	}
}
