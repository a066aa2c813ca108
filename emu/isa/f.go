package isa

import (
	"math"

	"github.com/rvsim/rvsim/emu/csr"
	"github.com/rvsim/rvsim/emu/trap"
)

// FExt is the single-precision floating point extension.
type FExt struct{ xlen int }

func NewFExt(xlen int) *FExt { return &FExt{xlen: xlen} }

func (e *FExt) Letter() byte { return 'F' }
func (e *FExt) Reset(m Machine) {
	for i := 0; i < 32; i++ {
		writeF32(m, i, 0)
	}
}
func (e *FExt) Step(m Machine) {}

func (e *FExt) InstallCSRs(b *csr.Bank, m Machine) {}

const fmtS = 0b00

func (e *FExt) Instructions() []Instruction {
	xlen := e.xlen
	list := []Instruction{
		op(0b0000111|(2<<12), 0x707f, "flw", func(m Machine, ir uint32) error {
			addr := u64(xlen, int64(m.GetX(rs1(ir)))+immI(ir))
			v, ex := m.Load(addr, 4, false)
			if ex != nil {
				return ex
			}
			m.SetF(rd(ir), 0xffffffff00000000|v)
			m.MarkFSDirty()
			return nil
		}),
		op(0b0100111|(2<<12), 0x707f, "fsw", func(m Machine, ir uint32) error {
			addr := u64(xlen, int64(m.GetX(rs1(ir)))+immS(ir))
			return errOrNil(m.Store(addr, 4, m.GetF(rs2(ir))&0xffffffff))
		}),

		arith(fmtS, 0b00000, "fadd.s", func(m Machine, ir uint32) error {
			r := readF32(m, rs1(ir)) + readF32(m, rs2(ir))
			writeF32(m, rd(ir), r)
			flagsFromFloat32(m, r)
			return nil
		}),
		arith(fmtS, 0b00001, "fsub.s", func(m Machine, ir uint32) error {
			r := readF32(m, rs1(ir)) - readF32(m, rs2(ir))
			writeF32(m, rd(ir), r)
			flagsFromFloat32(m, r)
			return nil
		}),
		arith(fmtS, 0b00010, "fmul.s", func(m Machine, ir uint32) error {
			r := readF32(m, rs1(ir)) * readF32(m, rs2(ir))
			writeF32(m, rd(ir), r)
			flagsFromFloat32(m, r)
			return nil
		}),
		arith(fmtS, 0b00011, "fdiv.s", func(m Machine, ir uint32) error {
			b := readF32(m, rs2(ir))
			if b == 0 {
				raiseFlags(m, fflagDZ)
			}
			r := readF32(m, rs1(ir)) / b
			writeF32(m, rd(ir), r)
			flagsFromFloat32(m, r)
			return nil
		}),
		sqrtOp(fmtS, "fsqrt.s", func(m Machine, ir uint32) error {
			a := readF32(m, rs1(ir))
			if a < 0 {
				raiseFlags(m, fflagNV)
			}
			r := float32(math.Sqrt(float64(a)))
			writeF32(m, rd(ir), r)
			return nil
		}),

		sgnj(fmtS, 0, "fsgnj.s", func(m Machine, ir uint32) error {
			writeF32(m, rd(ir), copysign32(readF32(m, rs1(ir)), readF32(m, rs2(ir))))
			return nil
		}),
		sgnj(fmtS, 1, "fsgnjn.s", func(m Machine, ir uint32) error {
			writeF32(m, rd(ir), copysign32(readF32(m, rs1(ir)), -readF32(m, rs2(ir))))
			return nil
		}),
		sgnj(fmtS, 2, "fsgnjx.s", func(m Machine, ir uint32) error {
			a, b := readF32(m, rs1(ir)), readF32(m, rs2(ir))
			sign := float32(1)
			if math.Signbit(float64(a)) != math.Signbit(float64(b)) {
				sign = -1
			}
			writeF32(m, rd(ir), float32(math.Abs(float64(a)))*sign)
			return nil
		}),
		minmax(fmtS, 0, "fmin.s", func(m Machine, ir uint32) error {
			writeF32(m, rd(ir), float32(math.Min(float64(readF32(m, rs1(ir))), float64(readF32(m, rs2(ir))))))
			return nil
		}),
		minmax(fmtS, 1, "fmax.s", func(m Machine, ir uint32) error {
			writeF32(m, rd(ir), float32(math.Max(float64(readF32(m, rs1(ir))), float64(readF32(m, rs2(ir))))))
			return nil
		}),

		cmpOp(fmtS, 2, "feq.s", func(m Machine, ir uint32) error {
			setX(m, rd(ir), boolU64(readF32(m, rs1(ir)) == readF32(m, rs2(ir))))
			return nil
		}),
		cmpOp(fmtS, 1, "flt.s", func(m Machine, ir uint32) error {
			setX(m, rd(ir), boolU64(readF32(m, rs1(ir)) < readF32(m, rs2(ir))))
			return nil
		}),
		cmpOp(fmtS, 0, "fle.s", func(m Machine, ir uint32) error {
			setX(m, rd(ir), boolU64(readF32(m, rs1(ir)) <= readF32(m, rs2(ir))))
			return nil
		}),

		cvtToInt(fmtS, 0, "fcvt.w.s", func(m Machine, ir uint32) error {
			setX(m, rd(ir), sext32(uint32(int32(readF32(m, rs1(ir))))))
			return nil
		}),
		cvtToInt(fmtS, 1, "fcvt.wu.s", func(m Machine, ir uint32) error {
			setX(m, rd(ir), sext32(uint32(readF32(m, rs1(ir)))))
			return nil
		}),
		cvtFromInt(fmtS, 0, "fcvt.s.w", func(m Machine, ir uint32) error {
			writeF32(m, rd(ir), float32(int32(m.GetX(rs1(ir)))))
			return nil
		}),
		cvtFromInt(fmtS, 1, "fcvt.s.wu", func(m Machine, ir uint32) error {
			writeF32(m, rd(ir), float32(uint32(m.GetX(rs1(ir)))))
			return nil
		}),

		fmvXfmt(fmtS, 0, "fmv.x.w", func(m Machine, ir uint32) error {
			setX(m, rd(ir), sext32(uint32(m.GetF(rs1(ir)))))
			return nil
		}),
		fclassOp(fmtS, "fclass.s", func(m Machine, ir uint32) error {
			setX(m, rd(ir), classify32(readF32(m, rs1(ir))))
			return nil
		}),
		fmvFmtX(fmtS, "fmv.w.x", func(m Machine, ir uint32) error {
			m.SetF(rd(ir), 0xffffffff00000000|(m.GetX(rs1(ir))&0xffffffff))
			m.MarkFSDirty()
			return nil
		}),

		fusedOp(0b1000011, fmtS, "fmadd.s", func(m Machine, ir uint32) error {
			writeF32(m, rd(ir), readF32(m, rs1(ir))*readF32(m, rs2(ir))+readF32(m, rs3(ir)))
			return nil
		}),
		fusedOp(0b1000111, fmtS, "fmsub.s", func(m Machine, ir uint32) error {
			writeF32(m, rd(ir), readF32(m, rs1(ir))*readF32(m, rs2(ir))-readF32(m, rs3(ir)))
			return nil
		}),
		fusedOp(0b1001011, fmtS, "fnmsub.s", func(m Machine, ir uint32) error {
			writeF32(m, rd(ir), -(readF32(m, rs1(ir))*readF32(m, rs2(ir)))+readF32(m, rs3(ir)))
			return nil
		}),
		fusedOp(0b1001111, fmtS, "fnmadd.s", func(m Machine, ir uint32) error {
			writeF32(m, rd(ir), -(readF32(m, rs1(ir))*readF32(m, rs2(ir)))-readF32(m, rs3(ir)))
			return nil
		}),
	}
	if xlen == 64 {
		list = append(list,
			cvtToInt(fmtS, 2, "fcvt.l.s", func(m Machine, ir uint32) error {
				setX(m, rd(ir), uint64(int64(readF32(m, rs1(ir)))))
				return nil
			}),
			cvtToInt(fmtS, 3, "fcvt.lu.s", func(m Machine, ir uint32) error {
				setX(m, rd(ir), uint64(readF32(m, rs1(ir))))
				return nil
			}),
			cvtFromInt(fmtS, 2, "fcvt.s.l", func(m Machine, ir uint32) error {
				writeF32(m, rd(ir), float32(int64(m.GetX(rs1(ir)))))
				return nil
			}),
			cvtFromInt(fmtS, 3, "fcvt.s.lu", func(m Machine, ir uint32) error {
				writeF32(m, rd(ir), float32(m.GetX(rs1(ir))))
				return nil
			}),
		)
	}
	return list
}

func errOrNil(ex *trap.Exception) error {
	if ex == nil {
		return nil
	}
	return ex
}

func boolU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func copysign32(mag, sign float32) float32 { return float32(math.Copysign(float64(mag), float64(sign))) }

func flagsFromFloat32(m Machine, r float32) {
	if math.IsNaN(float64(r)) {
		raiseFlags(m, fflagNV)
	}
	if math.IsInf(float64(r), 0) {
		raiseFlags(m, fflagOF)
	}
}

func classify32(v float32) uint64 {
	bits := math.Float32bits(v)
	neg := bits>>31 == 1
	switch {
	case math.IsNaN(float64(v)):
		if bits&(1<<22) == 0 {
			return 1 << 8 // signaling NaN
		}
		return 1 << 9 // quiet NaN
	case math.IsInf(float64(v), -1):
		return 1 << 0
	case math.IsInf(float64(v), 1):
		return 1 << 7
	case v == 0 && neg:
		return 1 << 3
	case v == 0:
		return 1 << 4
	case neg:
		return 1 << 1 // negative normal (subnormals not distinguished further here)
	default:
		return 1 << 6
	}
}

// arith builds a standard two-operand OP-FP instruction (rs2 is a real
// register, funct3 carries the variable rounding-mode field).
func arith(fmt, funct5 uint32, name string, exec func(m Machine, ir uint32) error) Instruction {
	code := uint32(0b1010011) | (fmt << 25) | (funct5 << 27)
	mask := uint32(0xfe00007f)
	return op(code, mask, name, exec)
}

func sqrtOp(fmt uint32, name string, exec func(m Machine, ir uint32) error) Instruction {
	code := uint32(0b1010011) | (fmt << 25) | (0b01011 << 27)
	mask := uint32(0xfff0007f)
	return op(code, mask, name, exec)
}

func sgnj(fmt, funct3 uint32, name string, exec func(m Machine, ir uint32) error) Instruction {
	code := uint32(0b1010011) | (fmt << 25) | (0b00100 << 27) | (funct3 << 12)
	mask := uint32(0xfe00707f)
	return op(code, mask, name, exec)
}

func minmax(fmt, funct3 uint32, name string, exec func(m Machine, ir uint32) error) Instruction {
	code := uint32(0b1010011) | (fmt << 25) | (0b00101 << 27) | (funct3 << 12)
	mask := uint32(0xfe00707f)
	return op(code, mask, name, exec)
}

func cmpOp(fmt, funct3 uint32, name string, exec func(m Machine, ir uint32) error) Instruction {
	code := uint32(0b1010011) | (fmt << 25) | (0b10100 << 27) | (funct3 << 12)
	mask := uint32(0xfe00707f)
	return op(code, mask, name, exec)
}

func cvtToInt(fmt, rs2sel uint32, name string, exec func(m Machine, ir uint32) error) Instruction {
	code := uint32(0b1010011) | (fmt << 25) | (0b11000 << 27) | (rs2sel << 20)
	mask := uint32(0xffe0007f)
	return op(code, mask, name, exec)
}

func cvtFromInt(fmt, rs2sel uint32, name string, exec func(m Machine, ir uint32) error) Instruction {
	code := uint32(0b1010011) | (fmt << 25) | (0b11010 << 27) | (rs2sel << 20)
	mask := uint32(0xffe0007f)
	return op(code, mask, name, exec)
}

func fmvXfmt(fmt, funct3 uint32, name string, exec func(m Machine, ir uint32) error) Instruction {
	code := uint32(0b1010011) | (fmt << 25) | (0b11100 << 27) | (funct3 << 12)
	mask := uint32(0xffe0707f)
	return op(code, mask, name, exec)
}

func fclassOp(fmt uint32, name string, exec func(m Machine, ir uint32) error) Instruction {
	return fmvXfmt(fmt, 1, name, exec)
}

func fmvFmtX(fmt uint32, name string, exec func(m Machine, ir uint32) error) Instruction {
	code := uint32(0b1010011) | (fmt << 25) | (0b11110 << 27)
	mask := uint32(0xffe0707f)
	return op(code, mask, name, exec)
}

func fusedOp(opcode, fmt uint32, name string, exec func(m Machine, ir uint32) error) Instruction {
	code := opcode | (fmt << 25)
	mask := uint32(0x7f) | (0x3 << 25)
	return op(code, mask, name, exec)
}
