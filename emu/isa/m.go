package isa

import (
	"math/bits"

	"github.com/rvsim/rvsim/emu/csr"
)

// MExt is the integer multiply/divide extension.
type MExt struct{ xlen int }

func NewMExt(xlen int) *MExt { return &MExt{xlen: xlen} }

func (e *MExt) Letter() byte                       { return 'M' }
func (e *MExt) InstallCSRs(b *csr.Bank, m Machine) {}
func (e *MExt) Reset(m Machine)                    {}
func (e *MExt) Step(m Machine)                     {}

func mulDiv(funct3 uint32, name string, xlen int, f func(a, b uint64) uint64) Instruction {
	return op(0b0110011|(funct3<<12)|(1<<25), 0xfe00707f, name, func(m Machine, ir uint32) error {
		setX(m, rd(ir), u64(xlen, int64(f(m.GetX(rs1(ir)), m.GetX(rs2(ir))))))
		return nil
	})
}

// mulhi64/mulhsu64/mulhu64 derive the signed/mixed high words of a 128-bit
// product from bits.Mul64's unsigned 64x64->128 result, correcting for the
// two's-complement bit pattern of negative operands.
func mulhu64(a, b uint64) uint64 {
	hi, _ := bits.Mul64(a, b)
	return hi
}

func mulhi64(a, b int64) int64 {
	hi, _ := bits.Mul64(uint64(a), uint64(b))
	if a < 0 {
		hi -= uint64(b)
	}
	if b < 0 {
		hi -= uint64(a)
	}
	return int64(hi)
}

func mulhsu64(a int64, b uint64) int64 {
	hi, _ := bits.Mul64(uint64(a), b)
	if a < 0 {
		hi -= b
	}
	return int64(hi)
}

func (e *MExt) Instructions() []Instruction {
	xlen := e.xlen
	list := []Instruction{
		mulDiv(0, "mul", xlen, func(a, b uint64) uint64 { return a * b }),
		mulDiv(1, "mulh", xlen, func(a, b uint64) uint64 { return uint64(mulhi64(int64(a), int64(b))) }),
		mulDiv(2, "mulhsu", xlen, func(a, b uint64) uint64 { return uint64(mulhsu64(int64(a), b)) }),
		mulDiv(3, "mulhu", xlen, func(a, b uint64) uint64 { return mulhu64(a, b) }),
		mulDiv(4, "div", xlen, func(a, b uint64) uint64 {
			sa, sb := int64(a), int64(b)
			if sb == 0 {
				return ^uint64(0)
			}
			if sa == minInt(xlen) && sb == -1 {
				return a
			}
			return uint64(sa / sb)
		}),
		mulDiv(5, "divu", xlen, func(a, b uint64) uint64 {
			if b == 0 {
				return ^uint64(0)
			}
			return a / b
		}),
		mulDiv(6, "rem", xlen, func(a, b uint64) uint64 {
			sa, sb := int64(a), int64(b)
			if sb == 0 {
				return a
			}
			if sa == minInt(xlen) && sb == -1 {
				return 0
			}
			return uint64(sa % sb)
		}),
		mulDiv(7, "remu", xlen, func(a, b uint64) uint64 {
			if b == 0 {
				return a
			}
			return a % b
		}),
	}
	if xlen == 64 {
		list = append(list, wMulDiv()...)
	}
	return list
}

func minInt(xlen int) int64 {
	if xlen == 32 {
		return -1 << 31
	}
	return -1 << 63
}

func wMulDiv() []Instruction {
	mk := func(funct3 uint32, name string, f func(a, b int32) uint32) Instruction {
		return op(0b0111011|(funct3<<12)|(1<<25), 0xfe00707f, name, func(m Machine, ir uint32) error {
			setX(m, rd(ir), sext32(f(int32(uint32(m.GetX(rs1(ir)))), int32(uint32(m.GetX(rs2(ir)))))))
			return nil
		})
	}
	return []Instruction{
		mk(0, "mulw", func(a, b int32) uint32 { return uint32(a * b) }),
		mk(4, "divw", func(a, b int32) uint32 {
			if b == 0 {
				return 0xffffffff
			}
			if a == int32(-1<<31) && b == -1 {
				return uint32(a)
			}
			return uint32(a / b)
		}),
		mk(5, "divuw", func(a, b int32) uint32 {
			ua, ub := uint32(a), uint32(b)
			if ub == 0 {
				return 0xffffffff
			}
			return ua / ub
		}),
		mk(6, "remw", func(a, b int32) uint32 {
			if b == 0 {
				return uint32(a)
			}
			if a == int32(-1<<31) && b == -1 {
				return 0
			}
			return uint32(a % b)
		}),
		mk(7, "remuw", func(a, b int32) uint32 {
			ua, ub := uint32(a), uint32(b)
			if ub == 0 {
				return ua
			}
			return ua % ub
		}),
	}
}
