/*
rvsim - RV32I/RV64I base integer instruction set and privileged system ops

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
	"github.com/rvsim/rvsim/emu/trap"
)

// IExt is the mandatory base integer extension: every hart has one
// regardless of what else is enabled.
type IExt struct {
	xlen int
}

// NewIExt builds the base integer extension for the given xlen (32 or 64).
func NewIExt(xlen int) *IExt { return &IExt{xlen: xlen} }

func (e *IExt) Letter() byte { return 'I' }

func (e *IExt) InstallCSRs(b *csr.Bank, m Machine) {}
func (e *IExt) Reset(m Machine)                    {}
func (e *IExt) Step(m Machine)                     {}

func setX(m Machine, r int, v uint64) {
	if r != 0 {
		m.SetX(r, v)
	}
}

func (e *IExt) Instructions() []Instruction {
	xlen := e.xlen
	list := []Instruction{
		op(0b0110111, 0x7f, "lui", func(m Machine, ir uint32) error {
			setX(m, rd(ir), u64(xlen, immU(ir)))
			return nil
		}),
		op(0b0010111, 0x7f, "auipc", func(m Machine, ir uint32) error {
			setX(m, rd(ir), u64(xlen, int64(m.PC())+immU(ir)))
			return nil
		}),
		op(0b1101111, 0x7f, "jal", func(m Machine, ir uint32) error {
			target := uint64(int64(m.PC()) + immJ(ir))
			setX(m, rd(ir), m.PC()+4)
			m.SetNextPC(target)
			return nil
		}),
		op(0b1100111, 0x707f, "jalr", func(m Machine, ir uint32) error {
			target := u64(xlen, int64(m.GetX(rs1(ir)))+immI(ir)) &^ 1
			link := m.PC() + 4
			setX(m, rd(ir), link)
			m.SetNextPC(target)
			return nil
		}),
	}
	list = append(list, branches()...)
	list = append(list, loads(xlen)...)
	list = append(list, stores(xlen)...)
	list = append(list, immOps(xlen)...)
	list = append(list, regOps(xlen)...)
	list = append(list, fences()...)
	list = append(list, system()...)
	if xlen == 64 {
		list = append(list, wOps()...)
	}
	return list
}

func branches() []Instruction {
	return []Instruction{
		op(0b1100011, 0x707f, "beq", func(m Machine, ir uint32) error {
			if m.GetX(rs1(ir)) == m.GetX(rs2(ir)) {
				m.SetNextPC(uint64(int64(m.PC()) + immB(ir)))
			}
			return nil
		}),
		op(0b1100011|(1<<12), 0x707f, "bne", func(m Machine, ir uint32) error {
			if m.GetX(rs1(ir)) != m.GetX(rs2(ir)) {
				m.SetNextPC(uint64(int64(m.PC()) + immB(ir)))
			}
			return nil
		}),
		op(0b1100011|(4<<12), 0x707f, "blt", func(m Machine, ir uint32) error {
			if int64(m.GetX(rs1(ir))) < int64(m.GetX(rs2(ir))) {
				m.SetNextPC(uint64(int64(m.PC()) + immB(ir)))
			}
			return nil
		}),
		op(0b1100011|(5<<12), 0x707f, "bge", func(m Machine, ir uint32) error {
			if int64(m.GetX(rs1(ir))) >= int64(m.GetX(rs2(ir))) {
				m.SetNextPC(uint64(int64(m.PC()) + immB(ir)))
			}
			return nil
		}),
		op(0b1100011|(6<<12), 0x707f, "bltu", func(m Machine, ir uint32) error {
			if m.GetX(rs1(ir)) < m.GetX(rs2(ir)) {
				m.SetNextPC(uint64(int64(m.PC()) + immB(ir)))
			}
			return nil
		}),
		op(0b1100011|(7<<12), 0x707f, "bgeu", func(m Machine, ir uint32) error {
			if m.GetX(rs1(ir)) >= m.GetX(rs2(ir)) {
				m.SetNextPC(uint64(int64(m.PC()) + immB(ir)))
			}
			return nil
		}),
	}
}

func loads(xlen int) []Instruction {
	ld := func(funct3 uint32, name string, width int, signed bool) Instruction {
		return op(0b0000011|(funct3<<12), 0x707f, name, func(m Machine, ir uint32) error {
			addr := u64(xlen, int64(m.GetX(rs1(ir)))+immI(ir))
			v, ex := m.Load(addr, width, signed)
			if ex != nil {
				return ex
			}
			setX(m, rd(ir), v)
			return nil
		})
	}
	out := []Instruction{
		ld(0, "lb", 1, true),
		ld(1, "lh", 2, true),
		ld(2, "lw", 4, true),
		ld(4, "lbu", 1, false),
		ld(5, "lhu", 2, false),
	}
	if xlen == 64 {
		out = append(out, ld(3, "ld", 8, true), ld(6, "lwu", 4, false))
	}
	return out
}

func stores(xlen int) []Instruction {
	st := func(funct3 uint32, name string, width int) Instruction {
		return op(0b0100011|(funct3<<12), 0x707f, name, func(m Machine, ir uint32) error {
			addr := u64(xlen, int64(m.GetX(rs1(ir)))+immS(ir))
			if ex := m.Store(addr, width, m.GetX(rs2(ir))); ex != nil {
				return ex
			}
			return nil
		})
	}
	out := []Instruction{st(0, "sb", 1), st(1, "sh", 2), st(2, "sw", 4)}
	if xlen == 64 {
		out = append(out, st(3, "sd", 8))
	}
	return out
}

func immOps(xlen int) []Instruction {
	alu := func(funct3 uint32, name string, f func(a uint64, imm int64) uint64) Instruction {
		return op(0b0010011|(funct3<<12), 0x707f, name, func(m Machine, ir uint32) error {
			setX(m, rd(ir), u64(xlen, int64(f(m.GetX(rs1(ir)), immI(ir)))))
			return nil
		})
	}
	return []Instruction{
		alu(0, "addi", func(a uint64, imm int64) uint64 { return uint64(int64(a) + imm) }),
		alu(2, "slti", func(a uint64, imm int64) uint64 {
			if int64(a) < imm {
				return 1
			}
			return 0
		}),
		alu(3, "sltiu", func(a uint64, imm int64) uint64 {
			if a < uint64(imm) {
				return 1
			}
			return 0
		}),
		alu(4, "xori", func(a uint64, imm int64) uint64 { return a ^ uint64(imm) }),
		alu(6, "ori", func(a uint64, imm int64) uint64 { return a | uint64(imm) }),
		alu(7, "andi", func(a uint64, imm int64) uint64 { return a & uint64(imm) }),
		op(0b0010011|(1<<12), 0xfc00707f, "slli", func(m Machine, ir uint32) error {
			setX(m, rd(ir), u64(xlen, int64(m.GetX(rs1(ir))<<shamt(ir, xlen))))
			return nil
		}),
		op(0b0010011|(5<<12), 0xfc00707f, "srli", func(m Machine, ir uint32) error {
			setX(m, rd(ir), u64(xlen, int64(m.GetX(rs1(ir))>>shamt(ir, xlen))))
			return nil
		}),
		op(0b0010011|(5<<12)|(0x20<<25), 0xfc00707f, "srai", func(m Machine, ir uint32) error {
			setX(m, rd(ir), u64(xlen, int64(m.GetX(rs1(ir)))>>shamt(ir, xlen)))
			return nil
		}),
	}
}

func regOps(xlen int) []Instruction {
	alu := func(funct3, funct7 uint32, name string, f func(a, b uint64) uint64) Instruction {
		return op(0b0110011|(funct3<<12)|(funct7<<25), 0xfe00707f, name, func(m Machine, ir uint32) error {
			setX(m, rd(ir), u64(xlen, int64(f(m.GetX(rs1(ir)), m.GetX(rs2(ir))))))
			return nil
		})
	}
	return []Instruction{
		alu(0, 0, "add", func(a, b uint64) uint64 { return a + b }),
		alu(0, 0x20, "sub", func(a, b uint64) uint64 { return a - b }),
		alu(1, 0, "sll", func(a, b uint64) uint64 { return a << (b & shiftMask(xlen)) }),
		alu(2, 0, "slt", func(a, b uint64) uint64 {
			if int64(a) < int64(b) {
				return 1
			}
			return 0
		}),
		alu(3, 0, "sltu", func(a, b uint64) uint64 {
			if a < b {
				return 1
			}
			return 0
		}),
		alu(4, 0, "xor", func(a, b uint64) uint64 { return a ^ b }),
		alu(5, 0, "srl", func(a, b uint64) uint64 { return a >> (b & shiftMask(xlen)) }),
		alu(5, 0x20, "sra", func(a, b uint64) uint64 {
			return uint64(int64(a) >> (b & shiftMask(xlen)))
		}),
		alu(6, 0, "or", func(a, b uint64) uint64 { return a | b }),
		alu(7, 0, "and", func(a, b uint64) uint64 { return a & b }),
	}
}

func shiftMask(xlen int) uint64 {
	if xlen == 32 {
		return 0x1f
	}
	return 0x3f
}

// wOps covers the RV64-only *W forms: 32-bit arithmetic, sign-extended
// into the full 64-bit register.
func wOps() []Instruction {
	regW := func(funct3, funct7 uint32, name string, f func(a, b uint32) uint32) Instruction {
		return op(0b0111011|(funct3<<12)|(funct7<<25), 0xfe00707f, name, func(m Machine, ir uint32) error {
			setX(m, rd(ir), sext32(f(uint32(m.GetX(rs1(ir))), uint32(m.GetX(rs2(ir))))))
			return nil
		})
	}
	return []Instruction{
		op(0b0011011, 0x707f, "addiw", func(m Machine, ir uint32) error {
			setX(m, rd(ir), sext32(uint32(int32(uint32(m.GetX(rs1(ir))))+int32(immI(ir)))))
			return nil
		}),
		op(0b0011011|(1<<12), 0xfe00707f, "slliw", func(m Machine, ir uint32) error {
			setX(m, rd(ir), sext32(uint32(m.GetX(rs1(ir)))<<shamt(ir, 32)))
			return nil
		}),
		op(0b0011011|(5<<12), 0xfe00707f, "srliw", func(m Machine, ir uint32) error {
			setX(m, rd(ir), sext32(uint32(m.GetX(rs1(ir)))>>shamt(ir, 32)))
			return nil
		}),
		op(0b0011011|(5<<12)|(0x20<<25), 0xfe00707f, "sraiw", func(m Machine, ir uint32) error {
			setX(m, rd(ir), sext32(uint32(int32(uint32(m.GetX(rs1(ir))))>>shamt(ir, 32))))
			return nil
		}),
		regW(0, 0, "addw", func(a, b uint32) uint32 { return a + b }),
		regW(0, 0x20, "subw", func(a, b uint32) uint32 { return a - b }),
		regW(1, 0, "sllw", func(a, b uint32) uint32 { return a << (b & 0x1f) }),
		regW(5, 0, "srlw", func(a, b uint32) uint32 { return a >> (b & 0x1f) }),
		regW(5, 0x20, "sraw", func(a, b uint32) uint32 { return uint32(int32(a) >> (b & 0x1f)) }),
	}
}

func fences() []Instruction {
	return []Instruction{
		op(0b0001111, 0x707f, "fence", func(m Machine, ir uint32) error { return nil }),
		op(0b0001111|(1<<12), 0x707f, "fence.i", func(m Machine, ir uint32) error {
			m.FlushCaches()
			return nil
		}),
	}
}

func system() []Instruction {
	list := []Instruction{
		op(0b1110011, 0xffffffff, "ecall", func(m Machine, ir uint32) error {
			var code uint
			switch m.Privilege() {
			case csr.User:
				code = trap.EcallU
			case csr.Supervisor:
				code = trap.EcallS
			default:
				code = trap.EcallM
			}
			return trap.NewExecutedException(code, 0)
		}),
		op(0b1110011|(1<<20), 0xffffffff, "ebreak", func(m Machine, ir uint32) error {
			return trap.NewExecutedException(trap.Breakpoint, m.PC())
		}),
		op(0b00110000001000000000000001110011, 0xffffffff, "mret", func(m Machine, ir uint32) error {
			m.SetNextPC(m.TrapReturn(csr.Machine))
			return nil
		}),
		op(0b00010000001000000000000001110011, 0xffffffff, "sret", func(m Machine, ir uint32) error {
			m.SetNextPC(m.TrapReturn(csr.Supervisor))
			return nil
		}),
		op(0b00010000010100000000000001110011, 0xffffffff, "wfi", func(m Machine, ir uint32) error {
			m.RequestWFI()
			return nil
		}),
		op(0b1110011|(0x09<<25), 0xfe00707f, "sfence.vma", func(m Machine, ir uint32) error {
			m.FlushCaches()
			return nil
		}),
	}
	list = append(list, csrInsns()...)
	return list
}

func csrInsns() []Instruction {
	doRW := func(m Machine, addr uint16, rdr int, newVal uint64, readOld bool) error {
		var old uint64
		var ok bool
		if readOld || rdr != 0 {
			old, ok = m.ReadCSR(addr)
			if !ok {
				return trap.NewException(trap.IllegalInsn, 0)
			}
		}
		if !m.WriteCSR(addr, newVal) {
			return trap.NewException(trap.IllegalInsn, 0)
		}
		setX(m, rdr, old)
		return nil
	}
	doSetClear := func(m Machine, addr uint16, rdr int, mask uint64, set bool, writes bool) error {
		old, ok := m.ReadCSR(addr)
		if !ok {
			return trap.NewException(trap.IllegalInsn, 0)
		}
		setX(m, rdr, old)
		if !writes {
			return nil
		}
		var nv uint64
		if set {
			nv = old | mask
		} else {
			nv = old &^ mask
		}
		if !m.WriteCSR(addr, nv) {
			return trap.NewException(trap.IllegalInsn, 0)
		}
		return nil
	}
	return []Instruction{
		op(0b1110011|(1<<12), 0x707f, "csrrw", func(m Machine, ir uint32) error {
			return doRW(m, csrAddr(ir), rd(ir), m.GetX(rs1(ir)), rd(ir) != 0)
		}),
		op(0b1110011|(2<<12), 0x707f, "csrrs", func(m Machine, ir uint32) error {
			return doSetClear(m, csrAddr(ir), rd(ir), m.GetX(rs1(ir)), true, rs1(ir) != 0)
		}),
		op(0b1110011|(3<<12), 0x707f, "csrrc", func(m Machine, ir uint32) error {
			return doSetClear(m, csrAddr(ir), rd(ir), m.GetX(rs1(ir)), false, rs1(ir) != 0)
		}),
		op(0b1110011|(5<<12), 0x707f, "csrrwi", func(m Machine, ir uint32) error {
			return doRW(m, csrAddr(ir), rd(ir), uint64(rs1(ir)), rd(ir) != 0)
		}),
		op(0b1110011|(6<<12), 0x707f, "csrrsi", func(m Machine, ir uint32) error {
			return doSetClear(m, csrAddr(ir), rd(ir), uint64(rs1(ir)), true, rs1(ir) != 0)
		}),
		op(0b1110011|(7<<12), 0x707f, "csrrci", func(m Machine, ir uint32) error {
			return doSetClear(m, csrAddr(ir), rd(ir), uint64(rs1(ir)), false, rs1(ir) != 0)
		}),
	}
}
