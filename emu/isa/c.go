/*
rvsim - RVC: the compressed 16-bit instruction set

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

// CExt recognizes the compressed 16-bit forms directly (rather than
// expanding to a 32-bit word and redispatching): each handler below reads
// its operands straight out of the low 16 bits of ir. Floating-point
// compressed loads/stores (c.flw/c.fsw/c.fld/c.fsd and their *sp forms)
// are not implemented; a compressed-unaware toolchain's output still
// runs, just without that narrow slice of code density.
type CExt struct{ xlen int }

func NewCExt(xlen int) *CExt { return &CExt{xlen: xlen} }

func (e *CExt) Letter() byte                       { return 'C' }
func (e *CExt) InstallCSRs(b *csr.Bank, m Machine) {}
func (e *CExt) Reset(m Machine)                    {}
func (e *CExt) Step(m Machine)                     {}

func cRdp(ir uint32) int  { return int((ir>>7)&0x7) + 8 }
func cRs2p(ir uint32) int { return int((ir>>2)&0x7) + 8 }
func cRd(ir uint32) int   { return int((ir >> 7) & 0x1f) }
func cRs2(ir uint32) int  { return int((ir >> 2) & 0x1f) }

func cBit(ir uint32, b uint) uint32  { return (ir >> b) & 1 }
func cBits(ir uint32, hi, lo uint) uint32 {
	return (ir >> lo) & ((1 << (hi - lo + 1)) - 1)
}

func ciImm6(ir uint32) int64 {
	v := (cBit(ir, 12) << 5) | cBits(ir, 6, 2)
	return signExtend(v, 6)
}

func addi16spImm(ir uint32) int64 {
	v := (cBit(ir, 12) << 9) | (cBit(ir, 6) << 4) | (cBit(ir, 5) << 6) | (cBits(ir, 4, 3) << 7) | (cBit(ir, 2) << 5)
	return signExtend(v, 10)
}

func addi4spnImm(ir uint32) uint64 {
	return uint64((cBits(ir, 10, 7) << 6) | (cBits(ir, 12, 11) << 4) | (cBit(ir, 6) << 2) | (cBit(ir, 5) << 3))
}

func clCsWImm(ir uint32) uint64 {
	return uint64((cBits(ir, 12, 10) << 3) | (cBit(ir, 6) << 2) | (cBit(ir, 5) << 6))
}

func clCsDImm(ir uint32) uint64 {
	return uint64((cBits(ir, 12, 10) << 3) | (cBits(ir, 6, 5) << 6))
}

func cbBranchImm(ir uint32) int64 {
	v := (cBit(ir, 12) << 8) | (cBits(ir, 11, 10) << 3) | (cBits(ir, 6, 5) << 6) | (cBits(ir, 4, 3) << 1) | (cBit(ir, 2) << 5)
	return signExtend(v, 9)
}

func cjImm(ir uint32) int64 {
	v := (cBit(ir, 12) << 11) | (cBit(ir, 11) << 4) | (cBits(ir, 10, 9) << 8) | (cBit(ir, 8) << 10) |
		(cBit(ir, 7) << 6) | (cBit(ir, 6) << 7) | (cBits(ir, 5, 3) << 1) | (cBit(ir, 2) << 5)
	return signExtend(v, 12)
}

func cssWImm(ir uint32) uint64 {
	return uint64((cBits(ir, 12, 9) << 2) | (cBits(ir, 8, 7) << 6))
}

func cssDImm(ir uint32) uint64 {
	return uint64((cBits(ir, 12, 10) << 3) | (cBits(ir, 9, 7) << 6))
}

func clwspImm(ir uint32) uint64 {
	return uint64((cBit(ir, 12) << 5) | (cBits(ir, 6, 4) << 2) | (cBits(ir, 3, 2) << 6))
}

func cldspImm(ir uint32) uint64 {
	return uint64((cBit(ir, 12) << 5) | (cBits(ir, 6, 5) << 3) | (cBits(ir, 4, 2) << 6))
}

// cop builds a 16-bit compressed Instruction; code/mask are zero-extended
// into the 32-bit decoder trie the same way a fetched compressed word is.
func cop(code, mask uint16, name string, exec func(m Machine, ir uint32) error) Instruction {
	return insn{code: uint32(code), mask: uint32(mask), name: name, exec: exec}
}

func (e *CExt) Instructions() []Instruction {
	xlen := e.xlen
	var list []Instruction

	list = append(list,
		cop(0x0000, 0xe003, "c.addi4spn", func(m Machine, ir uint32) error {
			imm := addi4spnImm(ir)
			if imm == 0 {
				return illegalCompressed()
			}
			setX(m, cRdp(ir), m.GetX(2)+imm)
			return nil
		}),
		cop(0x4000, 0xe003, "c.lw", func(m Machine, ir uint32) error {
			addr := u64(xlen, int64(m.GetX(cRdpAsRs1(ir)))+int64(clCsWImm(ir)))
			v, ex := m.Load(addr, 4, true)
			if ex != nil {
				return ex
			}
			setX(m, cRdp(ir), v)
			return nil
		}),
		cop(0xc000, 0xe003, "c.sw", func(m Machine, ir uint32) error {
			addr := u64(xlen, int64(m.GetX(cRdpAsRs1(ir)))+int64(clCsWImm(ir)))
			return errOrNil(m.Store(addr, 4, m.GetX(cRs2p(ir))))
		}),

		cop(0x0001, 0xe003, "c.addi", func(m Machine, ir uint32) error {
			r := cRd(ir)
			setX(m, r, u64(xlen, int64(m.GetX(r))+ciImm6(ir)))
			return nil
		}),
		cop(0x4001, 0xe003, "c.li", func(m Machine, ir uint32) error {
			setX(m, cRd(ir), u64(xlen, ciImm6(ir)))
			return nil
		}),
		// c.lui and c.addi16sp share funct3=011/op=01 and are only told apart
		// by rd: rd==2 is c.addi16sp (stack-pointer adjust), anything else
		// (rd==0 reserved aside) is c.lui.
		cop(0x6001, 0xe003, "c.lui", func(m Machine, ir uint32) error {
			if cRd(ir) == 2 {
				setX(m, 2, u64(xlen, int64(m.GetX(2))+addi16spImm(ir)))
				return nil
			}
			if cRd(ir) == 0 {
				return illegalCompressed()
			}
			setX(m, cRd(ir), u64(xlen, ciImm6(ir)<<12))
			return nil
		}),
		cop(0x8001, 0xec03, "c.srli", func(m Machine, ir uint32) error {
			r := cRdp(ir)
			setX(m, r, m.GetX(r)>>uint(ciImm6(ir)&int64(shiftMask(xlen))))
			return nil
		}),
		cop(0x8401, 0xec03, "c.srai", func(m Machine, ir uint32) error {
			r := cRdp(ir)
			setX(m, r, u64(xlen, int64(m.GetX(r))>>uint(ciImm6(ir)&int64(shiftMask(xlen)))))
			return nil
		}),
		cop(0x8801, 0xec03, "c.andi", func(m Machine, ir uint32) error {
			r := cRdp(ir)
			setX(m, r, m.GetX(r)&u64(xlen, ciImm6(ir)))
			return nil
		}),
		cop(0x8c01, 0xfc63, "c.sub", func(m Machine, ir uint32) error {
			r := cRdp(ir)
			setX(m, r, u64(xlen, int64(m.GetX(r)-m.GetX(cRs2p(ir)))))
			return nil
		}),
		cop(0x8c21, 0xfc63, "c.xor", func(m Machine, ir uint32) error {
			r := cRdp(ir)
			setX(m, r, m.GetX(r)^m.GetX(cRs2p(ir)))
			return nil
		}),
		cop(0x8c41, 0xfc63, "c.or", func(m Machine, ir uint32) error {
			r := cRdp(ir)
			setX(m, r, m.GetX(r)|m.GetX(cRs2p(ir)))
			return nil
		}),
		cop(0x8c61, 0xfc63, "c.and", func(m Machine, ir uint32) error {
			r := cRdp(ir)
			setX(m, r, m.GetX(r)&m.GetX(cRs2p(ir)))
			return nil
		}),
		cop(0xa001, 0xe003, "c.j", func(m Machine, ir uint32) error {
			m.SetNextPC(uint64(int64(m.PC()) + cjImm(ir)))
			return nil
		}),
		cop(0xc001, 0xe003, "c.beqz", func(m Machine, ir uint32) error {
			if m.GetX(cRdp(ir)) == 0 {
				m.SetNextPC(uint64(int64(m.PC()) + cbBranchImm(ir)))
			}
			return nil
		}),
		cop(0xe001, 0xe003, "c.bnez", func(m Machine, ir uint32) error {
			if m.GetX(cRdp(ir)) != 0 {
				m.SetNextPC(uint64(int64(m.PC()) + cbBranchImm(ir)))
			}
			return nil
		}),
		cop(0x0002, 0xe003, "c.slli", func(m Machine, ir uint32) error {
			r := cRd(ir)
			setX(m, r, u64(xlen, int64(m.GetX(r)<<uint(ciImm6(ir)&int64(shiftMask(xlen))))))
			return nil
		}),
		cop(0x4002, 0xe003, "c.lwsp", func(m Machine, ir uint32) error {
			addr := m.GetX(2) + clwspImm(ir)
			v, ex := m.Load(addr, 4, true)
			if ex != nil {
				return ex
			}
			setX(m, cRd(ir), v)
			return nil
		}),
		cop(0x8002, 0xe003, "c.cr", func(m Machine, ir uint32) error {
			return crGroup(m, ir)
		}),
		cop(0xc002, 0xe003, "c.swsp", func(m Machine, ir uint32) error {
			addr := m.GetX(2) + cssWImm(ir)
			return errOrNil(m.Store(addr, 4, m.GetX(cRs2(ir))))
		}),
	)

	if xlen == 32 {
		list = append(list,
			cop(0x2001, 0xe003, "c.jal", func(m Machine, ir uint32) error {
				setX(m, 1, m.PC()+2)
				m.SetNextPC(uint64(int64(m.PC()) + cjImm(ir)))
				return nil
			}),
		)
	}

	if xlen == 64 {
		list = append(list,
			cop(0x6000, 0xe003, "c.ld", func(m Machine, ir uint32) error {
				addr := m.GetX(cRdpAsRs1(ir)) + clCsDImm(ir)
				v, ex := m.Load(addr, 8, false)
				if ex != nil {
					return ex
				}
				setX(m, cRdp(ir), v)
				return nil
			}),
			cop(0xe000, 0xe003, "c.sd", func(m Machine, ir uint32) error {
				addr := m.GetX(cRdpAsRs1(ir)) + clCsDImm(ir)
				return errOrNil(m.Store(addr, 8, m.GetX(cRs2p(ir))))
			}),
			cop(0x2001, 0xe003, "c.addiw", func(m Machine, ir uint32) error {
				r := cRd(ir)
				setX(m, r, sext32(uint32(int32(uint32(m.GetX(r)))+int32(ciImm6(ir)))))
				return nil
			}),
			cop(0x9c01, 0xfc63, "c.subw", func(m Machine, ir uint32) error {
				r := cRdp(ir)
				setX(m, r, sext32(uint32(m.GetX(r))-uint32(m.GetX(cRs2p(ir)))))
				return nil
			}),
			cop(0x9c21, 0xfc63, "c.addw", func(m Machine, ir uint32) error {
				r := cRdp(ir)
				setX(m, r, sext32(uint32(m.GetX(r))+uint32(m.GetX(cRs2p(ir)))))
				return nil
			}),
			cop(0x6002, 0xe003, "c.ldsp", func(m Machine, ir uint32) error {
				addr := m.GetX(2) + cldspImm(ir)
				v, ex := m.Load(addr, 8, false)
				if ex != nil {
					return ex
				}
				setX(m, cRd(ir), v)
				return nil
			}),
			cop(0xe002, 0xe003, "c.sdsp", func(m Machine, ir uint32) error {
				addr := m.GetX(2) + cssDImm(ir)
				return errOrNil(m.Store(addr, 8, m.GetX(cRs2(ir))))
			}),
		)
	}

	return list
}

// cRdpAsRs1 is cRdp under its CL/CS role as the base-address register
// (the same 3-bit field, named rd' in CL and rs1' in CS; both alias rs1'
// here since all load/store forms address relative to it).
func cRdpAsRs1(ir uint32) int { return int((ir>>7)&0x7) + 8 }

func illegalCompressed() error {
	return trap.NewException(trap.IllegalInsn, 0)
}

func trapBreakpoint(m Machine) error {
	return trap.NewExecutedException(trap.Breakpoint, m.PC())
}

// crGroup decodes the CR-format quadrant-2 bit-12-selected group: C.MV /
// C.ADD (bit12=0/1 with rs2!=0), C.JR / C.JALR (rs2=0), and C.EBREAK
// (rd=rs2=0, bit12=1).
func crGroup(m Machine, ir uint32) error {
	rdv := cRd(ir)
	rs2v := cRs2(ir)
	bit12 := cBit(ir, 12)
	switch {
	case bit12 == 0 && rs2v == 0:
		if rdv == 0 {
			return illegalCompressed()
		}
		m.SetNextPC(m.GetX(rdv) &^ 1)
		return nil
	case bit12 == 0:
		setX(m, rdv, m.GetX(rs2v))
		return nil
	case bit12 == 1 && rdv == 0 && rs2v == 0:
		return trapBreakpoint(m)
	case bit12 == 1 && rs2v == 0:
		link := m.PC() + 2
		target := m.GetX(rdv) &^ 1
		setX(m, 1, link)
		m.SetNextPC(target)
		return nil
	default:
		setX(m, rdv, u64(64, int64(m.GetX(rdv)+m.GetX(rs2v))))
		return nil
	}
}
