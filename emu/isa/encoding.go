package isa

// Operand accessors shared by every RV32/64 32-bit instruction format.
// Compressed forms decode their own fields directly in c.go, the formats
// there being too irregular to share this table.

func rd(ir uint32) int  { return int((ir >> 7) & 0x1f) }
func rs1(ir uint32) int { return int((ir >> 15) & 0x1f) }
func rs2(ir uint32) int { return int((ir >> 20) & 0x1f) }
func rs3(ir uint32) int { return int((ir >> 27) & 0x1f) }
func funct3(ir uint32) uint32 { return (ir >> 12) & 0x7 }
func funct7(ir uint32) uint32 { return (ir >> 25) & 0x7f }
func funct2(ir uint32) uint32 { return (ir >> 25) & 0x3 } // R4-type (fused FP) fmt field
func csrAddr(ir uint32) uint16 { return uint16((ir >> 20) & 0xfff) }
func shamt(ir uint32, xlen int) uint32 {
	if xlen == 32 {
		return (ir >> 20) & 0x1f
	}
	return (ir >> 20) & 0x3f
}
func rm(ir uint32) uint32 { return (ir >> 12) & 0x7 } // FP rounding mode field

func signExtend(v uint32, bits int) int64 {
	shift := 32 - bits
	return int64(int32(v<<shift) >> shift)
}

func immI(ir uint32) int64 {
	return signExtend(ir>>20, 12)
}

func immS(ir uint32) int64 {
	v := ((ir >> 25) << 5) | ((ir >> 7) & 0x1f)
	return signExtend(v, 12)
}

func immB(ir uint32) int64 {
	v := (((ir >> 31) & 1) << 12) |
		(((ir >> 7) & 1) << 11) |
		(((ir >> 25) & 0x3f) << 5) |
		(((ir >> 8) & 0xf) << 1)
	return signExtend(v, 13)
}

func immU(ir uint32) int64 {
	return int64(int32(ir & 0xfffff000))
}

func immJ(ir uint32) int64 {
	v := (((ir >> 31) & 1) << 20) |
		(((ir >> 12) & 0xff) << 12) |
		(((ir >> 20) & 1) << 11) |
		(((ir >> 21) & 0x3ff) << 1)
	return signExtend(v, 21)
}

// insn is the concrete Instruction used by every extension in this
// package: a fixed code/mask pair plus an exec closure, mirroring the
// teacher's table-driven opcode dispatch (emu/opcodemap) but keyed
// through the decoder trie instead of a flat array index.
type insn struct {
	code, mask uint32
	name       string
	exec       func(m Machine, ir uint32) error
}

func (i insn) Code() uint32                       { return i.code }
func (i insn) Mask() uint32                       { return i.mask }
func (i insn) Name() string                       { return i.name }
func (i insn) Execute(m Machine, ir uint32) error { return i.exec(m, ir) }

func op(code, mask uint32, name string, exec func(m Machine, ir uint32) error) Instruction {
	return insn{code: code, mask: mask, name: name, exec: exec}
}

func u64(xlen int, v int64) uint64 {
	if xlen == 32 {
		return uint64(uint32(v))
	}
	return uint64(v)
}

// sext32 sign-extends a 32-bit result to 64 bits (regardless of xlen),
// used by every *W variant (addiw, sllw, mulw, divw, ...).
func sext32(v uint32) uint64 { return uint64(int64(int32(v))) }
