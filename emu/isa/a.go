package isa

import (
	"github.com/rvsim/rvsim/emu/csr"
	"github.com/rvsim/rvsim/emu/trap"
)

// AExt is the atomic-memory extension: load-reserved/store-conditional
// plus the AMO read-modify-write family, wired through the bus's
// reservation table (emu/bus.Acquire/HasReservation/Release).
type AExt struct{ xlen int }

func NewAExt(xlen int) *AExt { return &AExt{xlen: xlen} }

func (e *AExt) Letter() byte                       { return 'A' }
func (e *AExt) InstallCSRs(b *csr.Bank, m Machine) {}
func (e *AExt) Reset(m Machine)                    {}
func (e *AExt) Step(m Machine)                     {}

func amoName(base string, width int) string {
	if width == 8 {
		return base + ".d"
	}
	return base + ".w"
}

func (e *AExt) Instructions() []Instruction {
	var list []Instruction
	list = append(list, amoWidth(32, e.xlen)...)
	if e.xlen == 64 {
		list = append(list, amoWidth(64, e.xlen)...)
	}
	return list
}

// amoWidth builds the lr/sc/amo* family for one access width (32 or 64
// bits); funct5 in bits [31:27] selects the operation, aq/rl in [26:25]
// are accepted but not modeled (single-hart-at-a-time ordering makes them
// no-ops, spec.md §5).
func amoWidth(width int, xlen int) []Instruction {
	wbytes := width / 8
	funct3 := uint32(2)
	if width == 64 {
		funct3 = 3
	}
	base := uint32(0b0101111) | (funct3 << 12)
	mask := uint32(0xf800707f)

	mkLoad := func(addr uint64, m Machine, signed bool) (uint64, *trap.Exception) {
		return m.Load(addr, wbytes, signed)
	}

	read := func(m Machine, addr uint64) (uint64, *trap.Exception) {
		if width == 32 {
			return mkLoad(addr, m, true)
		}
		return mkLoad(addr, m, false)
	}

	amo := func(funct5 uint32, name string, f func(old, operand uint64) uint64) Instruction {
		return op(base|(funct5<<27), mask, amoName(name, wbytes), func(m Machine, ir uint32) error {
			addr := m.GetX(rs1(ir))
			old, ex := read(m, addr)
			if ex != nil {
				return ex
			}
			operand := m.GetX(rs2(ir))
			nv := f(old, operand)
			var storeEx *trap.Exception
			if width == 32 {
				storeEx = m.Store(addr, 4, nv&0xffffffff)
			} else {
				storeEx = m.Store(addr, 8, nv)
			}
			if storeEx != nil {
				return storeEx
			}
			setX(m, rd(ir), old)
			return nil
		})
	}

	list := []Instruction{
		op(base|(0x02<<27), mask, amoName("lr", wbytes), func(m Machine, ir uint32) error {
			addr := m.GetX(rs1(ir))
			v, ex := read(m, addr)
			if ex != nil {
				return ex
			}
			m.ReleaseReservations()
			m.AcquireReservation(addr, uint64(wbytes))
			setX(m, rd(ir), v)
			return nil
		}),
		op(base|(0x03<<27), mask, amoName("sc", wbytes), func(m Machine, ir uint32) error {
			addr := m.GetX(rs1(ir))
			ok := m.HasReservation(addr, uint64(wbytes))
			result := uint64(1)
			if ok {
				var stEx *trap.Exception
				if width == 32 {
					stEx = m.Store(addr, 4, m.GetX(rs2(ir))&0xffffffff)
				} else {
					stEx = m.Store(addr, 8, m.GetX(rs2(ir)))
				}
				if stEx != nil {
					return stEx
				}
				result = 0
			}
			m.ReleaseReservations()
			setX(m, rd(ir), result)
			return nil
		}),
		amo(0x01, "amoswap", func(old, operand uint64) uint64 { return operand }),
		amo(0x00, "amoadd", func(old, operand uint64) uint64 { return old + operand }),
		amo(0x04, "amoxor", func(old, operand uint64) uint64 { return old ^ operand }),
		amo(0x0c, "amoand", func(old, operand uint64) uint64 { return old & operand }),
		amo(0x08, "amoor", func(old, operand uint64) uint64 { return old | operand }),
		amo(0x10, "amomin", func(old, operand uint64) uint64 {
			if width == 32 {
				if int32(old) < int32(operand) {
					return old
				}
				return operand
			}
			if int64(old) < int64(operand) {
				return old
			}
			return operand
		}),
		amo(0x14, "amomax", func(old, operand uint64) uint64 {
			if width == 32 {
				if int32(old) > int32(operand) {
					return old
				}
				return operand
			}
			if int64(old) > int64(operand) {
				return old
			}
			return operand
		}),
		amo(0x18, "amominu", func(old, operand uint64) uint64 {
			if old < operand {
				return old
			}
			return operand
		}),
		amo(0x1c, "amomaxu", func(old, operand uint64) uint64 {
			if old > operand {
				return old
			}
			return operand
		}),
	}
	return list
}
