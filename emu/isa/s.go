package isa

import "github.com/rvsim/rvsim/emu/csr"

// SExt is the supervisor-mode extension: it does not add instructions
// (sret/sfence.vma live in the base system-instruction set since they are
// encoded in the always-present SYSTEM major opcode) but it installs the
// S-level CSR bank, including the sstatus/sie/sip *views* spec.md §4.2/§9
// calls for — fields that are not separately stored, only filtered slices
// of mstatus/mie/mip spliced through mideleg.
type SExt struct{}

func NewSExt() *SExt { return &SExt{} }

func (e *SExt) Letter() byte    { return 'S' }
func (e *SExt) Instructions() []Instruction { return nil }
func (e *SExt) Reset(m Machine) {}
func (e *SExt) Step(m Machine)  {}

// sstatusMask covers the mstatus bits visible through the sstatus window:
// SIE, SPIE, SPP, FS, XS, SUM, MXR, plus SD (computed by mstatus's own
// field already, so it passes through untouched).
const sstatusMask = (1 << 1) | (1 << 5) | (1 << 8) | (3 << 13) | (3 << 15) | (1 << 18) | (1 << 19) | (uint64(1) << 63)

// viewField builds a CSR field that is a live, filtered window onto a
// register stored elsewhere, composing through src's own Get/Set so any
// transforms src already carries (mstatus's computed SD bit) still apply.
func viewField(src *csr.Reg, maskFn func() uint64) csr.Field {
	return csr.Field{
		Name:   "view",
		Mask:   ^uint64(0),
		Access: csr.RW,
		ReadXform: func(uint64) uint64 {
			return src.Get() & maskFn()
		},
		WriteXform: func(incoming uint64) uint64 {
			mask := maskFn()
			merged := (src.Get() &^ mask) | (incoming & mask)
			src.Set(merged)
			return 0
		},
	}
}

func constMask(v uint64) func() uint64 { return func() uint64 { return v } }

func (e *SExt) InstallCSRs(b *csr.Bank, m Machine) {
	mstatusReg := b.Lookup(0x300)
	mieReg := b.Lookup(0x304)
	mipReg := b.Lookup(0x344)
	midelegReg := b.Lookup(0x303)

	sDelegMask := func() uint64 {
		if midelegReg == nil {
			return 0
		}
		return midelegReg.RawBits()
	}

	b.Define(&csr.Reg{Addr: 0x100, Name: "sstatus", Fields: []csr.Field{viewField(mstatusReg, constMask(sstatusMask))}})
	b.Define(&csr.Reg{Addr: 0x104, Name: "sie", Fields: []csr.Field{viewField(mieReg, sDelegMask)}})
	b.Define(&csr.Reg{Addr: 0x144, Name: "sip", Fields: []csr.Field{viewField(mipReg, sDelegMask)}})

	plain := func(addr uint16, name string) *csr.Reg {
		r := &csr.Reg{Addr: addr, Name: name, Fields: []csr.Field{{Name: name, Mask: ^uint64(0), Access: csr.RW}}}
		b.Define(r)
		return r
	}
	plain(0x105, "stvec")
	plain(0x106, "scounteren")
	plain(0x140, "sscratch")
	plain(0x141, "sepc")
	plain(0x142, "scause")
	plain(0x143, "stval")
	plain(0x180, "satp")
}
