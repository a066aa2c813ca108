package isa

import "github.com/rvsim/rvsim/emu/csr"

// UExt installs the user-visible CSR window: the fflags/frm/fcsr alias
// family over F's rounding/flag state, and the cycle/instret/time
// read-only counter shadows (the privilege/counteren gate that actually
// hides these from U-mode lives in hart.ReadCSR, since it depends on
// mcounteren/scounteren which are core/S state this package cannot see
// without creating the very import cycle the isa/hart split exists to
// avoid).
type UExt struct{}

func NewUExt() *UExt { return &UExt{} }

func (e *UExt) Letter() byte                { return 'U' }
func (e *UExt) Instructions() []Instruction { return nil }
func (e *UExt) Reset(m Machine)             {}
func (e *UExt) Step(m Machine)              {}

func (e *UExt) InstallCSRs(b *csr.Bank, m Machine) {
	if m.HasExtension('F') {
		fcsr := &csr.Reg{Addr: 0x003, Name: "fcsr", Fields: []csr.Field{
			{Name: "fflags", Mask: 0x1f, Access: csr.RW},
			{Name: "frm", Mask: 0xe0, Access: csr.RW},
		}}
		b.Define(fcsr)
		b.Define(&csr.Reg{Addr: 0x001, Name: "fflags", Fields: []csr.Field{viewField(fcsr, constMask(0x1f))}})
		b.Define(&csr.Reg{Addr: 0x002, Name: "frm", Fields: []csr.Field{viewField(fcsr, constMask(0xe0))}})
	}

	mcycle := b.Lookup(0xb00)
	minstret := b.Lookup(0xb02)
	if mcycle != nil {
		b.Define(&csr.Reg{Addr: 0xc00, Name: "cycle", Fields: []csr.Field{viewField(mcycle, constMask(^uint64(0)))}})
	}
	if minstret != nil {
		b.Define(&csr.Reg{Addr: 0xc02, Name: "instret", Fields: []csr.Field{viewField(minstret, constMask(^uint64(0)))}})
	}
	// time is backed by its own storage word, which nothing in this tree
	// updates: the CLINT keeps mtime in its own register
	// (emu/platform/clint/clint.go) and does not write this CSR.
	b.Define(&csr.Reg{Addr: 0xc01, Name: "time", Fields: []csr.Field{{Name: "time", Mask: ^uint64(0), Access: csr.RO}}})
}
