package hart

import "github.com/rvsim/rvsim/emu/csr"

// mstatusFieldSet indexes mstatusReg.Fields by name so TrapReturn,
// MarkFSDirty, and the MMU walk can reach individual bits without a
// string lookup on every access.
type mstatusFieldSet struct {
	sie, mie, spie, mpie, spp, mpp int
	fs, xs                         int
	mprv, sum, mxr, tvm, tw, tsr   int
	sd                             int
}

const (
	mstatusSIE  = uint64(1) << 1
	mstatusMIE  = uint64(1) << 3
	mstatusSPIE = uint64(1) << 5
	mstatusMPIE = uint64(1) << 7
	mstatusSPP  = uint64(1) << 8
	mstatusMPP  = uint64(3) << 11
	mstatusFS   = uint64(3) << 13
	mstatusXS   = uint64(3) << 15
	mstatusMPRV = uint64(1) << 17
	mstatusSUM  = uint64(1) << 18
	mstatusMXR  = uint64(1) << 19
	mstatusTVM  = uint64(1) << 20
	mstatusTW   = uint64(1) << 21
	mstatusTSR  = uint64(1) << 22
)

// installCoreCSRs defines the machine-level CSRs that belong to the hart
// itself rather than any extension (spec.md §6's CSR address map), so that
// SExt/UExt/FExt can compose views over them via InstallCSRs at the next
// stage of construction.
func (h *Hart) installCoreCSRs() {
	h.installMstatus()
	h.installMisa()
	h.medelegReg = h.plainReg(0x302, "medeleg")
	h.midelegReg = h.plainReg(0x303, "mideleg")
	h.installMie()
	h.mtvecReg = h.plainReg(0x305, "mtvec")
	h.mcounterReg = h.plainReg(0x306, "mcounteren")
	h.mscratchReg = h.plainReg(0x340, "mscratch")
	h.mepcReg = h.plainReg(0x341, "mepc")
	h.mcauseReg = h.plainReg(0x342, "mcause")
	h.mtvalReg = h.plainReg(0x343, "mtval")
	h.installMip()
	h.installPMP()
	h.bank.Define(&csr.Reg{Addr: 0x7a0, Name: "tselect"}) // no trigger module: always reads 0
	h.installCounters()
	h.installIDRegs()

	// S-level registers not owned by SExt (sstatus/sie/sip are composed
	// views SExt installs; these four are plain storage SExt would
	// otherwise have to reach back here for).
	h.satpReg = h.plainReg(0x180, "satp")
	h.stvecReg = h.plainReg(0x105, "stvec")
	h.plainReg(0x106, "scounteren")
	h.sscratchReg = h.plainReg(0x140, "sscratch")
	h.sepcReg = h.plainReg(0x141, "sepc")
	h.scauseReg = h.plainReg(0x142, "scause")
	h.stvalReg = h.plainReg(0x143, "stval")
}

func (h *Hart) plainReg(addr uint16, name string) *csr.Reg {
	r := &csr.Reg{Addr: addr, Name: name, Fields: []csr.Field{{Name: name, Mask: ^uint64(0), Access: csr.RW}}}
	h.bank.Define(r)
	return r
}

func (h *Hart) installMstatus() {
	reg := &csr.Reg{Addr: 0x300, Name: "mstatus"}
	sdMask := uint64(1) << 31
	if h.xlen == 64 {
		sdMask = uint64(1) << 63
	}
	reg.Fields = []csr.Field{
		{Name: "sie", Mask: mstatusSIE, Access: csr.RW},
		{Name: "mie", Mask: mstatusMIE, Access: csr.RW},
		{Name: "spie", Mask: mstatusSPIE, Access: csr.RW},
		{Name: "mpie", Mask: mstatusMPIE, Access: csr.RW},
		{Name: "spp", Mask: mstatusSPP, Access: csr.RW},
		{Name: "mpp", Mask: mstatusMPP, Access: csr.RW},
		{Name: "fs", Mask: mstatusFS, Access: csr.RW},
		{Name: "xs", Mask: mstatusXS, Access: csr.RO},
		{Name: "mprv", Mask: mstatusMPRV, Access: csr.RW},
		{Name: "sum", Mask: mstatusSUM, Access: csr.RW},
		{Name: "mxr", Mask: mstatusMXR, Access: csr.RW},
		{Name: "tvm", Mask: mstatusTVM, Access: csr.RW},
		{Name: "tw", Mask: mstatusTW, Access: csr.RW},
		{Name: "tsr", Mask: mstatusTSR, Access: csr.RW},
		{
			// SD is synthesized, never stored: "FS == 3 || XS == 3"
			// (spec.md §8's "SD law"). The closure captures reg itself
			// rather than a value, so it observes the register's current
			// raw bits even though reg.Fields isn't fully built yet.
			Name: "sd", Mask: sdMask, Access: csr.RO,
			ReadXform: func(uint64) uint64 {
				if reg.RawBits()&mstatusFS == mstatusFS || reg.RawBits()&mstatusXS == mstatusXS {
					return 1
				}
				return 0
			},
		},
	}
	h.bank.Define(reg)
	h.mstatusReg = reg
	h.mstatusFields = mstatusFieldSet{
		sie: 0, mie: 1, spie: 2, mpie: 3, spp: 4, mpp: 5,
		fs: 6, xs: 7, mprv: 8, sum: 9, mxr: 10, tvm: 11, tw: 12, tsr: 13, sd: 14,
	}
}

func (h *Hart) installMisa() {
	reg := &csr.Reg{Addr: 0x301, Name: "misa"}
	mxl := uint64(1)
	shift := uint(30)
	if h.xlen == 64 {
		mxl = 2
		shift = 62
	}
	var extBits uint64
	for i, ext := range h.extensions {
		if ext != nil {
			extBits |= 1 << uint(i)
		}
	}
	value := (mxl << shift) | extBits
	reg.Fields = []csr.Field{{Name: "misa", Mask: ^uint64(0), Access: csr.RO}}
	h.bank.Define(reg)
	reg.SetRawBits(value)
	h.misaReg = reg
}

func (h *Hart) installMie() {
	reg := &csr.Reg{Addr: 0x304, Name: "mie", Fields: []csr.Field{{Name: "mie", Mask: ^uint64(0), Access: csr.RW}}}
	h.bank.Define(reg)
	h.mieReg = reg
}

// installMip wires MSIP/MTIP/MEIP as read-only windows onto the platform's
// IRQ lines (spec.md §3, "mip.MSIP/MTIP are virtualized as reads of the
// platform IRQ vector"); SSIP/STIP/SEIP remain plain software-visible
// storage, matching a software-only PLIC/SEI model at this emulator's
// fidelity.
func (h *Hart) installMip() {
	reg := &csr.Reg{Addr: 0x344, Name: "mip", Fields: []csr.Field{
		{Name: "ssip", Mask: 1 << 1, Access: csr.RW},
		{Name: "msip", Mask: 1 << 3, Access: csr.RO, ReadXform: func(uint64) uint64 {
			if h.irq.MSIP {
				return 1
			}
			return 0
		}},
		{Name: "stip", Mask: 1 << 5, Access: csr.RW},
		{Name: "mtip", Mask: 1 << 7, Access: csr.RO, ReadXform: func(uint64) uint64 {
			if h.irq.MTIP {
				return 1
			}
			return 0
		}},
		{Name: "seip", Mask: 1 << 9, Access: csr.RW},
		{Name: "meip", Mask: 1 << 11, Access: csr.RO, ReadXform: func(uint64) uint64 {
			if h.irq.MEIP {
				return 1
			}
			return 0
		}},
	}}
	h.bank.Define(reg)
	h.mipReg = reg
}

// installPMP installs pmpcfg0..3/pmpaddr0..15. Real rv64 hardware treats
// the odd pmpcfgN CSRs (which would hold entries packed 8 bytes instead of
// 4) as illegal, so only pmpcfg0/pmpcfg2 are installed there; rv32 installs
// all four 4-byte configs.
func (h *Hart) installPMP() {
	for i := 0; i < 4; i++ {
		if h.xlen == 64 && i%2 == 1 {
			continue
		}
		h.plainReg(uint16(0x3a0+i), pmpcfgName(i))
	}
	for i := 0; i < 16; i++ {
		h.plainReg(uint16(0x3b0+i), pmpaddrName(i))
	}
}

func pmpcfgName(i int) string  { return "pmpcfg" + string(rune('0'+i)) }
func pmpaddrName(i int) string { return "pmpaddr" + itoa(i) }

func itoa(i int) string {
	if i < 10 {
		return string(rune('0' + i))
	}
	return string(rune('0'+i/10)) + string(rune('0'+i%10))
}

// counterReg installs a free-running counter as a pair of xlen-wide CSR
// windows (mcycle/mcycleh, minstret/minstreth on rv32; a single 64-bit CSR
// on rv64) over a uint64 the hart increments itself every step.
func (h *Hart) installCounters() {
	h.bank.Define(h.counterReg(0xb00, "mcycle", func() uint64 { return h.cycle }, func(v uint64) { h.cycle = v }, 0))
	h.bank.Define(h.counterReg(0xb02, "minstret", func() uint64 { return h.retired }, func(v uint64) { h.retired = v }, 0))
	if h.xlen == 32 {
		h.bank.Define(h.counterReg(0xb80, "mcycleh", func() uint64 { return h.cycle }, func(v uint64) { h.cycle = v }, 32))
		h.bank.Define(h.counterReg(0xb82, "minstreth", func() uint64 { return h.retired }, func(v uint64) { h.retired = v }, 32))
	}
}

func (h *Hart) counterReg(addr uint16, name string, get func() uint64, set func(uint64), wordShift uint) *csr.Reg {
	return &csr.Reg{Addr: addr, Name: name, Fields: []csr.Field{{
		Name: name, Mask: ^uint64(0), Access: csr.RW,
		ReadXform: func(uint64) uint64 {
			if wordShift == 0 {
				return get()
			}
			return get() >> wordShift
		},
		WriteXform: func(incoming uint64) uint64 {
			if wordShift == 0 && h.xlen == 64 {
				set(incoming)
			} else if wordShift == 0 {
				set((get() &^ 0xffffffff) | (incoming & 0xffffffff))
			} else {
				set((get() & 0xffffffff) | (incoming << wordShift))
			}
			return 0
		},
	}}}
}

func (h *Hart) installIDRegs() {
	h.bank.Define(&csr.Reg{Addr: 0xf11, Name: "mvendorid", Fields: []csr.Field{{Name: "mvendorid", Mask: ^uint64(0), Access: csr.RO}}})
	h.bank.Define(&csr.Reg{Addr: 0xf12, Name: "marchid", Fields: []csr.Field{{Name: "marchid", Mask: ^uint64(0), Access: csr.RO}}})
	h.bank.Define(&csr.Reg{Addr: 0xf13, Name: "mimpid", Fields: []csr.Field{{Name: "mimpid", Mask: ^uint64(0), Access: csr.RO}}})
	reg := &csr.Reg{Addr: 0xf14, Name: "mhartid", Fields: []csr.Field{{Name: "mhartid", Mask: ^uint64(0), Access: csr.RO}}}
	h.bank.Define(reg)
}

func (h *Hart) mhartidSet() {
	reg := h.bank.Lookup(0xf14)
	if reg != nil {
		reg.SetRawBits(uint64(h.id))
	}
}

// counterVisible implements the mcounteren/scounteren gate spec.md §4.2
// calls out for cycle/instret/time outside M-mode.
func (h *Hart) counterVisible(addr uint16) bool {
	var bit uint64
	switch addr {
	case 0xc00, 0xc80:
		bit = 1 << 0 // CY
	case 0xc01, 0xc81:
		bit = 1 << 1 // TM
	case 0xc02, 0xc82:
		bit = 1 << 2 // IR
	default:
		return true
	}
	if h.priv == csr.Machine {
		return true
	}
	if h.mcounterReg.RawBits()&bit == 0 {
		return false
	}
	if h.priv == csr.User {
		sc := h.bank.Lookup(0x106)
		if sc != nil && sc.RawBits()&bit == 0 {
			return false
		}
	}
	return true
}

// fpVisible implements "for f/d [CSRs], only when mstatus.FS != 0"
// (spec.md §3).
func (h *Hart) fpVisible(addr uint16) bool {
	switch addr {
	case 0x001, 0x002, 0x003:
		return h.mstatusReg.GetField(h.mstatusFields.fs) != 0
	default:
		return true
	}
}

// ReadCSR implements isa.Machine, layering the counter/FP visibility gates
// on top of Bank.Read's privilege gate.
func (h *Hart) ReadCSR(addr uint16) (uint64, bool) {
	if !h.counterVisible(addr) || !h.fpVisible(addr) {
		return 0, false
	}
	return h.bank.Read(addr, h.priv)
}

// WriteCSR implements isa.Machine. A write to satp or any PMP CSR flushes
// the (non-existent, see FlushCaches) translation cache per spec.md §4.3.
func (h *Hart) WriteCSR(addr uint16, value uint64) bool {
	if !h.counterVisible(addr) || !h.fpVisible(addr) {
		return false
	}
	ok := h.bank.Write(addr, value, h.priv)
	if ok && (addr == 0x180 || (addr >= 0x3a0 && addr <= 0x3bf)) {
		h.FlushCaches()
	}
	return ok
}

// pmpEntries decodes pmpcfg0..3/pmpaddr0..15 into the mmu package's walk
// input, spec.md §4.3's PMP table.
func (h *Hart) pmpEntries() []pmpEntrySource {
	var out []pmpEntrySource
	for i := 0; i < 16; i++ {
		cfgAddr, cfgShift := uint16(0x3a0+i/4), uint((i%4)*8)
		if h.xlen == 64 {
			cfgAddr, cfgShift = uint16(0x3a0+(i/8)*2), uint((i%8)*8)
		}
		cfgReg := h.bank.Lookup(cfgAddr)
		if cfgReg == nil {
			continue
		}
		cfgByte := uint8(cfgReg.RawBits() >> cfgShift)
		addrReg := h.bank.Lookup(uint16(0x3b0 + i))
		var prevAddr uint64
		if i > 0 {
			if prev := h.bank.Lookup(uint16(0x3b0 + i - 1)); prev != nil {
				prevAddr = prev.RawBits()
			}
		}
		var rawAddr uint64
		if addrReg != nil {
			rawAddr = addrReg.RawBits()
		}
		out = append(out, pmpEntrySource{
			R: cfgByte&0x1 != 0, W: cfgByte&0x2 != 0, X: cfgByte&0x4 != 0,
			AMode: (cfgByte >> 3) & 0x3, Locked: cfgByte&0x80 != 0,
			RawAddr: rawAddr, PrevRawAddr: prevAddr,
		})
	}
	return out
}

// pmpEntrySource mirrors mmu.PMPEntry's fields; kept here rather than
// importing mmu into this file's otherwise CSR-only concerns, and converted
// in loadstore.go where mmu is already imported.
type pmpEntrySource struct {
	R, W, X, Locked bool
	AMode           uint8
	RawAddr         uint64
	PrevRawAddr     uint64
}
