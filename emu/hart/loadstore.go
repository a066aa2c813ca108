package hart

import (
	"github.com/rvsim/rvsim/emu/csr"
	"github.com/rvsim/rvsim/emu/mmu"
	"github.com/rvsim/rvsim/emu/trap"
)

// satpMode decodes satp.MODE, spec.md §4.3's Sv32/Sv39/Sv48 selector; the
// field layout differs by xlen so this is parameterized rather than a
// csr.Field (a Field's Mask can't vary with xlen after construction).
func (h *Hart) satpMode() (mmu.Mode, uint64) {
	raw := h.satpReg.RawBits()
	if h.xlen == 32 {
		if raw>>31&1 == 0 {
			return mmu.Bare, 0
		}
		return mmu.Sv32, raw & 0x3fffff
	}
	switch (raw >> 60) & 0xf {
	case 8:
		return mmu.Sv39, raw & 0xfffffffffff
	case 9:
		return mmu.Sv48, raw & 0xfffffffffff
	default:
		return mmu.Bare, 0
	}
}

func (h *Hart) walkConfig(op mmu.AccessType) mmu.Walk {
	mode, ppn := h.satpMode()
	effPriv := h.priv
	if op != mmu.Fetch && h.mstatusReg.GetField(h.mstatusFields.mprv) != 0 {
		effPriv = csr.Privilege(h.mstatusReg.GetField(h.mstatusFields.mpp))
	}
	var pmpEntries []mmu.PMPEntry
	for _, e := range h.pmpEntries() {
		pmpEntries = append(pmpEntries, mmu.PMPEntry{
			R: e.R, W: e.W, X: e.X, Locked: e.Locked,
			AMode: e.AMode, RawAddr: e.RawAddr, PrevRawAddr: e.PrevRawAddr,
		})
	}
	return mmu.Walk{
		Xlen:        h.xlen,
		Mode:        mode,
		RootPPN:     ppn,
		EffPriv:     effPriv,
		MXR:         h.mstatusReg.GetField(h.mstatusFields.mxr) != 0,
		SUM:         h.mstatusReg.GetField(h.mstatusFields.sum) != 0,
		EnableDirty: h.enableDirty,
		PMP:         pmpEntries,
		MPriv:       h.priv,
	}
}

// Translate implements isa.Machine, spec.md §4.3.
func (h *Hart) Translate(va uint64, length uint64, op mmu.AccessType) (uint64, *trap.Exception) {
	return mmu.Translate(h.bus, h.walkConfig(op), va, length, op)
}

func misalignedCode(op mmu.AccessType) uint {
	switch op {
	case mmu.Load:
		return trap.LoadMisaligned
	case mmu.Store:
		return trap.StoreMisaligned
	default:
		return trap.FetchMisaligned
	}
}

func accessCode(op mmu.AccessType) uint {
	switch op {
	case mmu.Load:
		return trap.LoadAccess
	case mmu.Store:
		return trap.StoreAccess
	default:
		return trap.FetchAccess
	}
}

// Load implements isa.Machine, spec.md §4.6: PMP+MMU+bus sequence with
// sign extension per width.
func (h *Hart) Load(addr uint64, width int, signed bool) (uint64, *trap.Exception) {
	if addr%uint64(width) != 0 {
		return 0, trap.NewException(misalignedCode(mmu.Load), addr)
	}
	pa, ex := h.Translate(addr, uint64(width), mmu.Load)
	if ex != nil {
		return 0, ex
	}
	var raw uint64
	var err error
	switch width {
	case 1:
		var v uint8
		v, err = h.bus.Read8(pa)
		raw = uint64(v)
	case 2:
		var v uint16
		v, err = h.bus.Read16(pa)
		raw = uint64(v)
	case 4:
		var v uint32
		v, err = h.bus.Read32(pa)
		raw = uint64(v)
	case 8:
		raw, err = h.bus.Read64(pa)
	}
	if err != nil {
		return 0, trap.NewException(accessCode(mmu.Load), addr)
	}
	if signed {
		return signExtendWidth(raw, width), nil
	}
	return raw, nil
}

func signExtendWidth(v uint64, width int) uint64 {
	switch width {
	case 1:
		return uint64(int64(int8(v)))
	case 2:
		return uint64(int64(int16(v)))
	case 4:
		return uint64(int64(int32(v)))
	default:
		return v
	}
}

// Store implements isa.Machine, spec.md §4.6. Bus.write already invalidates
// every reservation overlapping the written range, foreign ones included,
// before the write lands (emu/bus.Bus.write), satisfying the LR/SC contract.
func (h *Hart) Store(addr uint64, width int, value uint64) *trap.Exception {
	if addr%uint64(width) != 0 {
		return trap.NewException(misalignedCode(mmu.Store), addr)
	}
	pa, ex := h.Translate(addr, uint64(width), mmu.Store)
	if ex != nil {
		return ex
	}
	var err error
	switch width {
	case 1:
		err = h.bus.Write8(pa, uint8(value))
	case 2:
		err = h.bus.Write16(pa, uint16(value))
	case 4:
		err = h.bus.Write32(pa, uint32(value))
	case 8:
		err = h.bus.Write64(pa, value)
	}
	if err != nil {
		return trap.NewException(accessCode(mmu.Store), addr)
	}
	return nil
}
