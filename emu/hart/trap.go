package hart

import (
	"github.com/rvsim/rvsim/emu/csr"
	"github.com/rvsim/rvsim/emu/trap"
)

// pendingInterrupt implements the delivery algorithm of spec.md §4.7: of
// the bits set in both mip and mie, those mideleg marks are S-targeted and
// the rest stay M-targeted; M-targeted bits are live iff privilege < M or
// (privilege == M and mstatus.MIE); S-targeted bits are live iff privilege
// is U or (privilege == S and mstatus.SIE). M-pending beats S-pending;
// within each, trap.Pending applies MEI>MSI>MTI>SEI>SSI>STI.
func (h *Hart) pendingInterrupt() (code uint, toMachine bool, ok bool) {
	pending := h.mipReg.Get() & h.mieReg.Get()
	mideleg := h.midelegReg.RawBits()
	mBits := pending &^ mideleg
	sBits := pending & mideleg

	mEnabled := h.priv != csr.Machine || h.mstatusReg.GetField(h.mstatusFields.mie) != 0
	sEnabled := h.priv == csr.User || (h.priv == csr.Supervisor && h.mstatusReg.GetField(h.mstatusFields.sie) != 0)

	if mEnabled {
		if c, ok := trap.Pending(mBits, ^uint64(0)); ok {
			return c, true, true
		}
	}
	if sEnabled {
		if c, ok := trap.Pending(sBits, ^uint64(0)); ok {
			return c, false, true
		}
	}
	return 0, false, false
}

// leastPrivilege is the lowest privilege level this hart's configured
// extension set supports, used by TrapReturn's xPP clamp (spec.md §8).
func (h *Hart) leastPrivilege() csr.Privilege {
	if h.HasExtension('U') {
		return csr.User
	}
	if h.HasExtension('S') {
		return csr.Supervisor
	}
	return csr.Machine
}

func trapVector(tvec *csr.Reg, code uint, isInterrupt bool) uint64 {
	v := tvec.RawBits()
	base := v &^ 0x3
	mode := v & 0x3
	if isInterrupt && mode == 1 {
		return base + uint64(code)*4
	}
	return base
}

// deliverTrap implements spec.md §4.7's trap transition: it is called both
// for a handler-raised architectural exception and for an interrupt picked
// up at the post-instruction check in Step.
func (h *Hart) deliverTrap(code uint, isInterrupt bool, tval uint64) {
	delegReg := h.medelegReg
	if isInterrupt {
		delegReg = h.midelegReg
	}
	toS := h.priv != csr.Machine && delegReg.RawBits()&(uint64(1)<<code) != 0
	cause := trap.Cause(code, isInterrupt, h.xlen)

	if !toS {
		h.mepcReg.SetRawBits(h.pc)
		h.mcauseReg.SetRawBits(cause)
		h.mtvalReg.SetRawBits(tval)
		mie := h.mstatusReg.GetField(h.mstatusFields.mie)
		h.mstatusReg.SetField(h.mstatusFields.mpie, mie)
		h.mstatusReg.SetField(h.mstatusFields.mpp, uint64(h.priv))
		h.mstatusReg.SetField(h.mstatusFields.mie, 0)
		h.priv = csr.Machine
		h.nextPC = trapVector(h.mtvecReg, code, isInterrupt)
	} else {
		h.sepcReg.SetRawBits(h.pc)
		h.scauseReg.SetRawBits(cause)
		h.stvalReg.SetRawBits(tval)
		sie := h.mstatusReg.GetField(h.mstatusFields.sie)
		h.mstatusReg.SetField(h.mstatusFields.spie, sie)
		spp := uint64(0)
		if h.priv == csr.Supervisor {
			spp = 1
		}
		h.mstatusReg.SetField(h.mstatusFields.spp, spp)
		h.mstatusReg.SetField(h.mstatusFields.sie, 0)
		h.priv = csr.Supervisor
		h.nextPC = trapVector(h.stvecReg, code, isInterrupt)
	}
	h.FlushCaches()
	h.wfi = false
}

// TrapReturn implements isa.Machine: mret/sret's privilege-stack pop.
func (h *Hart) TrapReturn(priv csr.Privilege) uint64 {
	if priv == csr.Machine {
		mpie := h.mstatusReg.GetField(h.mstatusFields.mpie)
		mpp := csr.Privilege(h.mstatusReg.GetField(h.mstatusFields.mpp))
		h.mstatusReg.SetField(h.mstatusFields.mie, mpie)
		h.mstatusReg.SetField(h.mstatusFields.mpie, 1)
		h.mstatusReg.SetField(h.mstatusFields.mpp, uint64(h.leastPrivilege()))
		h.priv = mpp
		h.FlushCaches()
		return h.mepcReg.RawBits()
	}
	spie := h.mstatusReg.GetField(h.mstatusFields.spie)
	spp := h.mstatusReg.GetField(h.mstatusFields.spp)
	h.mstatusReg.SetField(h.mstatusFields.sie, spie)
	h.mstatusReg.SetField(h.mstatusFields.spie, 1)
	h.mstatusReg.SetField(h.mstatusFields.spp, 0)
	if spp != 0 {
		h.priv = csr.Supervisor
	} else {
		h.priv = csr.User
	}
	h.FlushCaches()
	return h.sepcReg.RawBits()
}
