package hart

import (
	"github.com/rvsim/rvsim/emu/mmu"
	"github.com/rvsim/rvsim/emu/trap"
)

// fetch implements spec.md §4.5: read a halfword at pc; if its low two
// bits are 11 it is the first half of a 32-bit instruction and a second
// halfword is fetched (and separately translated) from pc+2, otherwise the
// compressed 16-bit word is the whole ir.
func (h *Hart) fetch() (uint32, *trap.Exception) {
	if h.pc%2 != 0 {
		return 0, trap.NewException(trap.FetchMisaligned, h.pc)
	}
	lo, ex := h.fetchHalf(h.pc)
	if ex != nil {
		return 0, ex
	}
	if lo&0x3 != 0x3 {
		return uint32(lo), nil
	}
	hi, ex := h.fetchHalf(h.pc + 2)
	if ex != nil {
		return 0, ex
	}
	return uint32(lo) | uint32(hi)<<16, nil
}

func (h *Hart) fetchHalf(addr uint64) (uint16, *trap.Exception) {
	pa, ex := h.Translate(addr, 2, mmu.Fetch)
	if ex != nil {
		return 0, ex
	}
	v, err := h.bus.Read16(pa)
	if err != nil {
		return 0, trap.NewException(trap.FetchAccess, addr)
	}
	return v, nil
}
