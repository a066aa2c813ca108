package mmu

import "github.com/rvsim/rvsim/emu/csr"

// PMPEntry is one decoded physical-memory-protection range, built by the
// hart from its pmpcfgN/pmpaddrN CSRs before each translation.
type PMPEntry struct {
	R, W, X, Locked bool
	AMode           uint8  // 0=OFF, 1=TOR, 2=NA4, 3=NAPOT
	RawAddr         uint64 // raw pmpaddr CSR value (bits [55:0] in 4-byte units)
	PrevRawAddr     uint64 // previous entry's RawAddr, needed for TOR
}

const (
	pmpOff   = 0
	pmpTOR   = 1
	pmpNA4   = 2
	pmpNAPOT = 3
)

// rangeOf returns the byte-addressed [lo, hi) span an entry matches.
func (e PMPEntry) rangeOf() (lo, hi uint64, ok bool) {
	switch e.AMode {
	case pmpTOR:
		return e.PrevRawAddr << 2, e.RawAddr << 2, true
	case pmpNA4:
		base := e.RawAddr << 2
		return base, base + 4, true
	case pmpNAPOT:
		addr := e.RawAddr
		idx := 0
		for addr&1 == 1 {
			idx++
			addr >>= 1
		}
		size := uint64(8) << idx
		base := (e.RawAddr &^ (uint64(1)<<idx - 1)) << 2
		return base, base + size, true
	default:
		return 0, 0, false
	}
}

// matches reports whether every 4-byte-aligned address covering
// [addr, addr+length) lies inside the entry's span, per spec.md §4.3.
func (e PMPEntry) matches(addr, length uint64) bool {
	lo, hi, ok := e.rangeOf()
	if !ok {
		return false
	}
	end := addr + length
	if end <= addr {
		return false
	}
	alignedStart := addr &^ 3
	alignedEnd := (end + 3) &^ 3
	return alignedStart >= lo && alignedEnd <= hi
}

// pmpCheck walks entries in order; the first match governs. A request's
// operation bit (R/W/X per op) must be set, or the hart must be in M-mode
// with the entry's lock bit clear. No match means M-mode is granted and
// every other privilege is denied.
func pmpCheck(entries []PMPEntry, addr, length uint64, priv csr.Privilege, op AccessType) bool {
	for _, e := range entries {
		if !e.matches(addr, length) {
			continue
		}
		if priv == csr.Machine && !e.Locked {
			return true
		}
		switch op {
		case Fetch:
			return e.X
		case Load:
			return e.R
		case Store:
			return e.W
		}
		return false
	}
	return priv == csr.Machine
}
