/*
rvsim - MMU: Sv32/Sv39/Sv48 page walking and PMP checking

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
package mmu

import (
	"github.com/rvsim/rvsim/emu/bus"
	"github.com/rvsim/rvsim/emu/csr"
	"github.com/rvsim/rvsim/emu/trap"
)

// AccessType is the kind of memory operation being translated.
type AccessType uint8

const (
	Fetch AccessType = iota
	Load
	Store
)

// Mode is the page-table format selected by satp.MODE.
type Mode uint8

const (
	Bare Mode = iota
	Sv32
	Sv39
	Sv48
)

// levels and pteSize per mode, spec.md §4.3.
func (m Mode) levels() int {
	switch m {
	case Sv32:
		return 2
	case Sv39:
		return 3
	case Sv48:
		return 4
	}
	return 0
}

func (m Mode) pteSize() uint64 {
	if m == Sv32 {
		return 4
	}
	return 8
}

func (m Mode) vpnBits() uint {
	if m == Sv32 {
		return 10
	}
	return 9
}

// PTE field bits, common across Sv32/39/48 (Sv32 PTEs are 32-bit but the
// low bits have the same layout).
const (
	pteV = 1 << 0
	pteR = 1 << 1
	pteW = 1 << 2
	pteX = 1 << 3
	pteU = 1 << 4
	pteG = 1 << 5
	pteA = 1 << 6
	pteD = 1 << 7
)

// Walk holds the per-translation configuration derived from satp/mstatus
// at the moment of the access; the MMU package is otherwise stateless.
type Walk struct {
	Xlen        int
	Mode        Mode
	RootPPN     uint64
	EffPriv     csr.Privilege // effective privilege for this access (MPP if mstatus.MPRV, else current privilege; always CurPriv for Fetch)
	MXR         bool
	SUM         bool
	EnableDirty bool
	PMP         []PMPEntry
	MPriv       csr.Privilege // the hart's *actual* current privilege, for the "M-mode bypasses paging" rule
}

func excCode(op AccessType, pageFault bool) uint {
	switch {
	case op == Fetch && pageFault:
		return trap.FetchPageFault
	case op == Load && pageFault:
		return trap.LoadPageFault
	case op == Store && pageFault:
		return trap.StorePageFault
	case op == Fetch:
		return trap.FetchAccess
	case op == Load:
		return trap.LoadAccess
	default:
		return trap.StoreAccess
	}
}

func fault(op AccessType, va uint64, pageFault bool) *trap.Exception {
	return trap.NewException(excCode(op, pageFault), va)
}

// Translate maps va to a physical address for a length-byte access, per
// spec.md §4.3: M-mode (or Bare) skips the walk (PMP still applies);
// otherwise the page table is walked level by level with a PMP check on
// every PTE fetch, then the usual RWX/U/MXR/SUM checks and A/D policy at
// the leaf, and finally a PMP check of the assembled physical address.
func Translate(b *bus.Bus, w Walk, va uint64, length uint64, op AccessType) (uint64, *trap.Exception) {
	if w.MPriv == csr.Machine || w.Mode == Bare {
		pa := va
		if !pmpCheck(w.PMP, pa, length, w.MPriv, op) {
			return 0, fault(op, va, false)
		}
		return pa, nil
	}

	pa, ex := walk(b, w, va, op)
	if ex != nil {
		return 0, ex
	}
	if !pmpCheck(w.PMP, pa, length, w.EffPriv, op) {
		return 0, fault(op, va, false)
	}
	return pa, nil
}

func walk(b *bus.Bus, w Walk, va uint64, op AccessType) (uint64, *trap.Exception) {
	levels := w.Mode.levels()
	vpnBits := w.Mode.vpnBits()
	pteSize := w.Mode.pteSize()

	a := w.RootPPN * 4096
	i := levels - 1
	var pte uint64
	var pteAddr uint64
	for {
		vpn := (va >> (12 + uint(i)*vpnBits)) & ((1 << vpnBits) - 1)
		pteAddr = a + vpn*pteSize
		if !pmpCheck(w.PMP, pteAddr, pteSize, csr.Supervisor, Load) {
			return 0, fault(op, va, true)
		}
		var err error
		if pteSize == 4 {
			var v32 uint32
			v32, err = b.Read32(pteAddr)
			pte = uint64(v32)
		} else {
			pte, err = b.Read64(pteAddr)
		}
		if err != nil {
			return 0, fault(op, va, true)
		}
		if pte&pteV == 0 || (pte&pteR == 0 && pte&pteW != 0) {
			return 0, fault(op, va, true)
		}
		if pte&(pteR|pteX) != 0 {
			break // leaf
		}
		if i == 0 {
			return 0, fault(op, va, true)
		}
		a = ptePPN(pte) * 4096
		i--
	}

	if !leafPermitted(pte, w.EffPriv, w.MXR, w.SUM, op) {
		return 0, fault(op, va, true)
	}

	// Superpage alignment: every lower-level PPN field must be zero.
	ppn := ptePPN(pte)
	if i > 0 {
		lowMask := uint64(1)<<(uint(i)*vpnBits) - 1
		if ppn&lowMask != 0 {
			return 0, fault(op, va, true)
		}
	}

	if pte&pteA == 0 || (op == Store && pte&pteD == 0) {
		if !w.EnableDirty {
			return 0, fault(op, va, true)
		}
		pte |= pteA
		if op == Store {
			pte |= pteD
		}
		if !pmpCheck(w.PMP, pteAddr, pteSize, csr.Supervisor, Store) {
			return 0, fault(op, va, true)
		}
		var werr error
		if pteSize == 4 {
			werr = b.Write32(pteAddr, uint32(pte))
		} else {
			werr = b.Write64(pteAddr, pte)
		}
		if werr != nil {
			return 0, fault(op, va, true)
		}
	}

	pageOffset := va & 0xfff
	var physPPNBits uint64
	if i > 0 {
		// superpage: low bits of VA below the superpage boundary pass through untranslated.
		lowBits := uint64(i) * uint64(vpnBits)
		mask := uint64(1)<<lowBits - 1
		physPPNBits = (ppn &^ mask) | (va>>12)&mask
	} else {
		physPPNBits = ppn
	}
	pa := (physPPNBits << 12) | pageOffset
	return pa, nil
}

func ptePPN(pte uint64) uint64 {
	return pte >> 10
}

func leafPermitted(pte uint64, priv csr.Privilege, mxr, sum bool, op AccessType) bool {
	r := pte&pteR != 0
	w := pte&pteW != 0
	x := pte&pteX != 0
	u := pte&pteU != 0

	if priv == csr.User && !u {
		return false
	}
	if priv == csr.Supervisor && u && !sum {
		return false
	}
	switch op {
	case Fetch:
		return x
	case Load:
		return r || (mxr && x)
	case Store:
		return w
	}
	return false
}
