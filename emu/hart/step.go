package hart

import (
	"github.com/rvsim/rvsim/emu/isa"
	"github.com/rvsim/rvsim/emu/trap"
)

func instrLen(ir uint32) uint64 {
	if ir&0x3 == 0x3 {
		return 4
	}
	return 2
}

// Step implements the processor loop of spec.md §4.8: run up to n
// instructions (fewer if WFI parks the hart), check for a pending and
// enabled interrupt once at the batch boundary, then run every extension's
// optional Step callback. Every extension in emu/isa leaves Step empty, so
// no reservation timeout or lazy FP-state work runs here.
func (h *Hart) Step(n int) {
	for i := 0; i < n; i++ {
		if h.wfi {
			h.cycle++
			break
		}
		h.pc = h.nextPC
		ir, ex := h.fetch()
		if ex != nil {
			h.deliverTrap(ex.Code, ex.IsInterrupt, ex.Tval)
			h.cycle++
			continue
		}
		h.ir = ir

		entry, found := h.dec.Decode(ir)
		if !found {
			h.deliverTrap(trap.IllegalInsn, false, uint64(ir))
			h.cycle++
			continue
		}
		inst := entry.(isa.Instruction)
		h.nextPC = h.pc + instrLen(ir)

		if err := inst.Execute(h, ir); err != nil {
			ex, ok := err.(*trap.Exception)
			if !ok {
				h.log.Error("non-architectural execute error", "hart", h.id, "insn", inst.Name(), "err", err)
				h.cycle++
				continue
			}
			if ex.Executed {
				h.retired++
			}
			h.deliverTrap(ex.Code, ex.IsInterrupt, ex.Tval)
		} else {
			h.retired++
		}
		h.cycle++
	}

	if code, _, ok := h.pendingInterrupt(); ok {
		h.wfi = false
		h.deliverTrap(code, true, 0)
	}

	for _, ext := range h.extensions {
		if ext != nil {
			ext.Step(h)
		}
	}
}
