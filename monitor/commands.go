/*
rvsim - Monitor commands

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
package monitor

import (
	"errors"
	"fmt"
)

func cmdStep(line *cmdLine, mon *Monitor) (bool, error) {
	n := uint64(1)
	if !line.isEOL() {
		var err error
		n, err = line.getUint()
		if err != nil {
			return false, err
		}
	}
	h, err := mon.hart()
	if err != nil {
		return false, err
	}
	h.Step(int(n))
	fmt.Printf("pc=%#x\n", h.PC())
	return false, nil
}

func cmdContinue(_ *cmdLine, mon *Monitor) (bool, error) {
	mon.m.Continue()
	return false, nil
}

func cmdStop(_ *cmdLine, mon *Monitor) (bool, error) {
	mon.m.Stop()
	return false, nil
}

func cmdRegisters(_ *cmdLine, mon *Monitor) (bool, error) {
	h, err := mon.hart()
	if err != nil {
		return false, err
	}
	fmt.Printf("hart %d  pc=%#016x  priv=%d\n", h.HartID(), h.PC(), h.Privilege())
	for i := 0; i < 32; i++ {
		fmt.Printf("x%-2d=%#016x", i, h.GetX(i))
		if i%4 == 3 {
			fmt.Println()
		} else {
			fmt.Print("  ")
		}
	}
	return false, nil
}

func cmdCSR(line *cmdLine, mon *Monitor) (bool, error) {
	h, err := mon.hart()
	if err != nil {
		return false, err
	}
	bank := h.CSRBank()

	name := line.getWord()
	if name == "" {
		return false, errors.New("usage: csr <name> [value]")
	}
	reg := bank.FindByName(name)
	if reg == nil {
		return false, fmt.Errorf("no such csr: %s", name)
	}

	if line.isEOL() {
		fmt.Printf("%s = %#x\n", reg.Name, reg.Get())
		return false, nil
	}
	value, err := line.getUint()
	if err != nil {
		return false, err
	}
	reg.Set(value)
	return false, nil
}

func cmdExamine(line *cmdLine, mon *Monitor) (bool, error) {
	addr, err := line.getUint()
	if err != nil {
		return false, err
	}
	v, err := mon.bus().Read32(addr)
	if err != nil {
		return false, err
	}
	fmt.Printf("%#x: %#08x\n", addr, v)
	return false, nil
}

func cmdDeposit(line *cmdLine, mon *Monitor) (bool, error) {
	addr, err := line.getUint()
	if err != nil {
		return false, err
	}
	value, err := line.getUint()
	if err != nil {
		return false, err
	}
	if err := mon.bus().Write32(addr, uint32(value)); err != nil {
		return false, err
	}
	return false, nil
}

func cmdBreak(line *cmdLine, mon *Monitor) (bool, error) {
	addr, err := line.getUint()
	if err != nil {
		return false, err
	}
	mon.breakpoints[addr] = true
	return false, nil
}

func cmdUnbreak(line *cmdLine, mon *Monitor) (bool, error) {
	addr, err := line.getUint()
	if err != nil {
		return false, err
	}
	delete(mon.breakpoints, addr)
	return false, nil
}

func cmdQuit(_ *cmdLine, mon *Monitor) (bool, error) {
	mon.m.Shutdown()
	return true, nil
}

func cmdHelp(_ *cmdLine, _ *Monitor) (bool, error) {
	fmt.Println("step [n], continue, stop, registers, csr <name> [value],")
	fmt.Println("examine <addr>, deposit <addr> <value>, break <addr>, unbreak <addr>, quit")
	return false, nil
}
