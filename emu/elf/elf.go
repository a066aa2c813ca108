/*
rvsim - ELF loader: ingest a RISC-V kernel image into the bus

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
package elf

import (
	"debug/elf"
	"fmt"

	"github.com/rvsim/rvsim/emu/bus"
)

// emRISCV is elf.EM_RISCV; named locally since older debug/elf builds
// predate the constant being exported under that name in every Go version
// this module targets.
const emRISCV = 243

// htifSectionNames are the section names the loader treats as this
// image's HTIF window base, per spec.md §6.
var htifSectionNames = []string{".htif", ".tohost"}

// Image is the result of loading one ELF file: where execution starts and
// where (if anywhere) the kernel placed its HTIF handshake doublewords.
type Image struct {
	Entry    uint64
	HTIFAddr uint64
	HasHTIF  bool
}

// Load reads path, verifies it is a RISC-V ELF, and copies every PT_LOAD
// segment's bytes onto b, splitting a segment's bytes across region
// boundaries when its span crosses one (spec.md §6's "splitting at region
// boundaries"). Only debug/elf is used: no third-party ELF reader
// appeared anywhere in the retrieved pack, and the original spec already
// puts ELF parsing outside the emulator core's architectural scope.
func Load(b *bus.Bus, path string) (Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return Image{}, fmt.Errorf("elf: open %s: %w", path, err)
	}
	defer f.Close()

	if uint16(f.Machine) != emRISCV {
		return Image{}, fmt.Errorf("elf: %s is machine %d, not EM_RISCV (%d)", path, f.Machine, emRISCV)
	}

	img := Image{Entry: f.Entry}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		data := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(data, 0); err != nil {
			return Image{}, fmt.Errorf("elf: read segment at %#x: %w", prog.Vaddr, err)
		}
		if err := writeSegment(b, prog.Paddr, data); err != nil {
			return Image{}, err
		}
		if prog.Memsz > prog.Filesz {
			if err := zeroRange(b, prog.Paddr+prog.Filesz, prog.Memsz-prog.Filesz); err != nil {
				return Image{}, err
			}
		}
	}

	for _, name := range htifSectionNames {
		if sec := f.Section(name); sec != nil {
			img.HTIFAddr = sec.Addr
			img.HasHTIF = true
			break
		}
	}

	return img, nil
}

// writeSegment copies data into the regions covering [base, base+len(data)),
// splitting at each region boundary it crosses.
func writeSegment(b *bus.Bus, base uint64, data []byte) error {
	off := uint64(0)
	for off < uint64(len(data)) {
		region := regionAt(b, base+off)
		if region == nil {
			return fmt.Errorf("elf: no region backs address %#x", base+off)
		}
		dst := region.Bytes()
		regionOff := base + off - region.Base
		n := uint64(len(data)) - off
		if room := region.Size - regionOff; n > room {
			n = room
		}
		if n == 0 {
			return fmt.Errorf("elf: segment at %#x does not fit region %q", base+off, region.Name)
		}
		copy(dst[regionOff:regionOff+n], data[off:off+n])
		off += n
	}
	return nil
}

// zeroRange clears the .bss tail a PT_LOAD segment implies (Memsz beyond
// Filesz), split across regions the same way writeSegment is.
func zeroRange(b *bus.Bus, base uint64, length uint64) error {
	off := uint64(0)
	for off < length {
		region := regionAt(b, base+off)
		if region == nil {
			return fmt.Errorf("elf: no region backs address %#x", base+off)
		}
		dst := region.Bytes()
		regionOff := base + off - region.Base
		n := length - off
		if room := region.Size - regionOff; n > room {
			n = room
		}
		if n == 0 {
			return fmt.Errorf("elf: bss at %#x does not fit region %q", base+off, region.Name)
		}
		clear(dst[regionOff : regionOff+n])
		off += n
	}
	return nil
}

func regionAt(b *bus.Bus, addr uint64) *bus.Region {
	for _, r := range b.Regions() {
		if addr >= r.Base && addr < r.Base+r.Size {
			return r
		}
	}
	return nil
}
