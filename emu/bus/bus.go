/*
rvsim - System bus: address-space dispatch and inter-hart reservations

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
package bus

import (
	"fmt"
	"sort"

	"github.com/rvsim/rvsim/emu/device"
)

// MisalignedError is raised for an access whose address is not a multiple
// of its width.
type MisalignedError struct {
	Addr uint64
}

func (e *MisalignedError) Error() string {
	return fmt.Sprintf("misaligned access at %#x", e.Addr)
}

// AccessError is raised for an access that falls outside every mapped
// region.
type AccessError struct {
	Addr uint64
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("bus access fault at %#x", e.Addr)
}

// Region is a single named, non-overlapping half-open interval of the
// address space. A region is backed by host memory, an MMIO device, or a
// remap onto another region's backing (aliasing).
type Region struct {
	Name string
	Base uint64
	Size uint64

	mem []byte        // non-nil for memory-backed regions
	dev device.Device // non-nil for MMIO-backed regions
}

func (r *Region) end() uint64 { return r.Base + r.Size }

// NewMemRegion creates a host-memory-backed region.
func NewMemRegion(name string, base, size uint64) *Region {
	return &Region{Name: name, Base: base, Size: size, mem: make([]byte, size)}
}

// NewDeviceRegion creates an MMIO-callback-backed region. size must match
// dev.Size().
func NewDeviceRegion(name string, base uint64, dev device.Device) *Region {
	return &Region{Name: name, Base: base, Size: dev.Size(), dev: dev}
}

// Bytes exposes the backing slice of a memory region, e.g. for ELF loading.
func (r *Region) Bytes() []byte { return r.mem }

// reservation is one (addr, len, holder) LR/SC lock entry.
type reservation struct {
	addr   uint64
	length uint64
	holder int
}

func (r reservation) overlaps(addr, length uint64) bool {
	return addr < r.addr+r.length && r.addr < addr+length
}

// Bus owns the address space and the cross-hart LR/SC reservation table.
// Single-threaded-cooperative discipline (spec §5) means no locking is
// needed around either table: only one hart is ever mutating state at a
// time, between batches the driver may add/remove devices but harts are
// never stepping concurrently.
type Bus struct {
	regions      []*Region
	reservations []reservation
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// AddRegion inserts a region, rejecting overlaps with any existing region.
func (b *Bus) AddRegion(r *Region) error {
	for _, existing := range b.regions {
		if r.Base < existing.end() && existing.Base < r.end() {
			return fmt.Errorf("region %q [%#x,%#x) overlaps %q [%#x,%#x)",
				r.Name, r.Base, r.end(), existing.Name, existing.Base, existing.end())
		}
	}
	b.regions = append(b.regions, r)
	sort.Slice(b.regions, func(i, j int) bool { return b.regions[i].Base < b.regions[j].Base })
	return nil
}

// Regions returns the region table in base-address order (for ELF loading
// and monitor inspection).
func (b *Bus) Regions() []*Region { return b.regions }

// find returns the region covering [addr, addr+length) or nil.
func (b *Bus) find(addr, length uint64) *Region {
	// Linear scan: region counts are small (memory + a handful of MMIO
	// windows); an interval tree is unwarranted here, matching the
	// teacher's linear sub-channel scan in sys_channel.
	for _, r := range b.regions {
		if addr >= r.Base && addr+length <= r.end() {
			return r
		}
	}
	return nil
}

func widthOK(addr uint64, width int) bool {
	return addr%uint64(width) == 0
}

// Read8/16/32/64 perform an aligned typed load.
func (b *Bus) Read8(addr uint64) (uint8, error) {
	v, err := b.read(addr, 1)
	return uint8(v), err
}

func (b *Bus) Read16(addr uint64) (uint16, error) {
	if !widthOK(addr, 2) {
		return 0, &MisalignedError{Addr: addr}
	}
	v, err := b.read(addr, 2)
	return uint16(v), err
}

func (b *Bus) Read32(addr uint64) (uint32, error) {
	if !widthOK(addr, 4) {
		return 0, &MisalignedError{Addr: addr}
	}
	v, err := b.read(addr, 4)
	return uint32(v), err
}

func (b *Bus) Read64(addr uint64) (uint64, error) {
	if !widthOK(addr, 8) {
		return 0, &MisalignedError{Addr: addr}
	}
	return b.read(addr, 8)
}

func (b *Bus) read(addr uint64, width int) (uint64, error) {
	r := b.find(addr, uint64(width))
	if r == nil {
		return 0, &AccessError{Addr: addr}
	}
	off := addr - r.Base
	if r.dev != nil {
		v, err := r.dev.ReadAt(off, width)
		if err != nil {
			return 0, &AccessError{Addr: addr}
		}
		return v, nil
	}
	var v uint64
	for i := 0; i < width; i++ {
		v |= uint64(r.mem[off+uint64(i)]) << (8 * i)
	}
	return v, nil
}

// Write8/16/32/64 perform an aligned typed store. Every reservation
// covering a written byte is invalidated before the write is applied; the
// bus does not know which hart is writing, so this includes the writer's
// own reservation.
func (b *Bus) Write8(addr uint64, v uint8) error {
	return b.write(addr, 1, uint64(v))
}

func (b *Bus) Write16(addr uint64, v uint16) error {
	if !widthOK(addr, 2) {
		return &MisalignedError{Addr: addr}
	}
	return b.write(addr, 2, uint64(v))
}

func (b *Bus) Write32(addr uint64, v uint32) error {
	if !widthOK(addr, 4) {
		return &MisalignedError{Addr: addr}
	}
	return b.write(addr, 4, uint64(v))
}

func (b *Bus) Write64(addr uint64, v uint64) error {
	if !widthOK(addr, 8) {
		return &MisalignedError{Addr: addr}
	}
	return b.write(addr, 8, v)
}

func (b *Bus) write(addr uint64, width int, v uint64) error {
	r := b.find(addr, uint64(width))
	if r == nil {
		return &AccessError{Addr: addr}
	}
	b.invalidateForeign(addr, uint64(width), -1)
	off := addr - r.Base
	if r.dev != nil {
		if err := r.dev.WriteAt(off, width, v); err != nil {
			return &AccessError{Addr: addr}
		}
		return nil
	}
	for i := 0; i < width; i++ {
		r.mem[off+uint64(i)] = byte(v >> (8 * i))
	}
	return nil
}

// AMO32/AMO64 perform an atomic read-modify-write: f receives the current
// value and returns the value to store. No other access can be interleaved
// between the read and the write since the driver never steps two harts
// concurrently.
func (b *Bus) AMO32(addr uint64, f func(uint32) uint32) (uint32, error) {
	old, err := b.Read32(addr)
	if err != nil {
		return 0, err
	}
	return old, b.Write32(addr, f(old))
}

func (b *Bus) AMO64(addr uint64, f func(uint64) uint64) (uint64, error) {
	old, err := b.Read64(addr)
	if err != nil {
		return 0, err
	}
	return old, b.Write64(addr, f(old))
}

// Acquire records a reservation for holder over [addr, addr+length). It
// returns false if another holder already covers any byte of that range.
// Acquiring twice for the same holder over an overlapping range is a
// programming error (the load/store unit never does this: SC always
// clears first).
func (b *Bus) Acquire(addr, length uint64, holder int) bool {
	for _, r := range b.reservations {
		if r.holder != holder && r.overlaps(addr, length) {
			return false
		}
	}
	b.reservations = append(b.reservations, reservation{addr: addr, length: length, holder: holder})
	return true
}

// HasReservation reports whether holder currently holds a reservation
// exactly matching [addr, addr+length) — the condition for a successful
// store-conditional.
func (b *Bus) HasReservation(addr, length uint64, holder int) bool {
	for _, r := range b.reservations {
		if r.holder == holder && r.addr == addr && r.length == length {
			return true
		}
	}
	return false
}

// Release drops every reservation held by holder.
func (b *Bus) Release(holder int) {
	kept := b.reservations[:0]
	for _, r := range b.reservations {
		if r.holder != holder {
			kept = append(kept, r)
		}
	}
	b.reservations = kept
}

// invalidateForeign drops reservations held by anyone other than except
// that overlap [addr, addr+length).
func (b *Bus) invalidateForeign(addr, length uint64, except int) {
	kept := b.reservations[:0]
	for _, r := range b.reservations {
		if r.holder != except && r.overlaps(addr, length) {
			continue
		}
		kept = append(kept, r)
	}
	b.reservations = kept
}
