/*
rvsim - virtio: minimal MMIO transport and virtqueue descriptor ring

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

	This package covers only the part of virtio-mmio that touches the bus
	and the guest's descriptor ring: the legacy register bank and a
	single-queue avail/used/descriptor walk. Full block/console/net device
	semantics (backing store, negotiated feature bits beyond VERSION_1) are
	out of scope; a Backend supplies those per spec.md §1's virtio "stub".
*/
package virtio

import (
	dev "github.com/rvsim/rvsim/emu/device"
)

// Register offsets, legacy virtio-mmio v1 layout.
const (
	regMagic          = 0x000
	regVersion        = 0x004
	regDeviceID       = 0x008
	regVendorID       = 0x00c
	regHostFeatures   = 0x010
	regGuestFeatures  = 0x020
	regQueueSel       = 0x030
	regQueueNumMax    = 0x034
	regQueueNum       = 0x038
	regQueuePFN       = 0x040
	regQueueNotify    = 0x050
	regInterruptStat  = 0x060
	regInterruptAck   = 0x064
	regStatus         = 0x070
	windowSize        = 0x200

	queueNumMax = 256
	pageShift   = 12
)

// Descriptor mirrors the 16-byte virtqueue descriptor layout.
type Descriptor struct {
	Addr  uint64
	Len   uint32
	Flags uint16
	Next  uint16
}

const (
	descFNext  = 1
	descFWrite = 2
)

// Bus is the subset of *bus.Bus a virtqueue walk needs to read descriptors
// and the avail/used rings out of guest memory.
type Bus interface {
	Read16(addr uint64) (uint16, error)
	Read32(addr uint64) (uint32, error)
	Read64(addr uint64) (uint64, error)
	Write16(addr uint64, v uint16) error
	Write32(addr uint64, v uint32) error
}

// Backend processes one completed descriptor chain (a request the guest
// placed on the avail ring) and returns the number of bytes written into
// any write-only (device-to-guest) descriptors in the chain.
type Backend interface {
	Handle(bus Bus, chain []Descriptor) (written uint32, err error)
}

// Device is a single-queue virtio-mmio device: the register bank plus one
// virtqueue's avail/used/descriptor ring walk.
type Device struct {
	bus      Bus
	deviceID uint32
	backend  Backend

	hostFeatures  uint32
	guestFeatures uint32
	queueNum      uint32
	queuePFN      uint32
	status        uint32
	interruptStat uint32

	lastAvailIdx uint16
}

// New builds a virtio-mmio device of the given device-type ID (1=net,
// 2=block, 3=console) backed by backend. bus is the guest physical address
// space the descriptor/avail/used ring lives in.
func New(bus Bus, deviceID uint32, hostFeatures uint32, backend Backend) *Device {
	return &Device{bus: bus, deviceID: deviceID, hostFeatures: hostFeatures, backend: backend}
}

func (d *Device) Size() uint64 { return windowSize }

func (d *Device) ReadAt(off uint64, length int) (uint64, error) {
	switch off {
	case regMagic:
		return 0x74726976, nil // "virt"
	case regVersion:
		return 1, nil
	case regDeviceID:
		return uint64(d.deviceID), nil
	case regVendorID:
		return 0x52565356, nil // "RVSV"
	case regHostFeatures:
		return uint64(d.hostFeatures), nil
	case regQueueNumMax:
		return queueNumMax, nil
	case regQueuePFN:
		return uint64(d.queuePFN), nil
	case regInterruptStat:
		return uint64(d.interruptStat), nil
	case regStatus:
		return uint64(d.status), nil
	}
	return 0, &dev.AccessError{Offset: off}
}

func (d *Device) WriteAt(off uint64, length int, value uint64) error {
	switch off {
	case regGuestFeatures:
		d.guestFeatures = uint32(value)
	case regQueueSel:
		// Single queue only; selecting anything but 0 is a no-op guard.
	case regQueueNum:
		d.queueNum = uint32(value)
	case regQueuePFN:
		d.queuePFN = uint32(value)
	case regQueueNotify:
		return d.notify()
	case regInterruptAck:
		d.interruptStat &^= uint32(value)
	case regStatus:
		d.status = uint32(value)
		if d.status == 0 {
			d.queuePFN = 0
			d.lastAvailIdx = 0
		}
	default:
		return &dev.AccessError{Offset: off}
	}
	return nil
}

// legacy split-virtqueue layout offsets relative to the descriptor table
// base (queuePFN<<pageShift): the descriptor table is 16*queueNum bytes,
// the avail ring immediately follows, and the used ring starts at the
// next page boundary.
func (d *Device) availRingBase() uint64 {
	return d.QueuePhysAddr() + uint64(d.queueNum)*16
}

func (d *Device) usedRingBase() uint64 {
	availLen := 4 + 2*uint64(d.queueNum) + 2
	avail := d.availRingBase()
	const pageSize = 1 << pageShift
	return (avail + availLen + pageSize - 1) &^ (pageSize - 1)
}

func (d *Device) readDescriptor(idx uint16) (Descriptor, error) {
	base := d.QueuePhysAddr() + uint64(idx)*16
	addr, err := d.bus.Read64(base)
	if err != nil {
		return Descriptor{}, err
	}
	length, err := d.bus.Read32(base + 8)
	if err != nil {
		return Descriptor{}, err
	}
	flags, err := d.bus.Read16(base + 12)
	if err != nil {
		return Descriptor{}, err
	}
	next, err := d.bus.Read16(base + 14)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{Addr: addr, Len: length, Flags: flags, Next: next}, nil
}

func (d *Device) readChain(head uint16) ([]Descriptor, error) {
	var chain []Descriptor
	idx := head
	for {
		desc, err := d.readDescriptor(idx)
		if err != nil {
			return nil, err
		}
		chain = append(chain, desc)
		if desc.Flags&descFNext == 0 {
			break
		}
		idx = desc.Next
	}
	return chain, nil
}

// notify walks every new avail-ring entry and hands the descriptor chain
// to the backend, then posts the completion to the used ring and raises
// the used-buffer interrupt — matching the used-buffer notification in sys_channel
// dispatch-then-signal pattern generalized from channel command bytes to
// a descriptor chain.
func (d *Device) notify() error {
	availBase := d.availRingBase()
	availIdx, err := d.bus.Read16(availBase + 2)
	if err != nil {
		return err
	}
	start := d.lastAvailIdx
	for d.lastAvailIdx != availIdx {
		ringOff := availBase + 4 + uint64(d.lastAvailIdx%uint16(d.queueNum))*2
		head, err := d.bus.Read16(ringOff)
		if err != nil {
			return err
		}
		chain, err := d.readChain(head)
		if err != nil {
			return err
		}
		written, err := d.backend.Handle(d.bus, chain)
		if err != nil {
			return err
		}
		if err := d.postUsed(head, written); err != nil {
			return err
		}
		d.lastAvailIdx++
	}
	if d.lastAvailIdx != start {
		d.interruptStat |= 1
	}
	return nil
}

// postUsed appends one (id, len) entry to the used ring and bumps its
// index, completing the descriptor chain back to the guest.
func (d *Device) postUsed(head uint16, written uint32) error {
	used := d.usedRingBase()
	usedIdx, err := d.bus.Read16(used + 2)
	if err != nil {
		return err
	}
	entryOff := used + 4 + uint64(usedIdx%uint16(d.queueNum))*8
	if err := d.bus.Write32(entryOff, uint32(head)); err != nil {
		return err
	}
	if err := d.bus.Write32(entryOff+4, written); err != nil {
		return err
	}
	return d.bus.Write16(used+2, usedIdx+1)
}

// Poll re-walks the ring for device-initiated completions that did not
// arrive via a guest notify (e.g. console input queued asynchronously by
// the backend); most backends have nothing to report and this is a no-op.
func (d *Device) Poll() {
	if d.status == 0 || d.queueNum == 0 {
		return
	}
	_ = d.notify()
}

func (d *Device) Shutdown() {}

func (d *Device) Debug(option string) error { return nil }

// QueuePhysAddr returns the guest-physical base address of the
// descriptor table for the configured queue.
func (d *Device) QueuePhysAddr() uint64 {
	return uint64(d.queuePFN) << pageShift
}
