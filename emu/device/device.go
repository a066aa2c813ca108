/*
rvsim - Memory-mapped device interface

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
package device

// Device is the contract a memory-mapped platform device implements. It is
// bound to one bus region at a fixed size; the bus dispatches aligned
// reads/writes at widths 8/16/32/64 straight through to it.
type Device interface {
	ReadAt(off uint64, length int) (uint64, error)
	WriteAt(off uint64, length int, value uint64) error
	Size() uint64
	Shutdown()
	Debug(option string) error
}

// IRQSink receives level-triggered interrupt line changes from a device,
// e.g. the PLIC gathering virtio/console interrupt lines.
type IRQSink interface {
	SetIRQ(source uint32, asserted bool)
}

// AccessError is returned by ReadAt/WriteAt for an out-of-window or
// device-internal I/O failure. The load/store unit maps it to the
// matching architectural exception; it is never an architectural value
// itself.
type AccessError struct {
	Offset uint64
}

func (e *AccessError) Error() string {
	return "device access error"
}
