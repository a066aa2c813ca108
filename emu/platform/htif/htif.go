/*
rvsim - HTIF: host-target interface console/exit channel

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

	HTIF is the legacy two-doubleword handshake RISC-V test kernels and
	early bootloaders use in place of a real console: a write to tohost
	encodes (device, cmd, data) and a read of fromhost delivers the host's
	reply, following the console-routing idiom in
	command/reader/reader.go, generalized from a line-buffered terminal
	read to HTIF's one-character-at-a-time protocol.
*/
package htif

import (
	"bufio"
	"io"

	dev "github.com/rvsim/rvsim/emu/device"
)

const (
	tohostOff   = 0x0
	fromhostOff = 0x8
	windowSize  = 0x10
)

// Exit is an error value carrying the exit code of a device=0/cmd=0
// request, in the form Exited reports it (payload >> 1). Nothing in this
// tree constructs it: main reads Exited, logs the code and stops the
// machine.
type Exit struct {
	Code int
}

func (e Exit) Error() string { return "htif shutdown requested" }

// HTIF implements the 16-byte tohost/fromhost MMIO window.
type HTIF struct {
	tohost   uint64
	fromhost uint64

	out io.Writer
	in  *bufio.Reader

	exitCode int
	exited   bool
}

// New builds an HTIF console writing guest characters to out and
// serving fromhost reads from a non-blocking read of in.
func New(out io.Writer, in io.Reader) *HTIF {
	return &HTIF{out: out, in: bufio.NewReader(in)}
}

func (h *HTIF) Size() uint64 { return windowSize }

func (h *HTIF) ReadAt(off uint64, length int) (uint64, error) {
	switch off {
	case tohostOff:
		return h.tohost, nil
	case fromhostOff:
		return h.fromhost, nil
	}
	return 0, &dev.AccessError{Offset: off}
}

func (h *HTIF) WriteAt(off uint64, length int, value uint64) error {
	switch off {
	case tohostOff:
		h.tohost = value
		h.handleToHost(value)
		return nil
	case fromhostOff:
		h.fromhost = value
		return nil
	}
	return &dev.AccessError{Offset: off}
}

// handleToHost decodes the packed (device:8, cmd:8, data:48) tohost word
// per spec.md §6: device=0/cmd=0 is shutdown with exit code data>>1 (so
// data=1 exits with 0), device=1/cmd=1 writes one byte of data to the
// console.
func (h *HTIF) handleToHost(word uint64) {
	device := word >> 56
	cmd := (word >> 48) & 0xff
	data := word & 0xffffffffffff

	switch {
	case device == 0 && cmd == 0:
		h.exited = true
		h.exitCode = int(data >> 1)
	case device == 1 && cmd == 1:
		h.out.Write([]byte{byte(data)})
	}
}

// Exited reports whether the guest has requested shutdown, and with what
// code; main polls it from its own goroutine and cancels the run once it
// reports true.
func (h *HTIF) Exited() (int, bool) { return h.exitCode, h.exited }

// Poll refreshes fromhost with a non-blocking byte from stdin, if any is
// available, encoded as device=1/cmd=0/data=byte per the console-read
// half of the protocol.
func (h *HTIF) Poll() {
	if h.in.Buffered() == 0 {
		return
	}
	b, err := h.in.ReadByte()
	if err != nil {
		return
	}
	h.fromhost = (uint64(1) << 56) | uint64(b)
}

func (h *HTIF) Shutdown() {}

func (h *HTIF) Debug(option string) error { return nil }
