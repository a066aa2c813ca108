/*
rvsim - CSR framework: bitfields, xlen-parameterized views, privilege gates

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
package csr

// Privilege mirrors the three architectural privilege levels; it is
// redeclared here (rather than imported from hart) to keep this package
// leaf-level and dependency-free, kept that way deliberately.
type Privilege uint8

const (
	User Privilege = iota
	Supervisor
	_ // hypervisor, reserved, unused
	Machine
)

// Access marks whether a field may be read, written, or both. A CSR whose
// own index encodes read-only (bits 11:10 == 11) rejects writes before any
// field-level access check runs; see Bank.Write.
type Access uint8

const (
	RW Access = iota
	RO
	WO
)

// Field is one named bitfield of a CSR. ReadXform/WriteXform, when set,
// let a field be a *view* of bits materially stored elsewhere (spec.md
// §4.2's cross-CSR wiring): Get calls ReadXform(raw-bits-at-Mask) and
// splices its result back through Mask; Set hands the incoming slice to
// WriteXform, which stores it wherever the view's bits live, and discards
// WriteXform's return value. Leaving both nil makes the field a plain RW/RO/WO slice of the
// register's own storage.
type Field struct {
	Name       string
	Mask       uint64 // bits this field occupies, already shifted into place
	Access     Access
	ReadXform  func(raw uint64) uint64
	WriteXform func(raw uint64) uint64
}

func (f *Field) shift() uint {
	if f.Mask == 0 {
		return 0
	}
	m := f.Mask
	var s uint
	for m&1 == 0 {
		m >>= 1
		s++
	}
	return s
}

// Reg is one CSR: a set of named fields over a shared xlen-wide storage
// word. Fields with transforms do not store into Reg.raw themselves —
// their storage lives in whatever Reg their transform closes over — but a
// field with no transform reads and writes Reg.raw directly.
type Reg struct {
	Addr   uint16
	Name   string
	Fields []Field
	raw    uint64
}

// Get reads the full xlen-masked register value, applying every field's
// ReadXform in turn.
func (r *Reg) Get() uint64 {
	var v uint64
	for i := range r.Fields {
		f := &r.Fields[i]
		if f.Access == WO {
			continue
		}
		raw := (r.raw & f.Mask) >> f.shift()
		if f.ReadXform != nil {
			raw = f.ReadXform(raw)
		}
		v |= (raw << f.shift()) & f.Mask
	}
	return v
}

// Set writes every RW/WO field's slice of value, applying WriteXform.
// Read-only fields are silently masked off, matching "writes to an
// RO-marked field do not fault, they are discarded" for whole-register
// writes (CSRRW et al); the privilege gate in Bank.Write is what turns an
// illegal whole-CSR write into a trap.
func (r *Reg) Set(value uint64) {
	for i := range r.Fields {
		f := &r.Fields[i]
		if f.Access == RO {
			continue
		}
		incoming := (value & f.Mask) >> f.shift()
		if f.WriteXform != nil {
			f.WriteXform(incoming)
			continue
		}
		r.raw = (r.raw &^ f.Mask) | ((incoming << f.shift()) & f.Mask)
	}
}

// GetField reads one named field by index into Fields.
func (r *Reg) GetField(i int) uint64 {
	f := &r.Fields[i]
	raw := (r.raw & f.Mask) >> f.shift()
	if f.ReadXform != nil {
		raw = f.ReadXform(raw)
	}
	return raw
}

// SetField writes one named field by index into Fields, independent of
// any other field sharing the register.
func (r *Reg) SetField(i int, value uint64) {
	f := &r.Fields[i]
	if f.WriteXform != nil {
		f.WriteXform(value)
		return
	}
	r.raw = (r.raw &^ f.Mask) | ((value << f.shift()) & f.Mask)
}

// RawBits exposes the register's own storage word, for ReadXform/WriteXform
// closures that read it directly (mstatus's computed SD in hart/csr.go, the
// mideleg mask behind the sie/sip views in isa/s.go).
func (r *Reg) RawBits() uint64     { return r.raw }
func (r *Reg) SetRawBits(v uint64) { r.raw = v }

// Find locates a field by name, or returns -1.
func (r *Reg) Find(name string) int {
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			return i
		}
	}
	return -1
}
