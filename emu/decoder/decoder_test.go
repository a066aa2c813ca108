package decoder

import (
	"math/rand"
	"testing"
)

type stubEntry struct {
	code, mask uint32
	name       string
}

func (s stubEntry) Code() uint32 { return s.code }
func (s stubEntry) Mask() uint32 { return s.mask }

func TestDecodeRoundTrip(t *testing.T) {
	entries := []stubEntry{
		{code: 0x00000033, mask: 0xfe00707f, name: "add"},
		{code: 0x40000033, mask: 0xfe00707f, name: "sub"},
		{code: 0x00000013, mask: 0x0000707f, name: "addi"},
		{code: 0x00000063, mask: 0x0000707f, name: "beq"},
		{code: 0x00002003, mask: 0x0000707f, name: "lw"},
	}
	d := New()
	for _, e := range entries {
		d.Register(e)
	}
	d.Lock()

	rng := rand.New(rand.NewSource(1))
	for _, e := range entries {
		for i := 0; i < 200; i++ {
			filled := e.code | (uint32(rng.Int63()) &^ e.mask)
			got, ok := d.Decode(filled)
			if !ok {
				t.Fatalf("%s: decode(%#x) failed", e.name, filled)
			}
			gotEntry := got.(stubEntry)
			if gotEntry.name != e.name {
				t.Fatalf("filled=%#x: got %s, want %s", filled, gotEntry.name, e.name)
			}
		}
	}
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate (code,mask)")
		}
	}()
	d := New()
	d.Register(stubEntry{code: 1, mask: 0xff})
	d.Register(stubEntry{code: 1, mask: 0xff})
}

func TestIllegalInstructionNotFound(t *testing.T) {
	d := New()
	d.Register(stubEntry{code: 0x33, mask: 0x7f})
	d.Lock()
	if _, ok := d.Decode(0); ok {
		t.Fatal("expected no match for an unregistered opcode")
	}
}

func TestOverlappingMasksBothReachable(t *testing.T) {
	// Two entries where one is a strict subset pattern of the other; both
	// must be independently decodable depending on the differentiating bits.
	wide := stubEntry{code: 0x00000033, mask: 0x0000007f, name: "op-wide"}
	narrow := stubEntry{code: 0x40000033, mask: 0xfe00707f, name: "op-narrow"}
	d := New()
	d.Register(wide)
	d.Register(narrow)
	d.Lock()

	got, ok := d.Decode(0x40000033)
	if !ok {
		t.Fatal("expected a match for the narrow-qualifying word")
	}
	if got.(stubEntry).name != "op-narrow" {
		t.Fatalf("decode(0x40000033) = %v, want op-narrow", got)
	}

	got, ok = d.Decode(0x00000033)
	if !ok {
		t.Fatal("expected a match for the wide-only word")
	}
	if got.(stubEntry).name != "op-wide" {
		t.Fatalf("decode(0x00000033) = %v, want op-wide", got)
	}
}

func TestLockPreventsRegister(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic registering after Lock")
		}
	}()
	d := New()
	d.Lock()
	d.Register(stubEntry{code: 1, mask: 1})
}
