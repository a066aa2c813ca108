package trap

import "testing"

func TestCauseSetsInterruptBit(t *testing.T) {
	c := Cause(MTI, true, 64)
	if c != (uint64(1)<<63)|uint64(MTI) {
		t.Fatalf("got %#x", c)
	}
	c = Cause(IllegalInsn, false, 32)
	if c != uint64(IllegalInsn) {
		t.Fatalf("got %#x", c)
	}
}

func TestPendingPriorityOrder(t *testing.T) {
	// All six pending and enabled: must pick MEI first.
	all := uint64(1)<<MEI | uint64(1)<<MSI | uint64(1)<<MTI | uint64(1)<<SEI | uint64(1)<<SSI | uint64(1)<<STI
	code, ok := Pending(all, all)
	if !ok || code != MEI {
		t.Fatalf("got (%d,%v), want (%d,true)", code, ok, MEI)
	}

	// Only S-level bits: must pick SEI over SSI/STI.
	sOnly := uint64(1)<<SEI | uint64(1)<<SSI | uint64(1)<<STI
	code, ok = Pending(sOnly, sOnly)
	if !ok || code != SEI {
		t.Fatalf("got (%d,%v), want (%d,true)", code, ok, SEI)
	}
}

func TestPendingNoneEnabled(t *testing.T) {
	_, ok := Pending(uint64(1)<<MTI, 0)
	if ok {
		t.Fatal("nothing enabled, expected ok=false")
	}
}

func TestExceptionIsError(t *testing.T) {
	var err error = NewException(IllegalInsn, 0)
	if err.Error() == "" {
		t.Fatal("expected non-empty message")
	}
}
