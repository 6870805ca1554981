package film

import "testing"

func TestResampleMaskBits(t *testing.T) {
	m := NewResampleMask(7, 5)

	if m.GetBit(3, 2) {
		t.Error("fresh mask has bit set")
	}
	m.SetBit(3, 2)
	if !m.GetBit(3, 2) {
		t.Error("SetBit(3,2) not visible")
	}
	if m.GetBit(2, 3) {
		t.Error("neighboring bit leaked")
	}
	m.ClearBit(3, 2)
	if m.GetBit(3, 2) {
		t.Error("ClearBit(3,2) not visible")
	}
}

func TestResampleMaskPacking(t *testing.T) {
	// Adjacent pixels must not alias even with multiple planes packed.
	m := NewResampleMask(64, 2)
	for x := 0; x < 64; x += 2 {
		m.SetBit(x, 0)
	}
	for x := 0; x < 64; x++ {
		want := x%2 == 0
		if m.GetBit(x, 0) != want {
			t.Fatalf("bit (%d,0) = %v, want %v", x, m.GetBit(x, 0), want)
		}
		if m.GetBit(x, 1) {
			t.Fatalf("bit (%d,1) set, row leak", x)
		}
	}
}

func TestResampleMaskClearCount(t *testing.T) {
	m := NewResampleMask(4, 4)
	m.SetBit(0, 0)
	m.SetBit(3, 3)
	m.SetBit(1, 2)
	if n := m.Count(); n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
	m.Clear()
	if n := m.Count(); n != 0 {
		t.Errorf("Count after Clear = %d, want 0", n)
	}
}
