package xdr

import (
	"math"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	w := NewBufferWriter(64)
	w.WriteByte(0x01)
	w.WriteUint32(0xdeadbeef)
	w.WriteInt32(-42)
	w.WriteUint64(1 << 40)
	w.WriteFloat32(3.25)
	w.WriteString("beauty")

	r := NewReader(w.Bytes())

	if b, err := r.ReadByte(); err != nil || b != 0x01 {
		t.Errorf("ReadByte = %v, %v", b, err)
	}
	if v, err := r.ReadUint32(); err != nil || v != 0xdeadbeef {
		t.Errorf("ReadUint32 = %#x, %v", v, err)
	}
	if v, err := r.ReadInt32(); err != nil || v != -42 {
		t.Errorf("ReadInt32 = %d, %v", v, err)
	}
	if v, err := r.ReadUint64(); err != nil || v != 1<<40 {
		t.Errorf("ReadUint64 = %d, %v", v, err)
	}
	if v, err := r.ReadFloat32(); err != nil || v != 3.25 {
		t.Errorf("ReadFloat32 = %v, %v", v, err)
	}
	if s, err := r.ReadString(); err != nil || s != "beauty" {
		t.Errorf("ReadString = %q, %v", s, err)
	}
	if r.Len() != 0 {
		t.Errorf("Len after full read = %d, want 0", r.Len())
	}
}

func TestFloat32Slice(t *testing.T) {
	src := []float32{0, 1, -2.5, float32(math.Inf(1)), 1e-20}
	w := NewBufferWriter(0)
	w.WriteFloat32Slice(src)

	dst := make([]float32, len(src))
	r := NewReader(w.Bytes())
	if err := r.ReadFloat32Slice(dst, len(src)); err != nil {
		t.Fatalf("ReadFloat32Slice: %v", err)
	}
	for i := range src {
		if dst[i] != src[i] {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], src[i])
		}
	}
}

func TestShortBuffer(t *testing.T) {
	r := NewReader([]byte{1, 2})
	if _, err := r.ReadUint32(); err != ErrShortBuffer {
		t.Errorf("ReadUint32 on short buffer = %v, want ErrShortBuffer", err)
	}
	if _, err := r.ReadBytes(3); err != ErrShortBuffer {
		t.Errorf("ReadBytes(3) = %v, want ErrShortBuffer", err)
	}
	if _, err := r.ReadBytes(-1); err != ErrNegativeSize {
		t.Errorf("ReadBytes(-1) = %v, want ErrNegativeSize", err)
	}
	if err := r.Skip(5); err != ErrShortBuffer {
		t.Errorf("Skip(5) = %v, want ErrShortBuffer", err)
	}
}

func TestReaderPositions(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4})
	if err := r.Skip(2); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if r.Pos() != 2 || r.Len() != 2 {
		t.Errorf("Pos/Len = %d/%d, want 2/2", r.Pos(), r.Len())
	}
}
