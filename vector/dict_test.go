package vector

import (
	"math"
	"testing"
)

func TestVectorFileRoundTripBitExact(t *testing.T) {
	special := []float32{
		0, float32(math.Copysign(0, -1)), 1.0 / 3, -2.5e-38, math.MaxFloat32,
		math.SmallestNonzeroFloat32, float32(math.Inf(1)), float32(math.Inf(-1)),
	}
	in := []VectorEntry{
		{ItemID: 10001, Category: 3, Pos: 0, Vector: special},
		{Key: "kw_camera", Vector: []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}},
		{ItemID: 1 << 40, Category: 12, Pos: 7},
	}
	out, skipped, err := DecodeVectorFile(EncodeVectorFile(in))
	if err != nil || skipped != 0 {
		t.Fatalf("decode: skipped=%d err=%v", skipped, err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d entries, want %d", len(out), len(in))
	}
	for i := range in {
		a, b := in[i], out[i]
		if a.Key != b.Key || a.ItemID != b.ItemID || a.Category != b.Category || a.Pos != b.Pos {
			t.Errorf("entry %d header = %+v, want %+v", i, b, a)
		}
		if len(a.Vector) != len(b.Vector) {
			t.Fatalf("entry %d vector len = %d, want %d", i, len(b.Vector), len(a.Vector))
		}
		for j := range a.Vector {
			if math.Float32bits(a.Vector[j]) != math.Float32bits(b.Vector[j]) {
				t.Errorf("entry %d[%d] = %08x, want %08x", i, j, math.Float32bits(b.Vector[j]), math.Float32bits(a.Vector[j]))
			}
		}
	}
}

func TestParseVectorsSkipsWrongDimension(t *testing.T) {
	raw := EncodeVectorFile([]VectorEntry{
		{ItemID: 1, Category: 1, Pos: 0, Vector: []float32{1, 0}},
		{ItemID: 2, Category: 1, Pos: 1, Vector: []float32{1, 0, 0}},
	})
	d, skipped, err := parseItemVectors(raw, 2)
	if err != nil {
		t.Fatal(err)
	}
	if skipped != 1 || len(d.vectors) != 1 || d.keys[0] != "1_1" {
		t.Errorf("skipped=%d dict=%+v", skipped, d)
	}

	aux, skipped, err := parseKeynameVectors(EncodeVectorFile([]VectorEntry{
		{Key: "a", Vector: []float32{1, 1}},
		{Key: "", Vector: []float32{1, 1}},
	}), 2)
	if err != nil || skipped != 1 || len(aux) != 1 {
		t.Errorf("aux=%v skipped=%d err=%v", aux, skipped, err)
	}
}

func TestDecodeVectorFileCorrupt(t *testing.T) {
	raw := EncodeVectorFile([]VectorEntry{{Key: "a", Vector: []float32{1}}})
	if _, _, err := DecodeVectorFile(raw[:len(raw)-1]); err == nil {
		t.Error("expected decode error on truncated file")
	}
}
