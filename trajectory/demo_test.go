package trajectory

import (
	"reflect"
	"testing"
)

func TestTwoBlobs(t *testing.T) {
	p := TwoBlobs(100, 7)
	if p.Len() != 100 || len(p.Y) != 100 || len(p.Class) != 100 {
		t.Fatalf("lengths = %d, %d, %d", len(p.X), len(p.Y), len(p.Class))
	}
	if !reflect.DeepEqual(p, TwoBlobs(100, 7)) {
		t.Error("same seed gave different points")
	}
	if reflect.DeepEqual(p, TwoBlobs(100, 8)) {
		t.Error("different seeds gave the same points")
	}

	var mean [2]float64
	for i, c := range p.Class {
		if c != i%2 {
			t.Fatalf("class[%d] = %d", i, c)
		}
		mean[c] += p.X[i] / 50
	}
	if mean[0] >= 0 || mean[1] <= 0 {
		t.Errorf("blob means = %v, want one each side of 0", mean)
	}
}
