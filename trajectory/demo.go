package trajectory

import (
	"math/rand/v2"
)

// TwoBlobs returns n points in two Gaussian blobs centred on (-1, -1) and
// (1, 1), alternating between class 0 and class 1. The same seed always
// yields the same points.
func TwoBlobs(n int, seed uint64) Points {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	p := Points{
		X:     make([]float64, n),
		Y:     make([]float64, n),
		Class: make([]int, n),
	}
	for i := 0; i < n; i++ {
		label := i % 2
		centre := float64(2*label - 1)
		p.X[i] = centre + 0.6*r.NormFloat64()
		p.Y[i] = centre + 0.6*r.NormFloat64()
		p.Class[i] = label
	}
	return p
}
