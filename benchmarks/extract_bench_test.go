// Package benchmarks provides contour extraction benchmarks.
package benchmarks

import (
	"fmt"
	"testing"

	"github.com/comalice/trainscope/contour"
)

func BenchmarkExtract(b *testing.B) {
	for _, size := range []int{50, 100, 200} {
		b.Run(fmt.Sprintf("grid_%d", size), func(b *testing.B) {
			field := GenField(size)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := contour.Extract(field, contour.DefaultThreshold); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkExtractAndSimplify(b *testing.B) {
	field := GenField(200)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lines, err := contour.Extract(field, contour.DefaultThreshold)
		if err != nil {
			b.Fatal(err)
		}
		_ = contour.Simplify(lines, 0.01)
	}
}
