// Package benchmarks provides trajectory loading benchmarks.
package benchmarks

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/comalice/trainscope/trajectory"
)

func BenchmarkLoad(b *testing.B) {
	ctx := context.Background()
	dir := b.TempDir()
	yamlPath := filepath.Join(dir, "run.yaml")
	if err := os.WriteFile(yamlPath, GenCacheYAML(500, 50), 0o644); err != nil {
		b.Fatal(err)
	}
	cache, err := trajectory.LoadFile(ctx, yamlPath)
	if err != nil {
		b.Fatal(err)
	}
	for _, ext := range []string{"json", "db"} {
		if err := trajectory.SaveFile(ctx, filepath.Join(dir, "run."+ext), cache); err != nil {
			b.Fatal(err)
		}
	}

	for _, ext := range []string{"yaml", "json", "db"} {
		path := filepath.Join(dir, "run."+ext)
		b.Run(ext, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := trajectory.LoadFile(ctx, path); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
