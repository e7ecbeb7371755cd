// Command trajectory-import converts trajectory caches between JSON, YAML
// and SQLite, or records a demo run.
//
//	trajectory-import -in run.json -out run.db
//	trajectory-import -record -points 200 -batch 16 -out demo.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/paulmach/orb"

	"github.com/comalice/trainscope/boundary"
	"github.com/comalice/trainscope/playback"
	"github.com/comalice/trainscope/trajectory"
)

type options struct {
	in     string
	out    string
	record bool
	points int
	batch  int
	seed   uint64
	grid   int
}

func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	var o options
	fs.StringVar(&o.in, "in", "", "trajectory to convert (.json, .yaml, .db)")
	fs.StringVar(&o.out, "out", "", "destination (.json, .yaml, .db)")
	fs.BoolVar(&o.record, "record", false, "record a demo run instead of converting")
	fs.IntVar(&o.points, "points", 200, "demo points")
	fs.IntVar(&o.batch, "batch", 16, "demo batch size")
	fs.Uint64Var(&o.seed, "seed", 1, "demo seed")
	fs.IntVar(&o.grid, "grid", 50, "demo field resolution")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.out == "" {
		return options{}, errors.New("-out is required")
	}
	if o.record == (o.in != "") {
		return options{}, errors.New("pass exactly one of -in and -record")
	}
	return o, nil
}

func run(ctx context.Context, o options, stdout io.Writer) error {
	var (
		cache *trajectory.Cache
		err   error
	)
	if o.record {
		cache, err = record(ctx, o)
	} else {
		cache, err = trajectory.LoadFile(ctx, o.in)
	}
	if err != nil {
		return err
	}
	if err := trajectory.SaveFile(ctx, o.out, cache); err != nil {
		return err
	}
	sum := cache.Summary()
	_, err = fmt.Fprintf(stdout, "wrote %s: %d points, %d steps, %d epochs\n", o.out, sum.Points, sum.Steps, sum.Epochs)
	return err
}

func record(ctx context.Context, o options) (*trajectory.Cache, error) {
	pts := trajectory.TwoBlobs(o.points, o.seed)
	ps := make([]orb.Point, pts.Len())
	for i := range ps {
		ps[i] = orb.Point{pts.X[i], pts.Y[i]}
	}
	src, err := playback.NewGrowing(ps, pts.Class, o.batch)
	if err != nil {
		return nil, err
	}
	svc := boundary.NewLogistic()
	svc.Size = o.grid
	return playback.Record(ctx, pts, src, svc)
}

func main() {
	o, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		slog.Error("parse flags", "error", err)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, os.Stdout); err != nil {
		slog.Error("trajectory-import failed", "error", err)
		os.Exit(1)
	}
}
