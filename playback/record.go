package playback

import (
	"context"
	"fmt"

	"github.com/comalice/trainscope"
	"github.com/comalice/trainscope/boundary"
	"github.com/comalice/trainscope/contour"
	"github.com/comalice/trainscope/trajectory"
)

// Record fits every step of src with svc and stores the fitted fields, so
// the run can later be replayed without the service. Steps whose fit fails
// abort the recording. Steps holding a single class are not fitted and
// keep the field of the step before them.
func Record(ctx context.Context, points trajectory.Points, src LiveSource, svc boundary.Service) (*trajectory.Cache, error) {
	cache := &trajectory.Cache{
		BatchesPerEpoch: src.BatchesPerEpoch(),
		Points:          points,
		Steps:           make([]trajectory.Step, 0, src.Len()),
	}
	var last *contour.Field
	for step := 0; step < src.Len(); step++ {
		req, cols, err := src.Request(step)
		if err != nil {
			return nil, fmt.Errorf("record step %d: %w", step, err)
		}
		if req.Classes() >= 2 {
			res := boundary.Fit(ctx, svc, req)
			if res.Err != nil {
				return nil, fmt.Errorf("record step %d: %w", step, res.Err)
			}
			last = &res.Field
		}
		s := trajectory.Step{Field: last}
		for name, col := range cols {
			switch c := col.(type) {
			case trainscope.Floats:
				if s.Floats == nil {
					s.Floats = make(map[string][]float64)
				}
				s.Floats[name] = c
			case trainscope.Strings:
				if s.Strings == nil {
					s.Strings = make(map[string][]string)
				}
				s.Strings[name] = c
			default:
				return nil, fmt.Errorf("record step %d: column %q: %w", step, name, trainscope.ErrSchemaMismatch)
			}
		}
		cache.Steps = append(cache.Steps, s)
	}
	if err := cache.Validate(); err != nil {
		return nil, err
	}
	return cache, nil
}
