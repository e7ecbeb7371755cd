// Package trainscope is the shared core of the training-dynamics dashboards.
//
// A dashboard session owns one Store: a row-aligned columnar container of
// point records (coordinates, class label, membership state and render
// attributes) plus a set of polyline overlays such as the decision boundary.
// Controllers mutate the store only through Set, Writer.Set and the overlay
// handles; renderers subscribe and read.
//
// # Store Guarantees
//
//   - Every column has the same length N. A mutation that would break this
//     fails with ErrSchemaMismatch and nothing is applied.
//   - Observers run synchronously after each applied mutation.
//   - Mutations issued from inside an observer are applied after the
//     current notification round, in order.
//   - The state column is claimed by the selection machine; other writers
//     get ErrColumnClaimed.
//
// # Example Usage
//
//	store, _ := trainscope.NewPointsBuilder(trainscope.DefaultPalette()).
//		Point(0, 0, 0).
//		Point(1, 1, 1).
//		Build()
//	unsubscribe := store.Subscribe(func(c trainscope.Change) {
//		fmt.Println("changed:", c.Columns)
//	})
//	defer unsubscribe()
//
// The Machine type is a small flat mode machine (entry/exit actions,
// guards, internal transitions) the playback controller uses for its
// Paused/Playing modes.
package trainscope
