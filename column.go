package trainscope

// Column is one row-aligned array of the store.
type Column interface {
	Len() int
	// Clone returns a deep copy.
	Clone() Column
}

type (
	Floats  []float64
	Ints    []int
	Strings []string
	States  []State
)

func (c Floats) Len() int  { return len(c) }
func (c Ints) Len() int    { return len(c) }
func (c Strings) Len() int { return len(c) }
func (c States) Len() int  { return len(c) }

func (c Floats) Clone() Column  { return append(Floats(nil), c...) }
func (c Ints) Clone() Column    { return append(Ints(nil), c...) }
func (c Strings) Clone() Column { return append(Strings(nil), c...) }
func (c States) Clone() Column  { return append(States(nil), c...) }

// Fill returns a Floats column of length n set to v.
func Fill(n int, v float64) Floats {
	out := make(Floats, n)
	for i := range out {
		out[i] = v
	}
	return out
}
