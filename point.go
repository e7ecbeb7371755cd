package trainscope

import "fmt"

// State is a point's membership in the fitting set.
type State int

const (
	Active State = iota
	PendingRemove
	PendingAdd
	Excluded
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case PendingRemove:
		return "pending_remove"
	case PendingAdd:
		return "pending_add"
	case Excluded:
		return "excluded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name so renderers never see raw enum values.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "active":
		*s = Active
	case "pending_remove":
		*s = PendingRemove
	case "pending_add":
		*s = PendingAdd
	case "excluded":
		*s = Excluded
	default:
		return fmt.Errorf("unknown point state %q", string(b))
	}
	return nil
}

// Well-known column names.
const (
	ColID     = "id"
	ColX      = "x"
	ColY      = "y"
	ColClass  = "class"
	ColState  = "state"
	ColColor  = "color"
	ColPrev   = "prev"
	ColSize   = "size"
	ColAlpha  = "alpha"
	ColMarker = "marker"
)

// Palette holds every color, marker and size the dashboards render points with.
type Palette struct {
	Classes       []string
	Markers       []string
	PendingRemove string
	PendingAdd    string
	Excluded      string
	Trackers      []string
	Size          float64
	TrackedSize   float64
	FadedAlpha    float64
}

// DefaultPalette returns the two-class palette used by the boundary dashboards.
func DefaultPalette() Palette {
	return Palette{
		Classes:       []string{"blue", "green"},
		Markers:       []string{"circle", "square"},
		PendingRemove: "red",
		PendingAdd:    "lime",
		Excluded:      "grey",
		Trackers:      []string{"#d55e00", "#cc79a7", "#0072b2", "#f0e442", "#009e73"},
		Size:          6,
		TrackedSize:   10,
		FadedAlpha:    0.2,
	}
}

// ClassColor returns the default color for a class label. Labels beyond
// the palette wrap around.
func (p Palette) ClassColor(label int) string {
	if len(p.Classes) == 0 {
		return "black"
	}
	return p.Classes[wrap(label, len(p.Classes))]
}

// ClassMarker returns the marker for a class label.
func (p Palette) ClassMarker(label int) string {
	if len(p.Markers) == 0 {
		return "circle"
	}
	return p.Markers[wrap(label, len(p.Markers))]
}

// IsTracker reports whether color is one of the tracker group colors.
func (p Palette) IsTracker(color string) bool {
	for _, c := range p.Trackers {
		if c == color {
			return true
		}
	}
	return false
}

// StateColor returns the render color of a point in state s with class label.
func (p Palette) StateColor(s State, label int) string {
	switch s {
	case PendingRemove:
		return p.PendingRemove
	case PendingAdd:
		return p.PendingAdd
	case Excluded:
		return p.Excluded
	default:
		return p.ClassColor(label)
	}
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
