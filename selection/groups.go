package selection

import (
	"fmt"

	"github.com/comalice/trainscope"
)

// ApplyGroupColor paints the current selection with tracker color colorID
// so it can be followed through playback. Every other active point that is
// not already tracked is faded. Pending points keep their mark so that a
// single-click undo restores what the user sees. The state column is left
// untouched.
func (m *Machine) ApplyGroupColor(colorID int) error {
	if colorID < 0 || colorID >= len(m.palette.Trackers) {
		m.notify.Notify(trainscope.NoticeWarn, fmt.Sprintf("Unknown tracker color %d.", colorID))
		return nil
	}
	if len(m.selected) == 0 {
		m.notify.Notify(trainscope.NoticeWarn, "No points selected to apply color.")
		return nil
	}
	color := m.palette.Trackers[colorID]

	colors := m.store.Strings(trainscope.ColColor).Clone().(trainscope.Strings)
	alphas := m.store.Floats(trainscope.ColAlpha).Clone().(trainscope.Floats)
	sizes := m.store.Floats(trainscope.ColSize).Clone().(trainscope.Floats)
	states := m.store.States(trainscope.ColState)

	selected := make(map[int]bool, len(m.selected))
	for _, idx := range m.selected {
		selected[idx] = true
	}
	for i := range colors {
		switch {
		case selected[i]:
			colors[i] = color
			alphas[i] = 1
			sizes[i] = m.palette.TrackedSize
		case states[i] != trainscope.Active:
		case colors[i] != m.palette.Excluded && !m.palette.IsTracker(colors[i]):
			colors[i] = m.palette.Excluded
			alphas[i] = m.palette.FadedAlpha
		}
	}

	if err := m.writer.Set(map[string]trainscope.Column{
		trainscope.ColColor: colors,
		trainscope.ColAlpha: alphas,
		trainscope.ColSize:  sizes,
	}); err != nil {
		return fmt.Errorf("apply group color: %w", err)
	}
	m.logger.Debug("tracker color applied", "color", color, "points", len(m.selected))
	return nil
}

// ClearGroups removes every tracker color: points get the color of their
// state, full alpha and the default size. The selection is cleared.
func (m *Machine) ClearGroups() error {
	m.selected = nil
	n := m.store.Len()
	labels := m.store.Ints(trainscope.ColClass)
	states := m.store.States(trainscope.ColState)
	colors := make(trainscope.Strings, n)
	for i := range colors {
		colors[i] = m.palette.StateColor(states[i], labels[i])
	}
	if err := m.writer.Set(map[string]trainscope.Column{
		trainscope.ColColor: colors,
		trainscope.ColAlpha: trainscope.Fill(n, 1),
		trainscope.ColSize:  trainscope.Fill(n, m.palette.Size),
	}); err != nil {
		return fmt.Errorf("clear groups: %w", err)
	}
	return nil
}
