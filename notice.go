package trainscope

// NoticeLevel grades a user-visible message.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeWarn  NoticeLevel = "warn"
	NoticeError NoticeLevel = "error"
)

// Notice is user-visible text raised by a controller. Recoverable
// conditions (missing classes, playback bounds, empty selections) become
// notices instead of errors.
type Notice struct {
	Level NoticeLevel `json:"level"`
	Text  string      `json:"text"`
}

// Notifier receives notices. A nil Notifier discards them.
type Notifier func(Notice)

// Notify calls n if it is set.
func (n Notifier) Notify(level NoticeLevel, text string) {
	if n != nil {
		n(Notice{Level: level, Text: text})
	}
}
