package playback

import (
	"time"
)

// Scheduler runs fn once d has elapsed and returns a function cancelling
// it. Cancelling after fn has run is a no-op.
type Scheduler func(d time.Duration, fn func()) (cancel func())

// AfterFunc schedules with time.AfterFunc. fn runs on the timer goroutine.
func AfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Posted schedules with time.AfterFunc and hands fn to post when the timer
// fires, so ticks run on the goroutine behind post. Ticks that post
// refuses are dropped.
func Posted(post func(func()) bool) Scheduler {
	return func(d time.Duration, fn func()) func() {
		return AfterFunc(d, func() { post(fn) })
	}
}
