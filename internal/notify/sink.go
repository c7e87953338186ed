package notify

import "github.com/gen2brain/beeep"

// Sink delivers a notification to the user. Implementations may be
// permission-gated by the OS; a delivery failure is the caller's concern
// and never the evaluator's.
type Sink interface {
	Notify(title, body string) error
}

// DesktopSink sends native OS notifications.
type DesktopSink struct {
	// AppIcon is an optional icon path passed to the OS notification.
	AppIcon string
}

// Notify shows a desktop notification.
func (s DesktopSink) Notify(title, body string) error {
	return beeep.Notify(title, body, s.AppIcon)
}
