// Package notify delivers the end-of-run summary. The caller decides
// whether to notify; a Notifier only composes and transports.
package notify

import (
	"context"
	"errors"
	"strings"
)

// ErrHostNotSet is returned when no SMTP host is configured.
var ErrHostNotSet = errors.New("smtp host is not set")

// Notifier sends the outcome of a run together with its transcript.
type Notifier interface {
	Notify(ctx context.Context, success bool, transcript string) error
}

// Message is a composed notification.
type Message struct {
	Subject   string
	Body      string
	Truncated bool
}

// Compose builds the subject and body for a run outcome. The transcript
// is cut to maxBytes first.
func Compose(subject string, success bool, transcript string, maxBytes int) Message {
	log, truncated := Truncate(transcript, maxBytes)

	var b strings.Builder
	if success {
		b.WriteString("SnapRAID job completed successfully:\n\n\n")
		subject += " SUCCESS"
	} else {
		b.WriteString("Error during SnapRAID job:\n\n\n")
		subject += " ERROR"
	}
	b.WriteString(log)
	return Message{Subject: subject, Body: b.String(), Truncated: truncated}
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, success bool, transcript string) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, success bool, transcript string) error {
	return f(ctx, success, transcript)
}
