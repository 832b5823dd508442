// Package notifytest provides an in-memory notify.Notifier for tests.
package notifytest

import (
	"context"
	"sync"

	"github.com/jmcleod/drivelocker/notify"
)

// Kind identifies which message was sent.
type Kind string

const (
	Verification Kind = "verification"
	Reset        Kind = "reset"
	Welcome      Kind = "welcome"
)

// Message is one recorded send.
type Message struct {
	Kind  Kind
	Email string
	Code  string
	Name  string
}

// Outbox records every message and can be told to fail.
type Outbox struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

var _ notify.Notifier = (*Outbox)(nil)

// New returns an empty Outbox.
func New() *Outbox {
	return &Outbox{}
}

// FailWith makes subsequent sends return err; nil restores success.
func (o *Outbox) FailWith(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

func (o *Outbox) record(m Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.messages = append(o.messages, m)
	return nil
}

func (o *Outbox) SendVerification(_ context.Context, email, code string) error {
	return o.record(Message{Kind: Verification, Email: email, Code: code})
}

func (o *Outbox) SendPasswordReset(_ context.Context, email, code string) error {
	return o.record(Message{Kind: Reset, Email: email, Code: code})
}

func (o *Outbox) SendWelcome(_ context.Context, email, name string) error {
	return o.record(Message{Kind: Welcome, Email: email, Name: name})
}

// Last returns the most recent message of kind sent to email.
func (o *Outbox) Last(email string, kind Kind) (Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.messages) - 1; i >= 0; i-- {
		if m := o.messages[i]; m.Email == email && m.Kind == kind {
			return m, true
		}
	}
	return Message{}, false
}

// Count returns the number of messages of kind sent to email.
func (o *Outbox) Count(email string, kind Kind) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, m := range o.messages {
		if m.Email == email && m.Kind == kind {
			n++
		}
	}
	return n
}
