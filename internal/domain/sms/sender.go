package sms

import (
	"context"
	"errors"
)

// ErrDisabled is returned by senders when SMS delivery is switched off.
var ErrDisabled = errors.New("sms delivery disabled")

// Message is a single outgoing text.
type Message struct {
	Recipient string // E.164-style number, e.g. +4798765432
	Body      string
}

// Sender delivers a message or returns an error. Implementations must not
// report success unless the provider accepted the message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
