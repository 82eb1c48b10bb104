// Package chat defines the contract the bridge consumes from the chat platform client.
package chat

import (
	"context"
	"errors"
)

// ErrClosed is returned by Session methods after Close.
var ErrClosed = errors.New("chat session closed")

// EventKind discriminates chat session events.
type EventKind int

const (
	// EventReady fires once the platform session is usable.
	EventReady EventKind = iota
	// EventMessage is an inbound channel message.
	EventMessage
	// EventDisconnected fires when the platform gateway drops. The client
	// reconnects on its own; the session stays open.
	EventDisconnected
	// EventResumed fires when the gateway comes back after EventDisconnected.
	EventResumed
)

// Message is an inbound channel message.
type Message struct {
	ID          string
	ChannelID   string
	Author      string
	AuthorIsBot bool
	Text        string
}

// Event is a single notification from the chat session.
type Event struct {
	Kind EventKind
	// Self is the bot's own display name, set for EventReady.
	Self    string
	Message Message
}

// Session is a logged-in chat platform connection.
type Session interface {
	Events() <-chan Event
	// Send posts text to channelID.
	Send(ctx context.Context, channelID, text string) error
	// Reply posts text to channelID as a reply to messageID.
	Reply(ctx context.Context, channelID, messageID, text string) error
	Close() error
}

// Connector logs in to the chat platform.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Session, error)

// Connect calls f.
func (f ConnectorFunc) Connect(ctx context.Context) (Session, error) { return f(ctx) }
