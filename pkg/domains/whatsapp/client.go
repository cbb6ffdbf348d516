package whatsapp

import (
	"context"
	"time"
)

type EventKind string

// Transport events. This set is closed; handle switches over it.
const (
	EventQR            EventKind = "qr"
	EventReady         EventKind = "ready"
	EventAuthenticated EventKind = "authenticated"
	EventDisconnected  EventKind = "disconnected"
	EventAuthFailure   EventKind = "auth_failure"
	EventMessage       EventKind = "message"
	EventError         EventKind = "error"
)

// Event is emitted by a Client. Only the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind
	Code    string
	Reason  string
	Err     error
	Message *InboundMessage
}

// InboundMessage is a text message received on a session.
type InboundMessage struct {
	ID        string
	From      string
	PushName  string
	Text      string
	Timestamp time.Time
}

// Client is one connection to a messaging account. Implementations report
// lifecycle changes through the emit func passed to the factory.
type Client interface {
	// Connect starts the handshake. A code or ready event follows.
	Connect(ctx context.Context) error
	Disconnect()
	Logout(ctx context.Context) error
	// Close releases the credential store handle.
	Close() error
	IsConnected() bool
	IsLoggedIn() bool
	// ResetConnection drops and re-opens the transport link in place.
	ResetConnection() error
	// ResolveRecipient maps an international number to a chat address, or
	// returns ErrRecipientNotFound.
	ResolveRecipient(ctx context.Context, phone string) (string, error)
	SendText(ctx context.Context, to, text string) (string, error)
}

// ClientFactory builds a client bound to the credential directory dir.
type ClientFactory interface {
	NewClient(ctx context.Context, sessionID, dir string, emit func(Event)) (Client, error)
}
