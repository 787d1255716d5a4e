// Package event defines the closed set of live events pushed to clients
// and the channel contract they travel over. Every server->client push is
// one of these variants; there is no open-ended payload map.
package event

import (
	"encoding/json"

	"duochat/models"
)

// Wire names, matching the client protocol.
const (
	NameStatusChange   = "user-status-change"
	NameTyping         = "user-typing"
	NameStoppedTyping  = "user-stopped-typing"
	NameMessageReceive = "receive-message"
	NameReadReceipt    = "read-receipt"
)

// Presence states carried by StatusChange.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type Event interface {
	Name() string
}

type StatusChange struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

func (StatusChange) Name() string { return NameStatusChange }

type Typing struct {
	UserID string `json:"userId"`
}

func (Typing) Name() string { return NameTyping }

type StoppedTyping struct {
	UserID string `json:"userId"`
}

func (StoppedTyping) Name() string { return NameStoppedTyping }

type MessageReceive struct {
	models.Message
}

func (MessageReceive) Name() string { return NameMessageReceive }

type ReadReceipt struct {
	ReaderID string `json:"readerId"`
}

func (ReadReceipt) Name() string { return NameReadReceipt }

// Frame is the JSON envelope for both directions of the live channel.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode wraps an event in its wire frame.
func Encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: e.Name(), Data: data})
}

// Channel is one live client connection capable of push delivery.
// Send must not block; a full or closed channel reports an error and
// the event is dropped.
type Channel interface {
	Send(Event) error
}
