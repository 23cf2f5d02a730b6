package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventHello EventKind = "hello"
	EventVote  EventKind = "vote"
	// EventErase is published when an anonymous erasure removed votes.
	EventErase EventKind = "erase"
	// EventResync carries no counts; viewers should re-fetch the tally.
	EventResync EventKind = "resync"
	EventError  EventKind = "error"
)

// FanoutMessage is the tally response shape plus an event discriminator.
type FanoutMessage struct {
	Kind EventKind `json:"kind"`
	Tally
}

func TopicFor(statementID uuid.UUID) string {
	return "statement:" + statementID.String()
}

type Hello struct {
	Kind    EventKind `json:"kind"`
	Channel string    `json:"channel"`
	TS      int64     `json:"ts"`
}

func NewHello(channel string, now time.Time) Hello {
	return Hello{Kind: EventHello, Channel: channel, TS: now.UnixMilli()}
}

type StreamError struct {
	Kind    EventKind `json:"kind"`
	Message string    `json:"message"`
}
