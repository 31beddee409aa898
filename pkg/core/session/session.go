// Package session tracks participant identity and connection liveness per
// room. A session survives transient disconnects through a bounded grace
// period; the token is the durable identity, the connection id is transient
// and changes across reconnects.
package session

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for an unknown token or participant.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned when a token is past its absolute lifetime.
	ErrExpired = errors.New("session token expired")
)

// Session is a point-in-time snapshot of a tracked session. Mutation happens
// only inside the Manager; callers always receive copies.
type Session struct {
	Token           string
	ParticipantID   string
	RoomID          string
	DisplayName     string
	CreatedAt       time.Time
	LastConnectedAt time.Time

	// ConnectionID is empty while the participant is disconnected.
	ConnectionID string
	// GracePeriodActive is true while a disconnect expiry timer is pending.
	GracePeriodActive bool
}
