package types

import "time"

// EventType names an account lifecycle event.
type EventType string

const (
	EventRegistered      EventType = "user.registered"
	EventCreated         EventType = "user.created"
	EventLoggedIn        EventType = "user.logged_in"
	EventPasswordChanged EventType = "user.password_changed"
)

// AccountEvent is published whenever an account is created or its
// credentials are used or changed. It never carries secrets.
type AccountEvent struct {
	Type   EventType `json:"type"`
	UserID string    `json:"userId"`
	Email  string    `json:"email"`
	Role   Role      `json:"role"`
	At     time.Time `json:"at"`
}

// NewAccountEvent describes an event of type t for u at the given time.
func NewAccountEvent(t EventType, u User, at time.Time) AccountEvent {
	return AccountEvent{
		Type:   t,
		UserID: u.ID.Hex(),
		Email:  u.Email,
		Role:   u.Role,
		At:     at.UTC(),
	}
}
