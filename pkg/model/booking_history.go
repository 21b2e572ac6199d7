package model

import "time"

// BookingHistory is one audit row per state change, written with the change itself.
type BookingHistory struct {
	ID         string        `json:"id" bson:"_id"`
	BookingID  string        `json:"booking_id" bson:"booking_id"`
	ProviderID string        `json:"provider_id" bson:"provider_id"`
	Event      string        `json:"event" bson:"event"`
	From       BookingStatus `json:"from,omitempty" bson:"from,omitempty"`
	To         BookingStatus `json:"to" bson:"to"`
	ActorID    string        `json:"actor_id" bson:"actor_id"`
	ActorRole  Party         `json:"actor_role" bson:"actor_role"`
	Reason     string        `json:"reason,omitempty" bson:"reason,omitempty"`
	At         time.Time     `json:"at" bson:"at"`
}
