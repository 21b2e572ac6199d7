package model

import "time"

// ProviderLock is an advisory lock document that serializes writes to one
// provider's bookings. Expired locks are swept by a TTL index on expires_at.
type ProviderLock struct {
	ID         string    `bson:"_id" json:"id"`
	ProviderID string    `bson:"provider_id" json:"provider_id"`
	Owner      string    `bson:"owner" json:"owner"`
	ExpiresAt  time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

func ProviderLockID(providerID string) string {
	return "provider_lock_" + providerID
}

type PaymentRequest struct {
	BookingID string `json:"booking_id"`
	Reference string `json:"reference"`
	Amount    Money  `json:"amount"`
	Currency  string `json:"currency"`
}
