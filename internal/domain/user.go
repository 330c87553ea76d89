package domain

import "time"

// User is the isolation boundary for every other entity. ExternalID is the
// identity-provider subject and the idempotency key for auto-provisioning.
type User struct {
	ID          string    `json:"id" db:"id"`
	ExternalID  string    `json:"external_id" db:"external_id"`
	Name        string    `json:"name" db:"name"`
	Email       string    `json:"email" db:"email"`
	IdPMetadata []byte    `json:"idp_metadata,omitempty" db:"idp_metadata"`
	Notes       string    `json:"notes,omitempty" db:"notes"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
