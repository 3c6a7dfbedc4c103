package model

import "time"

// Entitlement is the access a device currently holds for one course.
type Entitlement struct {
	Course    string    `json:"course"`
	ExpiresAt time.Time `json:"expiresAt"`
	Expired   bool      `json:"expired"`
}

// Activation is the result of a successful redemption.
type Activation struct {
	Course    string
	ExpiresAt time.Time
}
