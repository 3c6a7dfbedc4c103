package model

import "time"

// CodeValidity is how long an issued code stays redeemable and how long the
// access it grants lasts.
const CodeValidity = 30 * 24 * time.Hour

// RedeemableCode is a single-use token granting access to one course.
// Codes are never deleted.
type RedeemableCode struct {
	Code          string
	UserID        int64
	DisplayName   string
	Course        string
	DeviceBinding *string
	Used          bool
	Expired       bool
	CreatedAt     time.Time
	ExpiresAt     time.Time
	RedeemedAt    *time.Time
}

func NewRedeemableCode(token string, userID int64, displayName, course string, now time.Time) *RedeemableCode {
	return &RedeemableCode{
		Code:        token,
		UserID:      userID,
		DisplayName: displayName,
		Course:      course,
		CreatedAt:   now,
		ExpiresAt:   now.Add(CodeValidity),
	}
}

func (c *RedeemableCode) IsRedeemable(now time.Time) bool {
	return !c.Used && c.ExpiresAt.After(now)
}

// BoundElsewhere reports whether the code is already tied to a device other
// than deviceID.
func (c *RedeemableCode) BoundElsewhere(deviceID string) bool {
	return c.DeviceBinding != nil && *c.DeviceBinding != deviceID
}

// GrantsAccess reports whether the code currently entitles deviceID.
func (c *RedeemableCode) GrantsAccess(deviceID string, now time.Time) bool {
	return c.Used && !c.Expired && c.DeviceBinding != nil && *c.DeviceBinding == deviceID && c.ExpiresAt.After(now)
}
