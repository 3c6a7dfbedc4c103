package repository

import (
	"context"
	"time"

	"course-access-bot/internal/domain/model"
)

type RedeemableCodeRepository interface {
	// Create inserts a new code. It returns false when the token already exists.
	Create(ctx context.Context, tx Tx, c *model.RedeemableCode) (bool, error)
	// FindByCode returns the code in any state, or domain.ErrNotFound.
	FindByCode(ctx context.Context, tx Tx, code string) (*model.RedeemableCode, error)
	// FindValidForUser returns the longest-lived non-expired code the user
	// holds for the course, or domain.ErrNotFound.
	FindValidForUser(ctx context.Context, tx Tx, userID int64, course string, now time.Time) (*model.RedeemableCode, error)
	// Redeem binds the code to deviceID and marks it used, provided it is
	// unused, unexpired and not bound to another device.
	Redeem(ctx context.Context, tx Tx, code, deviceID string, now time.Time) (bool, error)
	// MarkExpired flags used codes of the device whose expiry has passed.
	MarkExpired(ctx context.Context, tx Tx, deviceID string, now time.Time) (int64, error)
	// ListActiveByDevice returns used, unexpired codes bound to deviceID.
	ListActiveByDevice(ctx context.Context, tx Tx, deviceID string, now time.Time) ([]*model.RedeemableCode, error)
	ListByDevice(ctx context.Context, tx Tx, deviceID string) ([]*model.RedeemableCode, error)
	// Extend moves the expiry and clears the expired flag.
	Extend(ctx context.Context, tx Tx, code string, expiresAt time.Time) (bool, error)
	CountCodes(ctx context.Context, tx Tx) (issued int, used int, err error)
}
