package repository

import (
	"context"

	"course-access-bot/internal/domain/model"
)

type UserRepository interface {
	// Save inserts or updates by TelegramID.
	Save(ctx context.Context, tx Tx, u *model.User) error
	// FindByTelegramID returns domain.ErrNotFound for unknown users.
	FindByTelegramID(ctx context.Context, tx Tx, tgID int64) (*model.User, error)
	ListApprovers(ctx context.Context, tx Tx) ([]*model.User, error)
	// ListRecipients returns every non-approver user, the broadcast audience.
	ListRecipients(ctx context.Context, tx Tx) ([]*model.User, error)
	CountUsers(ctx context.Context, tx Tx) (int, error)
}
