package repository

import (
	"context"
	"time"

	"course-access-bot/internal/domain/model"
)

type PendingRequestRepository interface {
	Create(ctx context.Context, tx Tx, r *model.PendingRequest) error
	// FindByID returns domain.ErrNotFound when the request does not exist.
	FindByID(ctx context.Context, tx Tx, id string) (*model.PendingRequest, error)
	// FindLatestByUser returns the request with the newest LastRequestAt, or
	// domain.ErrNotFound.
	FindLatestByUser(ctx context.Context, tx Tx, userID int64) (*model.PendingRequest, error)
	// AttachProof sets the proof only if the request belongs to userID, is
	// pending and has no proof yet. It reports whether a row changed.
	AttachProof(ctx context.Context, tx Tx, id string, userID int64, proofRef string) (bool, error)
	// TransitionStatus is a compare-and-set on status.
	TransitionStatus(ctx context.Context, tx Tx, id string, from, to model.RequestStatus) (bool, error)
	Delete(ctx context.Context, tx Tx, id string) error
	// DeleteStale removes pending requests without proof last touched before
	// olderThan, and decided requests left over from an interrupted cleanup.
	DeleteStale(ctx context.Context, tx Tx, olderThan time.Time) (int64, error)
	CountPending(ctx context.Context, tx Tx) (int, error)
}
