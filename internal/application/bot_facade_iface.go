package application

import (
	"context"

	"course-access-bot/internal/domain/model"
	"course-access-bot/internal/usecase"
)

// ---- small interfaces to decouple the facade from concrete usecase structs ----
// These describe the minimal surface that the facade needs. Using interfaces
// enables tests to pass in light-weight mocks.
type UserUseCaseIface interface {
	RegisterOrFetch(ctx context.Context, tgID int64, username, firstName string) (*model.User, error)
	ApproverChatIDs(ctx context.Context) ([]int64, error)
}

type RequestUseCaseIface interface {
	CreateRequest(ctx context.Context, userID int64, displayName, courseKey string) (*model.PendingRequest, error)
	AttachProof(ctx context.Context, requestID string, userID int64, proofRef string) error
	Decide(ctx context.Context, requestID string, approver usecase.Actor, outcome model.Outcome) (*usecase.Decision, error)
}

type BroadcastUseCaseIface interface {
	Broadcast(ctx context.Context, message string) (int, error)
}

type StatsUseCaseIface interface {
	Snapshot(ctx context.Context) (usecase.Stats, error)
}
