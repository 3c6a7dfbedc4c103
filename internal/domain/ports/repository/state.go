package repository

import (
	"context"
)

// Conversation steps.
const (
	StepAwaitingProof     = "awaiting_proof"
	StepSupport           = "support"
	StepAwaitingBroadcast = "awaiting_broadcast"
)

// ConversationState is the per-user UI step. It is advisory only and never
// consulted for authorization or uniqueness.
type ConversationState struct {
	Step string            `json:"step"`
	Data map[string]string `json:"data"`
}

// StateRepository stores conversation state with a TTL. GetState returns
// (nil, nil) when no state is stored.
type StateRepository interface {
	SetState(ctx context.Context, tgID int64, state *ConversationState) error
	GetState(ctx context.Context, tgID int64) (*ConversationState, error)
	ClearState(ctx context.Context, tgID int64) error
}
