package model

import (
	"time"

	"github.com/oklog/ulid/v2"

	"course-access-bot/internal/domain"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// RequestCooldown is the minimum gap between two requests of the same user.
const RequestCooldown = 5 * time.Minute

// PendingRequest is a purchase awaiting proof and an approver decision.
// It is deleted once the decision has been delivered.
type PendingRequest struct {
	ID             string
	UserID         int64
	DisplayName    string
	CourseKey      string
	ProofReference *string
	Status         RequestStatus
	CreatedAt      time.Time
	LastRequestAt  time.Time
}

func NewPendingRequest(userID int64, displayName, courseKey string, now time.Time) (*PendingRequest, error) {
	if userID <= 0 || courseKey == "" {
		return nil, domain.ErrValidation
	}
	return &PendingRequest{
		ID:            ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		UserID:        userID,
		DisplayName:   displayName,
		CourseKey:     courseKey,
		Status:        RequestPending,
		CreatedAt:     now,
		LastRequestAt: now,
	}, nil
}

func (p *PendingRequest) IsPending() bool { return p.Status == RequestPending }
func (p *PendingRequest) HasProof() bool  { return p.ProofReference != nil && *p.ProofReference != "" }

// CooldownRemaining returns how long the user must still wait after this
// request. Zero means a new request is allowed.
func (p *PendingRequest) CooldownRemaining(now time.Time) time.Duration {
	elapsed := now.Sub(p.LastRequestAt)
	if elapsed >= RequestCooldown {
		return 0
	}
	return RequestCooldown - elapsed
}

// Outcome is an approver's verdict on a request.
type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
)

func (o Outcome) Valid() bool { return o == OutcomeApprove || o == OutcomeReject }

func (o Outcome) Status() RequestStatus {
	if o == OutcomeApprove {
		return RequestApproved
	}
	return RequestRejected
}
