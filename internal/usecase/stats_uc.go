package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"course-access-bot/internal/domain/ports/repository"
	"course-access-bot/internal/infra/logging"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

// Stats is what the approver admin panel shows.
type Stats struct {
	Users           int
	PendingRequests int
	CodesIssued     int
	CodesUsed       int
}

type StatsUseCase interface {
	Snapshot(ctx context.Context) (Stats, error)
}

type statsUC struct {
	users    repository.UserRepository
	requests repository.PendingRequestRepository
	codes    repository.RedeemableCodeRepository

	log *zerolog.Logger
}

func NewStatsUseCase(users repository.UserRepository, requests repository.PendingRequestRepository, codes repository.RedeemableCodeRepository, logger *zerolog.Logger) *statsUC {
	return &statsUC{users: users, requests: requests, codes: codes, log: logger}
}

func (s *statsUC) Snapshot(ctx context.Context) (Stats, error) {
	defer logging.TraceDuration(s.log, "StatsUC.Snapshot")()

	var st Stats
	var err error
	if st.Users, err = s.users.CountUsers(ctx, repository.NoTX); err != nil {
		return Stats{}, err
	}
	if st.PendingRequests, err = s.requests.CountPending(ctx, repository.NoTX); err != nil {
		return Stats{}, err
	}
	if st.CodesIssued, st.CodesUsed, err = s.codes.CountCodes(ctx, repository.NoTX); err != nil {
		return Stats{}, err
	}
	return st, nil
}
