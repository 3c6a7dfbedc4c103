package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"course-access-bot/internal/domain"
	"course-access-bot/internal/domain/model"
	"course-access-bot/internal/domain/ports/repository"
	"course-access-bot/internal/infra/logging"
	"course-access-bot/internal/infra/metrics"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// UserUseCase exposes user-related operations used by bot/admin flows.
type UserUseCase interface {
	RegisterOrFetch(ctx context.Context, tgID int64, username, firstName string) (*model.User, error)
	GetByTelegramID(ctx context.Context, tgID int64) (*model.User, error)
	// ApproverChatIDs merges approvers known to the store with configured ids.
	ApproverChatIDs(ctx context.Context) ([]int64, error)
	Count(ctx context.Context) (int, error)
}

type userUC struct {
	users  repository.UserRepository
	policy *ApproverPolicy
	tm     repository.TransactionManager
	log    *zerolog.Logger
	now    func() time.Time
}

func NewUserUseCase(users repository.UserRepository, policy *ApproverPolicy, tm repository.TransactionManager, logger *zerolog.Logger) *userUC {
	return &userUC{
		users:  users,
		policy: policy,
		tm:     tm,
		log:    logger,
		now:    time.Now,
	}
}

func (u *userUC) SetClock(now func() time.Time) { u.now = now }

func (u *userUC) RegisterOrFetch(ctx context.Context, tgID int64, username, firstName string) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.RegisterOrFetch")()

	var (
		user    *model.User
		created bool
	)
	approver := u.policy.Allows(Actor{TelegramID: tgID, Username: username})
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		now := u.now()
		usr, err := u.users.FindByTelegramID(ctx, tx, tgID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			usr, err = model.NewUser(tgID, username, firstName, now)
			if err != nil {
				return err
			}
			created = true
		case err != nil:
			return err
		default:
			if username != "" {
				usr.Username = username
			}
			if firstName != "" {
				usr.FirstName = firstName
			}
			usr.Touch(now)
		}
		usr.IsApprover = approver
		if err := u.users.Save(ctx, tx, usr); err != nil {
			u.log.Error().Err(err).Int64("tg_id", tgID).Msg("failed to save user")
			return err
		}
		user = usr
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		metrics.IncUsersRegistered()
		u.log.Info().Int64("tg_id", tgID).Bool("approver", approver).Msg("user registered")
	}
	return user, nil
}

func (u *userUC) GetByTelegramID(ctx context.Context, tgID int64) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.GetByTelegramID")()
	return u.users.FindByTelegramID(ctx, repository.NoTX, tgID)
}

func (u *userUC) ApproverChatIDs(ctx context.Context) ([]int64, error) {
	defer logging.TraceDuration(u.log, "UserUC.ApproverChatIDs")()
	approvers, err := u.users.ListApprovers(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	seen := map[int64]struct{}{}
	var out []int64
	add := func(id int64) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, a := range approvers {
		add(a.TelegramID)
	}
	for _, id := range u.policy.IDs() {
		add(id)
	}
	return out, nil
}

func (u *userUC) Count(ctx context.Context) (int, error) {
	defer logging.TraceDuration(u.log, "UserUC.Count")()
	return u.users.CountUsers(ctx, repository.NoTX)
}
