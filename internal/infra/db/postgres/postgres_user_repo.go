package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-access-bot/internal/domain/model"
	"course-access-bot/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

type PostgresUserRepo struct {
	store
}

func NewPostgresUserRepo(pool *pgxpool.Pool, timeout time.Duration) *PostgresUserRepo {
	return &PostgresUserRepo{store{pool: pool, timeout: timeout}}
}

const userColumns = `telegram_id, username, first_name, is_approver, registered_at, last_active_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.TelegramID, &u.Username, &u.FirstName, &u.IsApprover, &u.RegisteredAt, &u.LastActiveAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PostgresUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (` + userColumns + `)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (telegram_id) DO UPDATE SET
  username=$2, first_name=$3, is_approver=$4, last_active_at=$6;`
	_, err := r.execSQL(ctx, tx, "save user", q, u.TelegramID, u.Username, u.FirstName, u.IsApprover, u.RegisteredAt, u.LastActiveAt)
	return err
}

func (r *PostgresUserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE telegram_id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	var u *model.User
	err := r.pickRow(ctx, tx, "find user", q, func(row pgx.Row) error {
		var err error
		u, err = scanUser(row)
		return err
	}, tgID)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *PostgresUserRepo) ListApprovers(ctx context.Context, tx repository.Tx) ([]*model.User, error) {
	return r.list(ctx, tx, "list approvers", `SELECT `+userColumns+` FROM users WHERE is_approver ORDER BY telegram_id;`)
}

func (r *PostgresUserRepo) ListRecipients(ctx context.Context, tx repository.Tx) ([]*model.User, error) {
	return r.list(ctx, tx, "list recipients", `SELECT `+userColumns+` FROM users WHERE NOT is_approver ORDER BY telegram_id;`)
}

func (r *PostgresUserRepo) list(ctx context.Context, tx repository.Tx, op, q string) ([]*model.User, error) {
	var out []*model.User
	err := r.queryRows(ctx, tx, op, q, func(rows pgx.Rows) error {
		u, err := scanUser(rows)
		if err != nil {
			return err
		}
		out = append(out, u)
		return nil
	})
	return out, err
}

func (r *PostgresUserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	var n int
	err := r.pickRow(ctx, tx, "count users", `SELECT COUNT(*) FROM users;`, func(row pgx.Row) error {
		return row.Scan(&n)
	})
	return n, err
}
