package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-access-bot/internal/domain/model"
	"course-access-bot/internal/domain/ports/repository"
)

var _ repository.RedeemableCodeRepository = (*redeemableCodeRepo)(nil)

type redeemableCodeRepo struct {
	store
}

func NewRedeemableCodeRepo(pool *pgxpool.Pool, timeout time.Duration) *redeemableCodeRepo {
	return &redeemableCodeRepo{store{pool: pool, timeout: timeout}}
}

const codeColumns = `code, user_id, display_name, course, device_binding, used, expired, created_at, expires_at, redeemed_at`

func scanCode(row pgx.Row) (*model.RedeemableCode, error) {
	var c model.RedeemableCode
	if err := row.Scan(&c.Code, &c.UserID, &c.DisplayName, &c.Course, &c.DeviceBinding, &c.Used, &c.Expired, &c.CreatedAt, &c.ExpiresAt, &c.RedeemedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *redeemableCodeRepo) Create(ctx context.Context, tx repository.Tx, c *model.RedeemableCode) (bool, error) {
	const q = `
INSERT INTO redeemable_codes (` + codeColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (code) DO NOTHING;`
	tag, err := r.execSQL(ctx, tx, "create code", q, c.Code, c.UserID, c.DisplayName, c.Course, c.DeviceBinding, c.Used, c.Expired, c.CreatedAt, c.ExpiresAt, c.RedeemedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *redeemableCodeRepo) findOne(ctx context.Context, tx repository.Tx, op, q string, args ...interface{}) (*model.RedeemableCode, error) {
	var c *model.RedeemableCode
	err := r.pickRow(ctx, tx, op, q, func(row pgx.Row) error {
		var err error
		c, err = scanCode(row)
		return err
	}, args...)
	return c, err
}

func (r *redeemableCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.RedeemableCode, error) {
	q := `SELECT ` + codeColumns + ` FROM redeemable_codes WHERE code=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	return r.findOne(ctx, tx, "find code", q, code)
}

func (r *redeemableCodeRepo) FindValidForUser(ctx context.Context, tx repository.Tx, userID int64, course string, now time.Time) (*model.RedeemableCode, error) {
	const q = `
SELECT ` + codeColumns + ` FROM redeemable_codes
 WHERE user_id = $1 AND course = $2 AND NOT expired AND expires_at > $3
 ORDER BY expires_at DESC
 LIMIT 1;`
	return r.findOne(ctx, tx, "find valid code", q, userID, course, now)
}

func (r *redeemableCodeRepo) Redeem(ctx context.Context, tx repository.Tx, code, deviceID string, now time.Time) (bool, error) {
	const q = `
UPDATE redeemable_codes
   SET device_binding = $2,
       used = TRUE,
       expired = FALSE,
       redeemed_at = $3
 WHERE code = $1
   AND NOT used
   AND expires_at > $3
   AND (device_binding IS NULL OR device_binding = $2);`
	tag, err := r.execSQL(ctx, tx, "redeem code", q, code, deviceID, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *redeemableCodeRepo) MarkExpired(ctx context.Context, tx repository.Tx, deviceID string, now time.Time) (int64, error) {
	const q = `
UPDATE redeemable_codes
   SET expired = TRUE
 WHERE device_binding = $1 AND used AND NOT expired AND expires_at <= $2;`
	tag, err := r.execSQL(ctx, tx, "mark expired", q, deviceID, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *redeemableCodeRepo) list(ctx context.Context, tx repository.Tx, op, q string, args ...interface{}) ([]*model.RedeemableCode, error) {
	var out []*model.RedeemableCode
	err := r.queryRows(ctx, tx, op, q, func(rows pgx.Rows) error {
		c, err := scanCode(rows)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	}, args...)
	return out, err
}

func (r *redeemableCodeRepo) ListActiveByDevice(ctx context.Context, tx repository.Tx, deviceID string, now time.Time) ([]*model.RedeemableCode, error) {
	const q = `
SELECT ` + codeColumns + ` FROM redeemable_codes
 WHERE device_binding = $1 AND used AND NOT expired AND expires_at > $2
 ORDER BY expires_at DESC;`
	return r.list(ctx, tx, "list active codes", q, deviceID, now)
}

func (r *redeemableCodeRepo) ListByDevice(ctx context.Context, tx repository.Tx, deviceID string) ([]*model.RedeemableCode, error) {
	const q = `SELECT ` + codeColumns + ` FROM redeemable_codes WHERE device_binding = $1 ORDER BY created_at;`
	return r.list(ctx, tx, "list device codes", q, deviceID)
}

func (r *redeemableCodeRepo) Extend(ctx context.Context, tx repository.Tx, code string, expiresAt time.Time) (bool, error) {
	const q = `UPDATE redeemable_codes SET expires_at = $2, expired = FALSE WHERE code = $1;`
	tag, err := r.execSQL(ctx, tx, "extend code", q, code, expiresAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *redeemableCodeRepo) CountCodes(ctx context.Context, tx repository.Tx) (int, int, error) {
	var issued, used int
	err := r.pickRow(ctx, tx, "count codes", `SELECT COUNT(*), COUNT(*) FILTER (WHERE used) FROM redeemable_codes;`, func(row pgx.Row) error {
		return row.Scan(&issued, &used)
	})
	return issued, used, err
}
