package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-access-bot/internal/domain/model"
	"course-access-bot/internal/domain/ports/repository"
)

var _ repository.PendingRequestRepository = (*pendingRequestRepo)(nil)

type pendingRequestRepo struct {
	store
}

func NewPendingRequestRepo(pool *pgxpool.Pool, timeout time.Duration) *pendingRequestRepo {
	return &pendingRequestRepo{store{pool: pool, timeout: timeout}}
}

const requestColumns = `id, user_id, display_name, course_key, proof_reference, status, created_at, last_request_at`

func scanRequest(row pgx.Row) (*model.PendingRequest, error) {
	var p model.PendingRequest
	var status string
	if err := row.Scan(&p.ID, &p.UserID, &p.DisplayName, &p.CourseKey, &p.ProofReference, &status, &p.CreatedAt, &p.LastRequestAt); err != nil {
		return nil, err
	}
	p.Status = model.RequestStatus(status)
	return &p, nil
}

func (r *pendingRequestRepo) Create(ctx context.Context, tx repository.Tx, p *model.PendingRequest) error {
	const q = `
INSERT INTO pending_requests (` + requestColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`
	_, err := r.execSQL(ctx, tx, "create request", q, p.ID, p.UserID, p.DisplayName, p.CourseKey, p.ProofReference, string(p.Status), p.CreatedAt, p.LastRequestAt)
	return err
}

func (r *pendingRequestRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PendingRequest, error) {
	q := `SELECT ` + requestColumns + ` FROM pending_requests WHERE id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	var p *model.PendingRequest
	err := r.pickRow(ctx, tx, "find request", q, func(row pgx.Row) error {
		var err error
		p, err = scanRequest(row)
		return err
	}, id)
	return p, err
}

func (r *pendingRequestRepo) FindLatestByUser(ctx context.Context, tx repository.Tx, userID int64) (*model.PendingRequest, error) {
	const q = `SELECT ` + requestColumns + ` FROM pending_requests WHERE user_id=$1 ORDER BY last_request_at DESC LIMIT 1;`
	var p *model.PendingRequest
	err := r.pickRow(ctx, tx, "find latest request", q, func(row pgx.Row) error {
		var err error
		p, err = scanRequest(row)
		return err
	}, userID)
	return p, err
}

func (r *pendingRequestRepo) AttachProof(ctx context.Context, tx repository.Tx, id string, userID int64, proofRef string) (bool, error) {
	const q = `
UPDATE pending_requests
   SET proof_reference = $3
 WHERE id = $1
   AND user_id = $2
   AND status = 'pending'
   AND proof_reference IS NULL;`
	tag, err := r.execSQL(ctx, tx, "attach proof", q, id, userID, proofRef)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() >= 1, nil
}

func (r *pendingRequestRepo) TransitionStatus(ctx context.Context, tx repository.Tx, id string, from, to model.RequestStatus) (bool, error) {
	const q = `UPDATE pending_requests SET status = $3 WHERE id = $1 AND status = $2;`
	tag, err := r.execSQL(ctx, tx, "transition request", q, id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() >= 1, nil
}

func (r *pendingRequestRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	_, err := r.execSQL(ctx, tx, "delete request", `DELETE FROM pending_requests WHERE id=$1;`, id)
	return err
}

func (r *pendingRequestRepo) DeleteStale(ctx context.Context, tx repository.Tx, olderThan time.Time) (int64, error) {
	const q = `
DELETE FROM pending_requests
 WHERE (status = 'pending' AND proof_reference IS NULL AND last_request_at < $1)
    OR (status <> 'pending' AND last_request_at < $1);`
	tag, err := r.execSQL(ctx, tx, "delete stale requests", q, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *pendingRequestRepo) CountPending(ctx context.Context, tx repository.Tx) (int, error) {
	var n int
	err := r.pickRow(ctx, tx, "count pending", `SELECT COUNT(*) FROM pending_requests WHERE status='pending';`, func(row pgx.Row) error {
		return row.Scan(&n)
	})
	return n, err
}
