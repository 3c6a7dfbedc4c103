package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle owned by the infra layer (pgx.Tx for
// Postgres). Repositories accept NoTX for the non-transactional path.
type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one database transaction. The handle is
// passed to fn and must be forwarded to every repository call that should
// take part in it. Returning an error from fn rolls the transaction back.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
