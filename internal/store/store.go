// Package store persists task envelopes, dead letter records and the
// recovery audit trail in Postgres. All status changes go through
// conditional updates so concurrent schedulers never double-apply one.
package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}
