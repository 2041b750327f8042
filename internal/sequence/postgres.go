package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists one counter row per year and increments it inside a
// transaction so concurrent callers can never observe the same value.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed counter store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Next reserves the next value for the year. The row is locked FOR UPDATE so
// the read-increment-write sequence is serializable; a missing row means the
// year rolled over and the counter starts at 1.
func (s *PostgresStore) Next(ctx context.Context, year int) (int, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var current int
	err = tx.QueryRow(ctx, `SELECT counter FROM sequence_counters WHERE year = $1 FOR UPDATE`, year).Scan(&current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// FOR UPDATE cannot lock a row that does not exist yet, so two first
		// allocations of a new year can both land here. ON CONFLICT lets the
		// loser fall through to the locked row instead of failing.
		cmd, err := tx.Exec(ctx, `INSERT INTO sequence_counters (year, counter) VALUES ($1, 1)
			ON CONFLICT (year) DO NOTHING`, year)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if cmd.RowsAffected() > 0 {
			current = 0
			break
		}
		if err := tx.QueryRow(ctx, `SELECT counter FROM sequence_counters WHERE year = $1 FOR UPDATE`, year).Scan(&current); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if _, err := tx.Exec(ctx, `UPDATE sequence_counters SET counter = counter + 1 WHERE year = $1`, year); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
	case err != nil:
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	default:
		if _, err := tx.Exec(ctx, `UPDATE sequence_counters SET counter = counter + 1 WHERE year = $1`, year); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return current + 1, nil
}

// Current returns the last allocated value for the year, zero if none.
func (s *PostgresStore) Current(ctx context.Context, year int) (int, error) {
	var current int
	err := s.db.QueryRow(ctx, `SELECT counter FROM sequence_counters WHERE year = $1`, year).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return current, nil
}
