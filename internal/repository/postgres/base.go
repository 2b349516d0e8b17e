package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/telehealth-api/internal/repository"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// isUniqueViolation reports whether err is a postgres unique constraint failure.
func isUniqueViolation(err error) bool {
	return hasCode(err, uniqueViolation)
}

func isForeignKeyViolation(err error) bool {
	return hasCode(err, foreignKeyViolation)
}

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

// notFound maps sql.ErrNoRows to repository.ErrNotFound and wraps anything else.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

// expectOne turns a zero-row update into err.
func expectOne(res sql.Result, err error) error {
	rows, rerr := res.RowsAffected()
	if rerr != nil {
		return fmt.Errorf("failed to get rows affected: %w", rerr)
	}
	if rows == 0 {
		return err
	}
	return nil
}

// page appends LIMIT/OFFSET placeholders for p after argCount arguments.
func page(query string, args []interface{}, p interface {
	Limit() int
	Offset() int
}) (string, []interface{}) {
	n := len(args)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2)
	return query, append(args, p.Limit(), p.Offset())
}
