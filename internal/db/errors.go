package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"bookshelf.org/internal/apperr"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrNotNullViolation    = "23502"
	pgErrTooManyConnections  = "53300"
	pgErrAdminShutdown       = "57P01"
	pgClassConnection        = "08"
)

var (
	// ErrMultipleRows is returned by SelectOne when a lookup expected to be unique matched several rows.
	ErrMultipleRows = errors.New("db: more than one row returned")
	// ErrAcquireTimeout means no pooled connection became free within the acquire timeout.
	ErrAcquireTimeout = errors.New("db: connection acquire timeout")
	// ErrDuplicate marks a unique constraint rejection.
	ErrDuplicate = errors.New("db: duplicate value")
	// ErrReference marks a foreign key rejection.
	ErrReference = errors.New("db: referenced record does not exist")
)

// Translate classifies a driver error. Errors that already carry an apperr
// kind pass through untouched.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgErrUniqueViolation:
			return apperr.New(apperr.Validation, "duplicate value", fmt.Errorf("%w: %w", ErrDuplicate, err))
		case pgErr.Code == pgErrForeignKeyViolation:
			return apperr.New(apperr.Validation, "referenced record does not exist", fmt.Errorf("%w: %w", ErrReference, err))
		case pgErr.Code == pgErrNotNullViolation:
			return apperr.New(apperr.Validation, "required value is missing", err)
		case strings.HasPrefix(pgErr.Code, pgClassConnection),
			pgErr.Code == pgErrTooManyConnections,
			pgErr.Code == pgErrAdminShutdown:
			return apperr.Connectivityf(err, "store unavailable")
		}
		return apperr.Internalf(err, "store rejected statement")
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connectErr),
		errors.As(err, &netErr),
		pgconn.Timeout(err),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return apperr.Connectivityf(err, "store unavailable")
	}
	return apperr.Internalf(err, "query failed")
}
