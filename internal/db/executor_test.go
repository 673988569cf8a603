package db

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"bookshelf.org/internal/apperr"
)

type row struct {
	id   int64
	name string
}

func scanRow(s Scanner) (row, error) {
	var r row
	err := s.Scan(&r.id, &r.name)
	return r, err
}

func newMockPool(t *testing.T, cfg Config, out io.Writer) (*Pool, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if out == nil {
		out = io.Discard
	}
	return New(sqlDB, cfg, slog.New(slog.NewJSONHandler(out, nil))), mock
}

func TestSelectOneCardinality(t *testing.T) {
	const q = `select id, name from roles where name = $1`
	cases := []struct {
		name      string
		rows      *sqlmock.Rows
		wantFound bool
		wantKind  apperr.Kind
		wantErr   bool
	}{
		{name: "absent", rows: sqlmock.NewRows([]string{"id", "name"})},
		{name: "single", rows: sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "user"), wantFound: true},
		{
			name:     "duplicate",
			rows:     sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "user").AddRow(2, "user"),
			wantErr:  true,
			wantKind: apperr.Integrity,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pool, mock := newMockPool(t, Config{}, nil)
			mock.ExpectQuery(regexp.QuoteMeta(q)).WithArgs("user").WillReturnRows(tc.rows)

			got, found, err := SelectOne(context.Background(), pool.Executor(), scanRow, q, "user")
			if tc.wantErr {
				require.Error(t, err)
				require.Equal(t, tc.wantKind, apperr.KindOf(err))
				require.ErrorIs(t, err, ErrMultipleRows)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tc.wantFound, found)
			if tc.wantFound {
				require.Equal(t, row{id: 1, name: "user"}, got)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSelectNoRowsIsEmptyNotError(t *testing.T) {
	pool, mock := newMockPool(t, Config{}, nil)
	mock.ExpectQuery("select id, name from roles").WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	got, err := Select(context.Background(), pool.Executor(), scanRow, `select id, name from roles`)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecTranslatesUniqueViolation(t *testing.T) {
	pool, mock := newMockPool(t, Config{}, nil)
	mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := pool.Executor().Exec(context.Background(), `insert into users (username) values ($1)`, "alice")
	require.Error(t, err)
	require.Equal(t, apperr.Validation, apperr.KindOf(err))
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestSecretParametersAreRedacted(t *testing.T) {
	var buf bytes.Buffer
	pool, mock := newMockPool(t, Config{}, &buf)
	const hash = "$2a$10$abcdefghijklmnopqrstuv"
	mock.ExpectExec("insert into users").
		WithArgs("alice", hash).
		WillReturnResult(sqlmock.NewResult(1, 1))

	n, err := pool.Executor().Exec(context.Background(),
		`insert into users (username, password) values ($1, $2)`, "alice", Secret(hash))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())

	logs := buf.String()
	require.Contains(t, logs, "executing query")
	require.Contains(t, logs, "[REDACTED]")
	require.NotContains(t, logs, hash)
}

func TestFailedStatementIsLoggedAndReturned(t *testing.T) {
	var buf bytes.Buffer
	pool, mock := newMockPool(t, Config{}, &buf)
	mock.ExpectQuery("select id").WillReturnError(errors.New("syntax error at or near"))

	_, err := Select(context.Background(), pool.Executor(), scanRow, `select id, name frm roles`)
	require.Error(t, err)
	require.Equal(t, apperr.Internal, apperr.KindOf(err))
	require.Contains(t, buf.String(), `"level":"ERROR"`)
	require.Contains(t, buf.String(), "query failed")
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	pool, mock := newMockPool(t, Config{}, nil)
	mock.ExpectBegin()
	mock.ExpectExec("insert into user_roles").WithArgs(int64(1), int64(2)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := pool.WithTx(context.Background(), func(ctx context.Context, ex *Executor) error {
		require.True(t, ex.InTx())
		_, err := ex.Exec(ctx, `insert into user_roles (user_id, role_id) values ($1, $2)`, int64(1), int64(2))
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	pool, mock := newMockPool(t, Config{}, nil)
	mock.ExpectBegin()
	mock.ExpectExec("insert into user_roles").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	boom := errors.New("role missing")
	err := pool.WithTx(context.Background(), func(ctx context.Context, ex *Executor) error {
		if _, err := ex.Exec(ctx, `insert into user_roles (user_id, role_id) values ($1, $2)`, 1, 2); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	pool, mock := newMockPool(t, Config{}, nil)
	mock.ExpectBegin()
	mock.ExpectRollback()

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic to propagate")
		}
		require.NoError(t, mock.ExpectationsWereMet())
	}()

	_ = pool.WithTx(context.Background(), func(ctx context.Context, ex *Executor) error {
		panic("kaput")
	})
}

func TestAcquireTimeoutIsConnectivityError(t *testing.T) {
	pool, _ := newMockPool(t, Config{MaxOpenConns: 1, AcquireTimeout: 20 * time.Millisecond}, nil)

	held, err := pool.DB().Conn(context.Background())
	require.NoError(t, err)
	defer held.Close()

	start := time.Now()
	_, err = Select(context.Background(), pool.Executor(), scanRow, `select id, name from roles`)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrAcquireTimeout)
	require.Equal(t, apperr.Connectivity, apperr.KindOf(err))
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestTranslate(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"unique", &pgconn.PgError{Code: "23505"}, apperr.Validation},
		{"foreign key", &pgconn.PgError{Code: "23503"}, apperr.Validation},
		{"connection class", &pgconn.PgError{Code: "08006"}, apperr.Connectivity},
		{"too many connections", &pgconn.PgError{Code: "53300"}, apperr.Connectivity},
		{"other pg", &pgconn.PgError{Code: "42601"}, apperr.Internal},
		{"conn done", sql.ErrConnDone, apperr.Connectivity},
		{"deadline", context.DeadlineExceeded, apperr.Connectivity},
		{"plain", errors.New("boom"), apperr.Internal},
		{"already classified", apperr.Validationf("bad"), apperr.Validation},
	}
	for _, tc := range cases {
		if got := apperr.KindOf(Translate(tc.err)); got != tc.want {
			t.Fatalf("%s: kind=%v, want %v", tc.name, got, tc.want)
		}
	}
	if Translate(nil) != nil {
		t.Fatal("Translate(nil) must be nil")
	}
}

func TestConfigDSN(t *testing.T) {
	cfg := Config{Host: "db.local", User: "svc", Password: "p@ss/word", Name: "bookshelf", SSLMode: "disable"}
	dsn := cfg.DSN()
	require.True(t, strings.HasPrefix(dsn, "postgres://svc:"), dsn)
	require.Contains(t, dsn, "@db.local:5432/bookshelf?sslmode=disable")
	require.NotContains(t, dsn, "p@ss/word")
	require.NotContains(t, cfg.Redacted(), "p%40ss")
}
