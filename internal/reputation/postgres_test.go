package reputation

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, zap.NewNop()), mock
}

func TestPostgresStore_IsBanned(t *testing.T) {
	ctx := context.Background()

	t.Run("no row", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)
		mock.ExpectQuery("SELECT banned FROM reputation").
			WithArgs("alice").
			WillReturnError(sql.ErrNoRows)

		banned, err := s.IsBanned(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, banned)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("banned row", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)
		mock.ExpectQuery("SELECT banned FROM reputation").
			WithArgs("alice").
			WillReturnRows(sqlmock.NewRows([]string{"banned"}).AddRow(true))

		banned, err := s.IsBanned(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, banned)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver error", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)
		mock.ExpectQuery("SELECT banned FROM reputation").
			WithArgs("alice").
			WillReturnError(errors.New("connection reset"))

		_, err := s.IsBanned(ctx, "alice")
		assert.Error(t, err)
	})
}

func TestPostgresStore_SetBanned(t *testing.T) {
	ctx := context.Background()

	t.Run("flag changes", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO reputation").
			WithArgs("bob").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT banned FROM reputation WHERE identity = \\$1 FOR UPDATE").
			WithArgs("bob").
			WillReturnRows(sqlmock.NewRows([]string{"banned"}).AddRow(false))
		mock.ExpectExec("UPDATE reputation SET banned").
			WithArgs("bob", true).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		changed, err := s.SetBanned(ctx, "bob", true)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("flag already set", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO reputation").
			WithArgs("bob").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT banned FROM reputation").
			WithArgs("bob").
			WillReturnRows(sqlmock.NewRows([]string{"banned"}).AddRow(true))
		mock.ExpectRollback()

		changed, err := s.SetBanned(ctx, "bob", true)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_RecordViolation(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery("INSERT INTO reputation \\(identity, violations\\)").
		WithArgs("carol").
		WillReturnRows(sqlmock.NewRows([]string{"violations"}).AddRow(3))

	n, err := s.RecordViolation(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ViolationCount(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		rows   *sqlmock.Rows
		err    error
		wantN  int
		wantOK bool
	}{
		{"no row", nil, sql.ErrNoRows, 0, false},
		{"null count", sqlmock.NewRows([]string{"violations"}).AddRow(nil), nil, 0, false},
		{"recorded", sqlmock.NewRows([]string{"violations"}).AddRow(2), nil, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockPostgresStore(t)
			q := mock.ExpectQuery("SELECT violations FROM reputation").WithArgs("dave")
			if tt.err != nil {
				q.WillReturnError(tt.err)
			} else {
				q.WillReturnRows(tt.rows)
			}

			n, ok, err := s.ViolationCount(ctx, "dave")
			require.NoError(t, err)
			assert.Equal(t, tt.wantN, n)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestPostgresStore_Karma(t *testing.T) {
	ctx := context.Background()

	t.Run("init", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)
		mock.ExpectExec("WHERE reputation.karma IS NULL").
			WithArgs("erin").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.InitKarma(ctx, "erin"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("adjust sends signed delta", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)
		mock.ExpectQuery("RETURNING karma").
			WithArgs("erin", -5).
			WillReturnRows(sqlmock.NewRows([]string{"karma"}).AddRow(-5))

		k, err := s.AdjustKarma(ctx, "erin", Decrease, 5)
		require.NoError(t, err)
		assert.Equal(t, -5, k)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid direction never reaches the database", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)

		_, err := s.AdjustKarma(ctx, "erin", Direction("up"), 1)
		assert.ErrorIs(t, err, ErrInvalidDirection)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reset", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)
		mock.ExpectExec("INSERT INTO reputation \\(identity, karma\\) VALUES \\(\\$1, 0\\)").
			WithArgs("erin").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.ResetKarma(ctx, "erin"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("read uninitialised", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)
		mock.ExpectQuery("SELECT violations, banned, karma FROM reputation").
			WithArgs("erin").
			WillReturnRows(sqlmock.NewRows([]string{"violations", "banned", "karma"}).AddRow(1, false, nil))

		k, err := s.Karma(ctx, "erin")
		require.NoError(t, err)
		assert.Equal(t, 0, k)
	})
}

func TestPostgresStore_Get(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery("SELECT violations, banned, karma FROM reputation").
		WithArgs("frank").
		WillReturnRows(sqlmock.NewRows([]string{"violations", "banned", "karma"}).AddRow(2, true, -8))

	rec, err := s.Get(context.Background(), "frank")
	require.NoError(t, err)
	assert.Equal(t, Record{Identity: "frank", Violations: 2, Banned: true, Karma: -8, KarmaInitialized: true}, rec)
}
