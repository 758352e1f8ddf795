package sqlstore_test

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"guildbot/adapters/sqlstore"
	"guildbot/core"
)

func newMockStore(t *testing.T) (*sqlstore.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	store := sqlstore.NewWithDB(sqlx.NewDb(db, "postgres"), sqlstore.DriverPostgres)
	cleanup := func() {
		_ = db.Close()
	}
	return store, mock, cleanup
}

func userColumns() []string {
	return []string{"user_id", "xp", "level", "total_messages", "total_voice_seconds", "last_message_ts", "counting_success_rounds", "current_streak_days", "last_active_day", "last_nick_change_ts"}
}

func TestSQLMock_AddXP_InsertsMissingRow(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	user := core.UserID("u1")
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT user_id, xp, level`).
		WithArgs(user).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(user).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE users SET xp`).
		WithArgs(int64(10), user).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	total, err := store.AddXP(context.Background(), user, 10)
	require.NoError(t, err)
	require.Equal(t, int64(10), total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_AddXP_ClampsAtZero(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	user := core.UserID("u1")
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT user_id, xp, level`).
		WithArgs(user).
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow("u1", int64(5), int64(1), int64(0), int64(0), int64(0), int64(0), int64(0), "", int64(0)))
	mock.ExpectExec(`UPDATE users SET xp`).
		WithArgs(int64(0), user).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	total, err := store.AddXP(context.Background(), user, -10)
	require.NoError(t, err)
	require.Equal(t, int64(0), total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_UpdateStreak_ConsecutiveDay(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	user := core.UserID("u1")
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT user_id, xp, level`).
		WithArgs(user).
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow("u1", int64(0), int64(0), int64(0), int64(0), int64(0), int64(0), int64(3), "2025-03-01", int64(0)))
	mock.ExpectExec(`UPDATE users SET current_streak_days`).
		WithArgs(int64(4), "2025-03-02", user).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	streak, err := store.UpdateStreak(context.Background(), user, "2025-03-02", 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(4), streak)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_TopUsersBy(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT user_id, xp AS value FROM users ORDER BY xp DESC`).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "value"}).
			AddRow("a", int64(30)).
			AddRow("b", int64(20)))

	top, err := store.TopUsersBy(context.Background(), core.SortByXP, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, core.UserID("a"), top[0].UserID)
	require.Equal(t, int64(30), top[0].Value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_TopUsersBy_RejectsUnlistedColumn(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	_, err := store.TopUsersBy(context.Background(), core.SortColumn("xp; DROP TABLE users"), 5)
	require.ErrorIs(t, err, core.ErrBadSortColumn)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_SetStickyMessage_UpdatesExisting(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(core.ChannelID("rules")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`UPDATE sticky_messages`).
		WithArgs(core.MessageID("m2"), core.ChannelID("rules")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SetStickyMessage(context.Background(), core.ChannelID("rules"), core.MessageID("m2")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_GetBirthday_Missing(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT user_id, month, day, year, last_granted_year FROM birthdays`).
		WithArgs(core.UserID("u1")).
		WillReturnError(sql.ErrNoRows)

	_, ok, err := store.GetBirthday(context.Background(), core.UserID("u1"))
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
