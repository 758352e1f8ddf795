package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"guildbot/core"
	"guildbot/engine"
)

// Driver names a supported SQL backend. The DSN decides the actual database;
// the driver only picks placeholder rebinding.
type Driver string

const (
	DriverSQLite   Driver = "sqlite3"
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config holds SQL connection configuration.
type Config struct {
	Driver Driver `json:"driver"`
	DSN    string `json:"dsn" env:"GUILDBOT_STORAGE_SQL_DSN"`
}

// DefaultConfig returns defaults for the given driver.
func DefaultConfig(driver Driver) Config {
	cfg := Config{Driver: driver}
	switch driver {
	case DriverSQLite:
		cfg.DSN = "./data/guildbot.db"
	case DriverPostgres:
		cfg.DSN = "postgres://localhost:5432/guildbot?sslmode=disable"
	case DriverMySQL:
		cfg.DSN = "root@tcp(localhost:3306)/guildbot"
	}
	return cfg
}

// Store is a SQL-backed implementation of the engine persistence interfaces.
// Every user mutation runs in a transaction that first materializes the row,
// so records spring into existence with zero values on first touch.
type Store struct {
	db     *sqlx.DB
	driver Driver
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id TEXT PRIMARY KEY,
	xp BIGINT NOT NULL DEFAULT 0,
	level BIGINT NOT NULL DEFAULT 0,
	total_messages BIGINT NOT NULL DEFAULT 0,
	total_voice_seconds BIGINT NOT NULL DEFAULT 0,
	last_message_ts BIGINT NOT NULL DEFAULT 0,
	counting_success_rounds BIGINT NOT NULL DEFAULT 0,
	current_streak_days BIGINT NOT NULL DEFAULT 0,
	last_active_day TEXT NOT NULL DEFAULT '',
	last_nick_change_ts BIGINT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS birthdays (
	user_id TEXT PRIMARY KEY,
	month INTEGER NOT NULL,
	day INTEGER NOT NULL,
	year INTEGER NOT NULL DEFAULT 0,
	last_granted_year INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS sticky_messages (
	channel_id TEXT PRIMARY KEY,
	message_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS feed_state (
	feed_key TEXT PRIMARY KEY,
	last_seen_id TEXT NOT NULL
);`

// New opens and migrates a SQL store. The driver must match a blank-imported
// database/sql driver in the binary.
func New(driver Driver, dsn string) (*Store, error) {
	db, err := sqlx.Open(string(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing connection without migrating (tests).
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

type userRow struct {
	UserID                string `db:"user_id"`
	XP                    int64  `db:"xp"`
	Level                 int64  `db:"level"`
	TotalMessages         int64  `db:"total_messages"`
	TotalVoiceSeconds     int64  `db:"total_voice_seconds"`
	LastMessageTS         int64  `db:"last_message_ts"`
	CountingSuccessRounds int64  `db:"counting_success_rounds"`
	CurrentStreakDays     int64  `db:"current_streak_days"`
	LastActiveDay         string `db:"last_active_day"`
	LastNickChangeTS      int64  `db:"last_nick_change_ts"`
}

func (r userRow) record() core.UserRecord {
	return core.UserRecord{
		UserID:                core.UserID(r.UserID),
		XP:                    r.XP,
		Level:                 r.Level,
		TotalMessages:         r.TotalMessages,
		TotalVoiceSeconds:     r.TotalVoiceSeconds,
		LastMessageTS:         r.LastMessageTS,
		CountingSuccessRounds: r.CountingSuccessRounds,
		CurrentStreakDays:     r.CurrentStreakDays,
		LastActiveDay:         r.LastActiveDay,
		LastNickChangeTS:      r.LastNickChangeTS,
	}
}

// getOrCreateTx loads the row, inserting a zeroed one when absent.
func (s *Store) getOrCreateTx(ctx context.Context, tx *sqlx.Tx, user core.UserID) (userRow, error) {
	var row userRow
	err := tx.GetContext(ctx, &row, tx.Rebind(`SELECT user_id, xp, level, total_messages, total_voice_seconds, last_message_ts, counting_success_rounds, current_streak_days, last_active_day, last_nick_change_ts FROM users WHERE user_id = ?`), user)
	if errors.Is(err, sql.ErrNoRows) {
		row = userRow{UserID: string(user)}
		_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO users (user_id) VALUES (?)`), user)
		if err != nil {
			return userRow{}, fmt.Errorf("insert user %s: %w", user, err)
		}
		return row, nil
	}
	if err != nil {
		return userRow{}, fmt.Errorf("load user %s: %w", user, err)
	}
	return row, nil
}

// withUser runs fn against the materialized row inside one transaction and
// returns the row as fn left it.
func (s *Store) withUser(ctx context.Context, user core.UserID, fn func(tx *sqlx.Tx, row *userRow) error) (core.UserRecord, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.UserRecord{}, fmt.Errorf("begin: %w", err)
	}
	row, err := s.getOrCreateTx(ctx, tx, user)
	if err != nil {
		_ = tx.Rollback()
		return core.UserRecord{}, err
	}
	if fn != nil {
		if err := fn(tx, &row); err != nil {
			_ = tx.Rollback()
			return core.UserRecord{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return core.UserRecord{}, fmt.Errorf("commit: %w", err)
	}
	return row.record(), nil
}

func (s *Store) setColumn(ctx context.Context, tx *sqlx.Tx, user core.UserID, column string, value any) error {
	q := tx.Rebind(fmt.Sprintf(`UPDATE users SET %s = ? WHERE user_id = ?`, column))
	if _, err := tx.ExecContext(ctx, q, value, user); err != nil {
		return fmt.Errorf("update %s for %s: %w", column, user, err)
	}
	return nil
}

func (s *Store) GetOrCreate(ctx context.Context, user core.UserID) (core.UserRecord, error) {
	return s.withUser(ctx, user, nil)
}

func (s *Store) AddXP(ctx context.Context, user core.UserID, delta int64) (int64, error) {
	rec, err := s.withUser(ctx, user, func(tx *sqlx.Tx, row *userRow) error {
		next, err := core.AddSafe(row.XP, delta)
		if err != nil {
			return err
		}
		if next < 0 {
			next = 0
		}
		row.XP = next
		return s.setColumn(ctx, tx, user, "xp", next)
	})
	if err != nil {
		return 0, err
	}
	return rec.XP, nil
}

func (s *Store) SetXP(ctx context.Context, user core.UserID, amount int64) (int64, error) {
	if amount < 0 {
		amount = 0
	}
	rec, err := s.withUser(ctx, user, func(tx *sqlx.Tx, row *userRow) error {
		row.XP = amount
		return s.setColumn(ctx, tx, user, "xp", amount)
	})
	if err != nil {
		return 0, err
	}
	return rec.XP, nil
}

func (s *Store) SetLevel(ctx context.Context, user core.UserID, level int64) error {
	_, err := s.withUser(ctx, user, func(tx *sqlx.Tx, row *userRow) error {
		row.Level = level
		return s.setColumn(ctx, tx, user, "level", level)
	})
	return err
}

func (s *Store) IncrementMessages(ctx context.Context, user core.UserID) (int64, error) {
	rec, err := s.withUser(ctx, user, func(tx *sqlx.Tx, row *userRow) error {
		row.TotalMessages++
		return s.setColumn(ctx, tx, user, "total_messages", row.TotalMessages)
	})
	if err != nil {
		return 0, err
	}
	return rec.TotalMessages, nil
}

func (s *Store) AddVoiceTime(ctx context.Context, user core.UserID, seconds int64) error {
	_, err := s.withUser(ctx, user, func(tx *sqlx.Tx, row *userRow) error {
		next, err := core.AddSafe(row.TotalVoiceSeconds, seconds)
		if err != nil {
			return err
		}
		row.TotalVoiceSeconds = next
		return s.setColumn(ctx, tx, user, "total_voice_seconds", next)
	})
	return err
}

func (s *Store) SetLastMessageTS(ctx context.Context, user core.UserID, ts int64) error {
	_, err := s.withUser(ctx, user, func(tx *sqlx.Tx, row *userRow) error {
		row.LastMessageTS = ts
		return s.setColumn(ctx, tx, user, "last_message_ts", ts)
	})
	return err
}

func (s *Store) SetLastNickChange(ctx context.Context, user core.UserID, ts int64) error {
	_, err := s.withUser(ctx, user, func(tx *sqlx.Tx, row *userRow) error {
		row.LastNickChangeTS = ts
		return s.setColumn(ctx, tx, user, "last_nick_change_ts", ts)
	})
	return err
}

func (s *Store) IncrementCountingRounds(ctx context.Context, user core.UserID) (int64, error) {
	rec, err := s.withUser(ctx, user, func(tx *sqlx.Tx, row *userRow) error {
		row.CountingSuccessRounds++
		return s.setColumn(ctx, tx, user, "counting_success_rounds", row.CountingSuccessRounds)
	})
	if err != nil {
		return 0, err
	}
	return rec.CountingSuccessRounds, nil
}

func (s *Store) UpdateStreak(ctx context.Context, user core.UserID, today string, resetHours int, nowTS int64) (int64, error) {
	rec, err := s.withUser(ctx, user, func(tx *sqlx.Tx, row *userRow) error {
		row.CurrentStreakDays = core.NextStreak(row.CurrentStreakDays, row.LastActiveDay, today, resetHours, row.LastMessageTS, nowTS)
		row.LastActiveDay = today
		q := tx.Rebind(`UPDATE users SET current_streak_days = ?, last_active_day = ? WHERE user_id = ?`)
		if _, err := tx.ExecContext(ctx, q, row.CurrentStreakDays, today, user); err != nil {
			return fmt.Errorf("update streak for %s: %w", user, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rec.CurrentStreakDays, nil
}

// TopUsersBy serves leaderboard queries. The column name is interpolated into
// the statement, so it MUST pass the allow-list first.
func (s *Store) TopUsersBy(ctx context.Context, column core.SortColumn, limit int) ([]core.LeaderboardEntry, error) {
	if err := column.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	type entryRow struct {
		UserID string `db:"user_id"`
		Value  int64  `db:"value"`
	}
	var rows []entryRow
	q := s.db.Rebind(fmt.Sprintf(`SELECT user_id, %s AS value FROM users ORDER BY %s DESC, user_id ASC LIMIT ?`, column, column))
	if err := s.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, fmt.Errorf("leaderboard %s: %w", column, err)
	}
	out := make([]core.LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.LeaderboardEntry{UserID: core.UserID(r.UserID), Value: r.Value})
	}
	return out, nil
}

var _ engine.Storage = (*Store)(nil)
