package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"guildbot/core"
	"guildbot/engine"
)

// Birthday, sticky-message and feed-state persistence share the select-then-
// write upsert shape so the statements stay portable across drivers.

func (s *Store) upsert(ctx context.Context, existsQ string, existsArgs []any, insertQ string, insertArgs []any, updateQ string, updateArgs []any) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	var exists bool
	err = tx.GetContext(ctx, &exists, tx.Rebind(existsQ), existsArgs...)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return err
	}
	if exists {
		_, err = tx.ExecContext(ctx, tx.Rebind(updateQ), updateArgs...)
	} else {
		_, err = tx.ExecContext(ctx, tx.Rebind(insertQ), insertArgs...)
	}
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) SetBirthday(ctx context.Context, user core.UserID, month, day, year int) error {
	return s.upsert(ctx,
		`SELECT EXISTS (SELECT 1 FROM birthdays WHERE user_id = ?)`, []any{user},
		`INSERT INTO birthdays (user_id, month, day, year, last_granted_year) VALUES (?, ?, ?, ?, 0)`, []any{user, month, day, year},
		`UPDATE birthdays SET month = ?, day = ?, year = ? WHERE user_id = ?`, []any{month, day, year, user},
	)
}

func (s *Store) ClearBirthday(ctx context.Context, user core.UserID) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM birthdays WHERE user_id = ?`), user)
	return err
}

type birthdayRow struct {
	UserID          string `db:"user_id"`
	Month           int    `db:"month"`
	Day             int    `db:"day"`
	Year            int    `db:"year"`
	LastGrantedYear int    `db:"last_granted_year"`
}

func (r birthdayRow) birthday() core.Birthday {
	return core.Birthday{
		UserID:          core.UserID(r.UserID),
		Month:           r.Month,
		Day:             r.Day,
		Year:            r.Year,
		LastGrantedYear: r.LastGrantedYear,
	}
}

func (s *Store) GetBirthday(ctx context.Context, user core.UserID) (core.Birthday, bool, error) {
	var row birthdayRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT user_id, month, day, year, last_granted_year FROM birthdays WHERE user_id = ?`), user)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Birthday{}, false, nil
	}
	if err != nil {
		return core.Birthday{}, false, err
	}
	return row.birthday(), true, nil
}

func (s *Store) ListBirthdays(ctx context.Context) ([]core.Birthday, error) {
	var rows []birthdayRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT user_id, month, day, year, last_granted_year FROM birthdays`); err != nil {
		return nil, err
	}
	out := make([]core.Birthday, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.birthday())
	}
	return out, nil
}

func (s *Store) SetBirthdayGrantedYear(ctx context.Context, user core.UserID, year int) error {
	return s.upsert(ctx,
		`SELECT EXISTS (SELECT 1 FROM birthdays WHERE user_id = ?)`, []any{user},
		`INSERT INTO birthdays (user_id, month, day, year, last_granted_year) VALUES (?, 0, 0, 0, ?)`, []any{user, year},
		`UPDATE birthdays SET last_granted_year = ? WHERE user_id = ?`, []any{year, user},
	)
}

func (s *Store) GetStickyMessage(ctx context.Context, channel core.ChannelID) (core.MessageID, bool, error) {
	var id string
	err := s.db.GetContext(ctx, &id, s.db.Rebind(`SELECT message_id FROM sticky_messages WHERE channel_id = ?`), channel)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return core.MessageID(id), true, nil
}

func (s *Store) SetStickyMessage(ctx context.Context, channel core.ChannelID, id core.MessageID) error {
	return s.upsert(ctx,
		`SELECT EXISTS (SELECT 1 FROM sticky_messages WHERE channel_id = ?)`, []any{channel},
		`INSERT INTO sticky_messages (channel_id, message_id) VALUES (?, ?)`, []any{channel, id},
		`UPDATE sticky_messages SET message_id = ? WHERE channel_id = ?`, []any{id, channel},
	)
}

func (s *Store) ClearStickyMessage(ctx context.Context, channel core.ChannelID) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM sticky_messages WHERE channel_id = ?`), channel)
	return err
}

func (s *Store) GetLastSeen(ctx context.Context, feedKey string) (string, bool, error) {
	var id string
	err := s.db.GetContext(ctx, &id, s.db.Rebind(`SELECT last_seen_id FROM feed_state WHERE feed_key = ?`), feedKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (s *Store) SetLastSeen(ctx context.Context, feedKey, itemID string) error {
	return s.upsert(ctx,
		`SELECT EXISTS (SELECT 1 FROM feed_state WHERE feed_key = ?)`, []any{feedKey},
		`INSERT INTO feed_state (feed_key, last_seen_id) VALUES (?, ?)`, []any{feedKey, itemID},
		`UPDATE feed_state SET last_seen_id = ? WHERE feed_key = ?`, []any{itemID, feedKey},
	)
}

var _ engine.BirthdayStore = (*Store)(nil)
var _ engine.StickyStore = (*Store)(nil)
var _ engine.FeedStateStore = (*Store)(nil)
