package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"guildbot/core"
	"guildbot/engine"
)

// Config holds Redis connection configuration.
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Store implements the engine persistence interfaces on Redis.
// Data structure:
//   - user:{user_id}            -> hash of counter fields
//   - lb:{column}               -> ZSET of user ids scored by that counter
//   - birthday:{user_id}        -> hash (month, day, year, last_granted_year)
//   - birthdays                 -> set of user ids with a recorded birthday
//   - sticky:{channel_id}       -> current sticky message id
//   - feed:{feed_key}           -> last seen feed item id
type Store struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection.
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Store{client: client}, nil
}

// NewWithClient creates a Store using an existing Redis client (tests).
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Close() error { return s.client.Close() }

func userKey(user core.UserID) string         { return "user:" + string(user) }
func boardKey(column core.SortColumn) string  { return "lb:" + string(column) }
func birthdayKey(user core.UserID) string     { return "birthday:" + string(user) }
func stickyKey(channel core.ChannelID) string { return "sticky:" + string(channel) }
func feedKey(key string) string               { return "feed:" + key }

const birthdaysSetKey = "birthdays"

// addFieldScript atomically adds a delta to a hash counter, optionally clamps
// the result at zero, and re-scores the member in the column's ZSET.
var addFieldScript = redis.NewScript(`
	local current = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
	local next_val = current + tonumber(ARGV[2])
	if ARGV[3] == '1' and next_val < 0 then
		next_val = 0
	end
	redis.call('HSET', KEYS[1], ARGV[1], next_val)
	redis.call('ZADD', KEYS[2], next_val, ARGV[4])
	return next_val
`)

func (s *Store) addField(ctx context.Context, user core.UserID, field string, column core.SortColumn, delta int64, clamp bool) (int64, error) {
	clampFlag := "0"
	if clamp {
		clampFlag = "1"
	}
	result, err := addFieldScript.Run(ctx, s.client,
		[]string{userKey(user), boardKey(column)},
		field, delta, clampFlag, string(user)).Result()
	if err != nil {
		return 0, fmt.Errorf("add %s for %s: %w", field, user, err)
	}
	total, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected result type %T from Redis script", result)
	}
	return total, nil
}

func (s *Store) GetOrCreate(ctx context.Context, user core.UserID) (core.UserRecord, error) {
	fields, err := s.client.HGetAll(ctx, userKey(user)).Result()
	if err != nil {
		return core.UserRecord{}, fmt.Errorf("load user %s: %w", user, err)
	}
	rec := core.UserRecord{UserID: user}
	geti := func(name string) int64 {
		v, _ := strconv.ParseInt(fields[name], 10, 64)
		return v
	}
	rec.XP = geti("xp")
	rec.Level = geti("level")
	rec.TotalMessages = geti("total_messages")
	rec.TotalVoiceSeconds = geti("total_voice_seconds")
	rec.LastMessageTS = geti("last_message_ts")
	rec.CountingSuccessRounds = geti("counting_success_rounds")
	rec.CurrentStreakDays = geti("current_streak_days")
	rec.LastActiveDay = fields["last_active_day"]
	rec.LastNickChangeTS = geti("last_nick_change_ts")
	return rec, nil
}

func (s *Store) AddXP(ctx context.Context, user core.UserID, delta int64) (int64, error) {
	return s.addField(ctx, user, "xp", core.SortByXP, delta, true)
}

func (s *Store) SetXP(ctx context.Context, user core.UserID, amount int64) (int64, error) {
	if amount < 0 {
		amount = 0
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, userKey(user), "xp", amount)
	pipe.ZAdd(ctx, boardKey(core.SortByXP), redis.Z{Score: float64(amount), Member: string(user)})
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("set xp for %s: %w", user, err)
	}
	return amount, nil
}

func (s *Store) SetLevel(ctx context.Context, user core.UserID, level int64) error {
	if err := s.client.HSet(ctx, userKey(user), "level", level).Err(); err != nil {
		return fmt.Errorf("set level for %s: %w", user, err)
	}
	return nil
}

func (s *Store) IncrementMessages(ctx context.Context, user core.UserID) (int64, error) {
	return s.addField(ctx, user, "total_messages", core.SortByMessages, 1, false)
}

func (s *Store) AddVoiceTime(ctx context.Context, user core.UserID, seconds int64) error {
	_, err := s.addField(ctx, user, "total_voice_seconds", core.SortByVoiceSeconds, seconds, false)
	return err
}

func (s *Store) SetLastMessageTS(ctx context.Context, user core.UserID, ts int64) error {
	return s.client.HSet(ctx, userKey(user), "last_message_ts", ts).Err()
}

func (s *Store) SetLastNickChange(ctx context.Context, user core.UserID, ts int64) error {
	return s.client.HSet(ctx, userKey(user), "last_nick_change_ts", ts).Err()
}

func (s *Store) IncrementCountingRounds(ctx context.Context, user core.UserID) (int64, error) {
	return s.addField(ctx, user, "counting_success_rounds", core.SortByCountingRounds, 1, false)
}

func (s *Store) UpdateStreak(ctx context.Context, user core.UserID, today string, resetHours int, nowTS int64) (int64, error) {
	rec, err := s.GetOrCreate(ctx, user)
	if err != nil {
		return 0, err
	}
	next := core.NextStreak(rec.CurrentStreakDays, rec.LastActiveDay, today, resetHours, rec.LastMessageTS, nowTS)
	if err := s.client.HSet(ctx, userKey(user), "current_streak_days", next, "last_active_day", today).Err(); err != nil {
		return 0, fmt.Errorf("update streak for %s: %w", user, err)
	}
	return next, nil
}

func (s *Store) TopUsersBy(ctx context.Context, column core.SortColumn, limit int) ([]core.LeaderboardEntry, error) {
	if err := column.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	zs, err := s.client.ZRevRangeWithScores(ctx, boardKey(column), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard %s: %w", column, err)
	}
	out := make([]core.LeaderboardEntry, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, core.LeaderboardEntry{UserID: core.UserID(member), Value: int64(z.Score)})
	}
	return out, nil
}

func (s *Store) SetBirthday(ctx context.Context, user core.UserID, month, day, year int) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, birthdayKey(user), "month", month, "day", day, "year", year)
	pipe.SAdd(ctx, birthdaysSetKey, string(user))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) ClearBirthday(ctx context.Context, user core.UserID) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, birthdayKey(user))
	pipe.SRem(ctx, birthdaysSetKey, string(user))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) GetBirthday(ctx context.Context, user core.UserID) (core.Birthday, bool, error) {
	fields, err := s.client.HGetAll(ctx, birthdayKey(user)).Result()
	if err != nil {
		return core.Birthday{}, false, err
	}
	if len(fields) == 0 {
		return core.Birthday{}, false, nil
	}
	return parseBirthday(user, fields), true, nil
}

func (s *Store) ListBirthdays(ctx context.Context) ([]core.Birthday, error) {
	ids, err := s.client.SMembers(ctx, birthdaysSetKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]core.Birthday, 0, len(ids))
	for _, id := range ids {
		fields, err := s.client.HGetAll(ctx, birthdayKey(core.UserID(id))).Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		out = append(out, parseBirthday(core.UserID(id), fields))
	}
	return out, nil
}

func (s *Store) SetBirthdayGrantedYear(ctx context.Context, user core.UserID, year int) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, birthdayKey(user), "last_granted_year", year)
	pipe.SAdd(ctx, birthdaysSetKey, string(user))
	_, err := pipe.Exec(ctx)
	return err
}

func parseBirthday(user core.UserID, fields map[string]string) core.Birthday {
	geti := func(name string) int {
		v, _ := strconv.Atoi(fields[name])
		return v
	}
	return core.Birthday{
		UserID:          user,
		Month:           geti("month"),
		Day:             geti("day"),
		Year:            geti("year"),
		LastGrantedYear: geti("last_granted_year"),
	}
}

func (s *Store) GetStickyMessage(ctx context.Context, channel core.ChannelID) (core.MessageID, bool, error) {
	id, err := s.client.Get(ctx, stickyKey(channel)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return core.MessageID(id), true, nil
}

func (s *Store) SetStickyMessage(ctx context.Context, channel core.ChannelID, id core.MessageID) error {
	return s.client.Set(ctx, stickyKey(channel), string(id), 0).Err()
}

func (s *Store) ClearStickyMessage(ctx context.Context, channel core.ChannelID) error {
	return s.client.Del(ctx, stickyKey(channel)).Err()
}

func (s *Store) GetLastSeen(ctx context.Context, key string) (string, bool, error) {
	id, err := s.client.Get(ctx, feedKey(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (s *Store) SetLastSeen(ctx context.Context, key, itemID string) error {
	return s.client.Set(ctx, feedKey(key), itemID, 0).Err()
}

var _ engine.Storage = (*Store)(nil)
var _ engine.BirthdayStore = (*Store)(nil)
var _ engine.StickyStore = (*Store)(nil)
var _ engine.FeedStateStore = (*Store)(nil)
