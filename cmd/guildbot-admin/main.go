package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"guildbot/adapters/jsonfile"
	mem "guildbot/adapters/memory"
	redisAdapter "guildbot/adapters/redis"
	"guildbot/adapters/sqlstore"
	"guildbot/bot"
	"guildbot/config"
	"guildbot/core"
)

func main() {
	_ = godotenv.Load()

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&leaderboardCmd{}, "")
	subcommands.Register(&xpSetCmd{}, "")
	subcommands.Register(&userCmd{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

func openStore() (bot.Store, *config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := os.Getenv("GUILDBOT_CONFIG"); path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, err
	}

	var store bot.Store
	switch cfg.Storage.Adapter {
	case "memory":
		store = mem.New()
	case "redis":
		store, err = redisAdapter.New(cfg.Storage.Redis)
	case "sql":
		store, err = sqlstore.New(cfg.Storage.SQL.Driver, cfg.Storage.SQL.DSN)
	case "file":
		store, err = jsonfile.New(cfg.Storage.File.Path)
	default:
		err = fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

type leaderboardCmd struct {
	by    string
	limit int
}

func (*leaderboardCmd) Name() string     { return "leaderboard" }
func (*leaderboardCmd) Synopsis() string { return "print the top members by a ranking column" }
func (*leaderboardCmd) Usage() string {
	return `leaderboard [-by xp] [-limit 10]:
  Print the top members ranked by xp, total_messages, total_voice_seconds,
  or counting_success_rounds.
`
}

func (c *leaderboardCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.by, "by", "xp", "ranking column")
	f.IntVar(&c.limit, "limit", 10, "number of entries")
}

func (c *leaderboardCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	column := core.SortColumn(c.by)
	if err := column.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid column: %v (allowed: %v)\n", err, core.SortColumns())
		return subcommands.ExitUsageError
	}
	store, _, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "open storage: %v\n", err)
		return subcommands.ExitFailure
	}
	entries, err := store.TopUsersBy(ctx, column, c.limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query leaderboard: %v\n", err)
		return subcommands.ExitFailure
	}
	for i, e := range entries {
		fmt.Printf("%3d. %-24s %d\n", i+1, e.UserID, e.Value)
	}
	return subcommands.ExitSuccess
}

type xpSetCmd struct{}

func (*xpSetCmd) Name() string     { return "xp-set" }
func (*xpSetCmd) Synopsis() string { return "set a member's XP and recompute the level" }
func (*xpSetCmd) Usage() string {
	return `xp-set <user> <amount>:
  Set the member's XP to an absolute amount and recompute the level from
  the configured curve.
`
}
func (*xpSetCmd) SetFlags(_ *flag.FlagSet) {}

func (c *xpSetCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	user, err := core.NormalizeUserID(core.UserID(f.Arg(0)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid user: %v\n", err)
		return subcommands.ExitUsageError
	}
	var amount int64
	if _, err := fmt.Sscanf(f.Arg(1), "%d", &amount); err != nil || amount < 0 {
		fmt.Fprintf(os.Stderr, "amount must be a non-negative integer\n")
		return subcommands.ExitUsageError
	}

	store, cfg, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "open storage: %v\n", err)
		return subcommands.ExitFailure
	}
	total, err := store.SetXP(ctx, user, amount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "set xp: %v\n", err)
		return subcommands.ExitFailure
	}
	level := core.LevelForXP(total, cfg.Bot.Leveling.LevelPower)
	if err := store.SetLevel(ctx, user, level); err != nil {
		fmt.Fprintf(os.Stderr, "set level: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("%s: xp=%d level=%d\n", user, total, level)
	return subcommands.ExitSuccess
}

type userCmd struct{}

func (*userCmd) Name() string     { return "user" }
func (*userCmd) Synopsis() string { return "show a member's engagement record" }
func (*userCmd) Usage() string {
	return `user <id>:
  Print the member's stored record.
`
}
func (*userCmd) SetFlags(_ *flag.FlagSet) {}

func (c *userCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	user, err := core.NormalizeUserID(core.UserID(f.Arg(0)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid user: %v\n", err)
		return subcommands.ExitUsageError
	}
	store, _, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "open storage: %v\n", err)
		return subcommands.ExitFailure
	}
	rec, err := store.GetOrCreate(ctx, user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load record: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("user=%s xp=%d level=%d messages=%d voice_seconds=%d counting_rounds=%d streak_days=%d\n",
		rec.UserID, rec.XP, rec.Level, rec.TotalMessages, rec.TotalVoiceSeconds,
		rec.CountingSuccessRounds, rec.CurrentStreakDays)
	return subcommands.ExitSuccess
}
