package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"guildbot/core"
	"guildbot/engine"
)

// Hook receives engine events for KPI aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

// DAU tracks daily active users.
type DAU struct {
	mu   sync.Mutex
	days map[string]map[core.UserID]struct{}
}

func NewDAU() *DAU { return &DAU{days: map[string]map[core.UserID]struct{}{}} }

func (d *DAU) OnEvent(e core.Event) {
	if e.UserID == "" {
		return
	}
	day := e.Time.UTC().Format("2006-01-02")
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.days[day]
	if m == nil {
		m = map[core.UserID]struct{}{}
		d.days[day] = m
	}
	m[e.UserID] = struct{}{}
}

func (d *DAU) Count(day string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.days[day])
}

// EngagementMetrics aggregates per-day engagement counters from the event
// stream: XP flow, level-ups, streaks, counting outcomes, and joins.
type EngagementMetrics struct {
	mu sync.RWMutex

	dailyActiveUsers   map[string]map[core.UserID]struct{}
	weeklyActiveUsers  map[string]map[core.UserID]struct{}
	monthlyActiveUsers map[string]map[core.UserID]struct{}

	xpAwardedByDay map[string]int64
	levelUpsByDay  map[string]int64
	levelDist      map[int64]int

	milestonesByKind  map[core.MilestoneKind]int64
	streaksReached    int64
	countingAccepted  int64
	countingBreaks    int64
	countingSuccesses int64
	membersJoined     int64
}

func NewEngagementMetrics() *EngagementMetrics {
	return &EngagementMetrics{
		dailyActiveUsers:   map[string]map[core.UserID]struct{}{},
		weeklyActiveUsers:  map[string]map[core.UserID]struct{}{},
		monthlyActiveUsers: map[string]map[core.UserID]struct{}{},
		xpAwardedByDay:     map[string]int64{},
		levelUpsByDay:      map[string]int64{},
		levelDist:          map[int64]int{},
		milestonesByKind:   map[core.MilestoneKind]int64{},
	}
}

func (m *EngagementMetrics) OnEvent(e core.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := e.Time.UTC().Format("2006-01-02")
	if e.UserID != "" {
		m.trackActive(e.UserID, e.Time, day)
	}

	switch e.Type {
	case core.EventXPAwarded:
		if e.Delta > 0 {
			m.xpAwardedByDay[day] += e.Delta
		}
	case core.EventLevelUp:
		m.levelUpsByDay[day]++
		m.levelDist[e.Level]++
	case core.EventMilestoneReached:
		m.milestonesByKind[e.Milestone]++
	case core.EventStreakReached:
		m.streaksReached++
	case core.EventCountingAccepted:
		m.countingAccepted++
	case core.EventCountingBreak:
		m.countingBreaks++
	case core.EventCountingSuccess:
		m.countingSuccesses++
	case core.EventMemberJoined:
		m.membersJoined++
	}
}

func (m *EngagementMetrics) trackActive(user core.UserID, t time.Time, day string) {
	week := weekKey(t)
	month := t.UTC().Format("2006-01")
	if m.dailyActiveUsers[day] == nil {
		m.dailyActiveUsers[day] = map[core.UserID]struct{}{}
	}
	m.dailyActiveUsers[day][user] = struct{}{}
	if m.weeklyActiveUsers[week] == nil {
		m.weeklyActiveUsers[week] = map[core.UserID]struct{}{}
	}
	m.weeklyActiveUsers[week][user] = struct{}{}
	if m.monthlyActiveUsers[month] == nil {
		m.monthlyActiveUsers[month] = map[core.UserID]struct{}{}
	}
	m.monthlyActiveUsers[month][user] = struct{}{}
}

// ActiveUsers returns the distinct active member count for a day
// ("2006-01-02"), ISO week ("2006-W01"), or month ("2006-01") key.
func (m *EngagementMetrics) ActiveUsers(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.dailyActiveUsers[key]; ok {
		return len(u)
	}
	if u, ok := m.weeklyActiveUsers[key]; ok {
		return len(u)
	}
	if u, ok := m.monthlyActiveUsers[key]; ok {
		return len(u)
	}
	return 0
}

// XPAwarded returns the XP granted on a specific day.
func (m *EngagementMetrics) XPAwarded(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.xpAwardedByDay[day]
}

// LevelUps returns the level-up count on a specific day.
func (m *EngagementMetrics) LevelUps(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.levelUpsByDay[day]
}

// LevelDistribution returns how many level-ups landed on each level.
func (m *EngagementMetrics) LevelDistribution() map[int64]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]int, len(m.levelDist))
	for lvl, n := range m.levelDist {
		out[lvl] = n
	}
	return out
}

// Snapshot returns the lifetime counters for reporting.
func (m *EngagementMetrics) Snapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := map[string]int64{
		"streaks_reached":    m.streaksReached,
		"counting_accepted":  m.countingAccepted,
		"counting_breaks":    m.countingBreaks,
		"counting_successes": m.countingSuccesses,
		"members_joined":     m.membersJoined,
	}
	for kind, n := range m.milestonesByKind {
		snap["milestones_"+string(kind)] = n
	}
	return snap
}

// Attach taps every hook into the full event stream and returns one
// unsubscribe func covering all registrations.
func Attach(bus *engine.EventBus, hooks ...Hook) func() {
	unsubs := make([]func(), 0, len(hooks))
	for _, h := range hooks {
		h := h
		unsubs = append(unsubs, bus.SubscribeAll(func(_ context.Context, e core.Event) { h.OnEvent(e) }))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func weekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
