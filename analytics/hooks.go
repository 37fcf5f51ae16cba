package analytics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"treeguardian/core"
)

// Hook receives domain events for KPI aggregation. The signature matches
// the engine event bus so hooks subscribe directly.
type Hook interface {
	OnEvent(ctx context.Context, e core.Event)
}

// DayCounters holds the per-day totals derived from engine events.
type DayCounters struct {
	Identifications      int64 `json:"identifications"`
	Discoveries          int64 `json:"discoveries"`
	PointsAwarded        int64 `json:"points_awarded"`
	LevelUps             int64 `json:"level_ups"`
	AchievementsUnlocked int64 `json:"achievements_unlocked"`
	MissionsCompleted    int64 `json:"missions_completed"`
	Diagnoses            int64 `json:"diagnoses"`
	DiseasedDiagnoses    int64 `json:"diseased_diagnoses"`
}

func (c *DayCounters) add(o DayCounters) {
	c.Identifications += o.Identifications
	c.Discoveries += o.Discoveries
	c.PointsAwarded += o.PointsAwarded
	c.LevelUps += o.LevelUps
	c.AchievementsUnlocked += o.AchievementsUnlocked
	c.MissionsCompleted += o.MissionsCompleted
	c.Diagnoses += o.Diagnoses
	c.DiseasedDiagnoses += o.DiseasedDiagnoses
}

// Metrics tracks player engagement and progression KPIs.
type Metrics struct {
	mu sync.RWMutex

	dailyActive   map[string]map[core.PlayerID]struct{}
	weeklyActive  map[string]map[core.PlayerID]struct{}
	monthlyActive map[string]map[core.PlayerID]struct{}

	days map[string]*DayCounters

	achievementsByID  map[core.AchievementID]int64
	speciesSightings  map[string]int64
	levelDistribution map[int64]int // highest level seen per player, bucketed
	playerLevels      map[core.PlayerID]int64
}

func NewMetrics() *Metrics {
	return &Metrics{
		dailyActive:       make(map[string]map[core.PlayerID]struct{}),
		weeklyActive:      make(map[string]map[core.PlayerID]struct{}),
		monthlyActive:     make(map[string]map[core.PlayerID]struct{}),
		days:              make(map[string]*DayCounters),
		achievementsByID:  make(map[core.AchievementID]int64),
		speciesSightings:  make(map[string]int64),
		levelDistribution: make(map[int64]int),
		playerLevels:      make(map[core.PlayerID]int64),
	}
}

func (m *Metrics) OnEvent(_ context.Context, e core.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := dayKey(e.Time)
	m.trackActive(e.PlayerID, day, weekKey(e.Time), monthKey(e.Time))

	c := m.days[day]
	if c == nil {
		c = &DayCounters{}
		m.days[day] = c
	}

	switch e.Type {
	case core.EventSpeciesIdentified:
		c.Identifications++
		c.PointsAwarded += e.Delta
		m.speciesSightings[core.SpeciesKey(e.Species)]++
	case core.EventSpeciesDiscovered:
		c.Discoveries++
	case core.EventDailyMissionComplete:
		c.MissionsCompleted++
		c.PointsAwarded += e.Delta
	case core.EventAchievementUnlocked:
		c.AchievementsUnlocked++
		c.PointsAwarded += e.Delta
		m.achievementsByID[e.Achievement]++
	case core.EventLevelUp:
		c.LevelUps++
		c.PointsAwarded += e.Delta
		if prev, ok := m.playerLevels[e.PlayerID]; ok {
			m.levelDistribution[prev]--
			if m.levelDistribution[prev] == 0 {
				delete(m.levelDistribution, prev)
			}
		}
		m.playerLevels[e.PlayerID] = e.Level
		m.levelDistribution[e.Level]++
	case core.EventSpeciesDiagnosed:
		c.Diagnoses++
		if e.Health == core.HealthDiseased {
			c.DiseasedDiagnoses++
		}
	}
}

func (m *Metrics) trackActive(player core.PlayerID, day, week, month string) {
	add := func(set map[string]map[core.PlayerID]struct{}, key string) {
		if set[key] == nil {
			set[key] = make(map[core.PlayerID]struct{})
		}
		set[key][player] = struct{}{}
	}
	add(m.dailyActive, day)
	add(m.weeklyActive, week)
	add(m.monthlyActive, month)
}

// DailyActivePlayers returns the count of players active on day (YYYY-MM-DD).
func (m *Metrics) DailyActivePlayers(day string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.dailyActive[day])
}

// WeeklyActivePlayers takes an ISO week key like 2024-W01.
func (m *Metrics) WeeklyActivePlayers(week string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.weeklyActive[week])
}

func (m *Metrics) MonthlyActivePlayers(month string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.monthlyActive[month])
}

// Day returns a copy of the counters for day; zero when nothing happened.
func (m *Metrics) Day(day string) DayCounters {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.days[day]; ok {
		return *c
	}
	return DayCounters{}
}

func (m *Metrics) AchievementUnlocks(id core.AchievementID) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.achievementsByID[id]
}

// LevelDistribution maps level to the number of players whose latest
// level-up reached it.
func (m *Metrics) LevelDistribution() map[int64]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]int, len(m.levelDistribution))
	for k, v := range m.levelDistribution {
		out[k] = v
	}
	return out
}

// SpeciesCount pairs a folded species name with how often it was identified.
type SpeciesCount struct {
	Species string `json:"species"`
	Count   int64  `json:"count"`
}

// TopSpecies returns the most identified species, ties by name.
func (m *Metrics) TopSpecies(limit int) []SpeciesCount {
	m.mu.RLock()
	out := make([]SpeciesCount, 0, len(m.speciesSightings))
	for s, n := range m.speciesSightings {
		out = append(out, SpeciesCount{Species: s, Count: n})
	}
	m.mu.RUnlock()
	sortSpecies(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortSpecies(s []SpeciesCount) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Count != s[j].Count {
			return s[i].Count > s[j].Count
		}
		return s[i].Species < s[j].Species
	})
}

// Helper functions
func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func weekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func monthKey(t time.Time) string { return t.UTC().Format("2006-01") }
