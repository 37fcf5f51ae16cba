package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// AggregationPeriod represents different time periods for aggregation
type AggregationPeriod string

const (
	PeriodDaily   AggregationPeriod = "daily"
	PeriodWeekly  AggregationPeriod = "weekly"
	PeriodMonthly AggregationPeriod = "monthly"
)

// AggregatedData is a rollup of the metrics over one period.
type AggregatedData struct {
	Period    AggregationPeriod `json:"period"`
	Key       string            `json:"key"` // e.g., "2024-01-01" for daily, "2024-W01" for weekly
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`

	ActivePlayers int `json:"active_players"`
	DayCounters

	CreatedAt time.Time `json:"created_at"`
}

// AggregationEngine periodically snapshots Metrics into per-period rollups.
type AggregationEngine struct {
	mu sync.RWMutex

	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time

	daily   map[string]*AggregatedData
	weekly  map[string]*AggregatedData
	monthly map[string]*AggregatedData

	interval        time.Duration
	lastAggregation time.Time
}

func NewAggregationEngine(metrics *Metrics, interval time.Duration, logger *slog.Logger) *AggregationEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &AggregationEngine{
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		daily:    make(map[string]*AggregatedData),
		weekly:   make(map[string]*AggregatedData),
		monthly:  make(map[string]*AggregatedData),
		interval: interval,
	}
}

// AggregateNow rolls up the current day, week and month.
func (ae *AggregationEngine) AggregateNow() error {
	return ae.AggregateAt(ae.now())
}

// AggregateAt rolls up the periods containing at.
func (ae *AggregationEngine) AggregateAt(at time.Time) error {
	ae.mu.Lock()
	defer ae.mu.Unlock()

	at = at.UTC()
	dayStart := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)

	d := ae.rollup(PeriodDaily, dayKey(at), dayStart, dayStart.AddDate(0, 0, 1), at)
	d.ActivePlayers = ae.metrics.DailyActivePlayers(d.Key)
	ae.daily[d.Key] = d

	// Calculate week start (Monday)
	offset := (int(at.Weekday()) + 6) % 7
	weekStart := dayStart.AddDate(0, 0, -offset)
	w := ae.rollup(PeriodWeekly, weekKey(at), weekStart, weekStart.AddDate(0, 0, 7), at)
	w.ActivePlayers = ae.metrics.WeeklyActivePlayers(w.Key)
	ae.weekly[w.Key] = w

	monthStart := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	m := ae.rollup(PeriodMonthly, monthKey(at), monthStart, monthStart.AddDate(0, 1, 0), at)
	m.ActivePlayers = ae.metrics.MonthlyActivePlayers(m.Key)
	ae.monthly[m.Key] = m

	ae.lastAggregation = at
	return nil
}

func (ae *AggregationEngine) rollup(period AggregationPeriod, key string, start, end, now time.Time) *AggregatedData {
	data := &AggregatedData{Period: period, Key: key, StartTime: start, EndTime: end, CreatedAt: now}
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		c := ae.metrics.Day(dayKey(d))
		data.DayCounters.add(c)
	}
	return data
}

func (ae *AggregationEngine) table(period AggregationPeriod) (map[string]*AggregatedData, error) {
	switch period {
	case PeriodDaily:
		return ae.daily, nil
	case PeriodWeekly:
		return ae.weekly, nil
	case PeriodMonthly:
		return ae.monthly, nil
	default:
		return nil, fmt.Errorf("unknown aggregation period %q", period)
	}
}

// GetAggregatedData returns aggregated data for a specific period and key
func (ae *AggregationEngine) GetAggregatedData(period AggregationPeriod, key string) (*AggregatedData, bool) {
	ae.mu.RLock()
	defer ae.mu.RUnlock()
	t, err := ae.table(period)
	if err != nil {
		return nil, false
	}
	data, ok := t[key]
	return data, ok
}

// GetAllAggregatedData returns every rollup for period ordered by key.
func (ae *AggregationEngine) GetAllAggregatedData(period AggregationPeriod) []*AggregatedData {
	ae.mu.RLock()
	defer ae.mu.RUnlock()
	t, err := ae.table(period)
	if err != nil {
		return nil
	}
	out := make([]*AggregatedData, 0, len(t))
	for _, d := range t {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Start aggregates immediately and then on every tick until ctx is done.
func (ae *AggregationEngine) Start(ctx context.Context) {
	ticker := time.NewTicker(ae.interval)
	defer ticker.Stop()

	if err := ae.AggregateNow(); err != nil {
		ae.logger.Error("initial aggregation failed", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ae.AggregateNow(); err != nil {
				ae.logger.Error("periodic aggregation failed", "error", err)
			}
		}
	}
}

// ExportData exports aggregated data to JSON format
func (ae *AggregationEngine) ExportData(period AggregationPeriod) ([]byte, error) {
	if _, err := ae.table(period); err != nil {
		return nil, err
	}
	return json.MarshalIndent(ae.GetAllAggregatedData(period), "", "  ")
}
