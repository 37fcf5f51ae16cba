package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// PlayerID uniquely identifies the owner of a progression state document.
type PlayerID string

// AchievementID names an entry of the achievement catalog.
type AchievementID string

// Health is the diagnosis status of a collected species.
type Health string

const (
	HealthUnknown  Health = "unknown"
	HealthHealthy  Health = "healthy"
	HealthDiseased Health = "diseased"
)

// DefaultPlayerName is the display name given to a fresh profile.
const DefaultPlayerName = "Forest Guardian"

var (
	ErrInvalidIdentification = errors.New("invalid identification")
	ErrInvalidDiagnosis      = errors.New("invalid diagnosis")
	ErrSpeciesNotFound       = errors.New("species not found in collection")
	ErrStateNotFound         = errors.New("state not found")
	ErrInvalidPlayer         = errors.New("invalid player id")
)

// UserProfile holds the player-facing progression counters.
type UserProfile struct {
	Name         string                     `json:"name"`
	Level        int64                      `json:"level"`
	Experience   int64                      `json:"experience"`
	Points       int64                      `json:"points"`
	Streak       int64                      `json:"streak"`
	LastActive   Date                       `json:"lastActive"`
	Achievements map[AchievementID]struct{} `json:"achievements"`
}

// SpeciesRecord is one entry of the deduplicated collection.
type SpeciesRecord struct {
	Species           string    `json:"species"`
	BestConfidence    float64   `json:"bestConfidence"`
	TimesIdentified   int64     `json:"timesIdentified"`
	FirstDiscoveredAt time.Time `json:"firstDiscoveredAt"`
	LastSeenAt        time.Time `json:"lastSeenAt"`
	Health            Health    `json:"health"`
}

// DailyMission is the per-day identification quota.
type DailyMission struct {
	Target    int64 `json:"target"`
	Progress  int64 `json:"progress"`
	Completed bool  `json:"completed"`
}

// AggregateStats are lifetime counters shown on the profile page.
type AggregateStats struct {
	TotalIdentifications int64 `json:"treesIdentified"`
	DaysActive           int64 `json:"daysActive"`
	BadgesEarned         int64 `json:"badgesEarned"`
	MissionsCompleted    int64 `json:"missionsCompleted"`
	DiagnosesRecorded    int64 `json:"diagnosesRecorded"`
}

// State is the whole progression document for one player. It is loaded and
// saved as a single snapshot.
type State struct {
	PlayerID   PlayerID        `json:"playerId"`
	User       UserProfile     `json:"user"`
	Collection []SpeciesRecord `json:"collection"`
	Mission    DailyMission    `json:"dailyMission"`
	Stats      AggregateStats  `json:"stats"`
	Updated    time.Time       `json:"updated"`
}

// DefaultState returns the initial document for a player that has never
// played. LastActive is zero so the first rollover starts the streak at 1.
func DefaultState(player PlayerID, missionTarget int64) State {
	return State{
		PlayerID: player,
		User: UserProfile{
			Name:         DefaultPlayerName,
			Level:        1,
			Achievements: map[AchievementID]struct{}{},
		},
		Collection: []SpeciesRecord{},
		Mission:    DailyMission{Target: missionTarget},
	}
}

// Clone returns a deep copy so reducers never alias the caller's state.
func (s State) Clone() State {
	cp := s
	cp.User.Achievements = make(map[AchievementID]struct{}, len(s.User.Achievements))
	for k := range s.User.Achievements {
		cp.User.Achievements[k] = struct{}{}
	}
	cp.Collection = make([]SpeciesRecord, len(s.Collection))
	copy(cp.Collection, s.Collection)
	return cp
}

// HasAchievement reports whether id is unlocked.
func (s State) HasAchievement(id AchievementID) bool {
	_, ok := s.User.Achievements[id]
	return ok
}

// find returns the index of the record whose folded species matches, or -1.
func (s State) find(species string) int {
	key := SpeciesKey(species)
	for i, rec := range s.Collection {
		if SpeciesKey(rec.Species) == key {
			return i
		}
	}
	return -1
}

// Record returns the collection entry for species, matched case-insensitively.
func (s State) Record(species string) (SpeciesRecord, bool) {
	if i := s.find(species); i >= 0 {
		return s.Collection[i], true
	}
	return SpeciesRecord{}, false
}

// SpeciesKey folds a species name for case-insensitive comparison.
func SpeciesKey(species string) string {
	return cases.Fold().String(strings.TrimSpace(species))
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}

// NormalizePlayerID trims and lowercases player identifiers.
func NormalizePlayerID(id PlayerID) (PlayerID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPlayer)
	}
	return PlayerID(strings.ToLower(s)), nil
}

var healthCheckPlants = []string{"potato", "tomato", "corn", "maize"}

// SupportsHealthCheck reports whether the remote diagnosis model covers the
// species. Matching is a case-insensitive substring test.
func SupportsHealthCheck(species string) bool {
	s := strings.ToLower(species)
	for _, p := range healthCheckPlants {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
