package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Rules holds the scoring constants and the achievement catalog. All engine
// operations are pure methods on Rules: they take a State and return a new
// State, never mutating their input.
type Rules struct {
	BasePoints                  int64
	DiscoveryBonus              int64
	ExperiencePerIdentification int64
	ExperiencePerLevel          int64
	MissionTarget               int64
	MissionBonus                int64
	AchievementBonus            int64
	LevelUpBonus                int64
	Achievements                []AchievementDefinition
}

// DefaultRules returns the stock scoring constants.
func DefaultRules() Rules {
	return Rules{
		BasePoints:                  10,
		DiscoveryBonus:              20,
		ExperiencePerIdentification: 20,
		ExperiencePerLevel:          100,
		MissionTarget:               3,
		MissionBonus:                50,
		AchievementBonus:            50,
		LevelUpBonus:                100,
		Achievements:                Catalog,
	}
}

// Validate rejects constants that would break the engine invariants.
func (r Rules) Validate() error {
	var errs []string
	if r.BasePoints < 0 || r.DiscoveryBonus < 0 || r.MissionBonus < 0 || r.AchievementBonus < 0 || r.LevelUpBonus < 0 {
		errs = append(errs, "point awards must be non-negative")
	}
	if r.ExperiencePerIdentification < 0 {
		errs = append(errs, "experience_per_identification must be non-negative")
	}
	if r.ExperiencePerLevel <= 0 {
		errs = append(errs, "experience_per_level must be positive")
	}
	if r.MissionTarget <= 0 {
		errs = append(errs, "mission_target must be positive")
	}
	seen := map[AchievementID]struct{}{}
	for _, def := range r.catalog() {
		if _, dup := seen[def.ID]; dup {
			errs = append(errs, fmt.Sprintf("duplicate achievement id %q", def.ID))
		}
		seen[def.ID] = struct{}{}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (r Rules) catalog() []AchievementDefinition {
	if r.Achievements == nil {
		return Catalog
	}
	return r.Achievements
}

// NewState returns the default document for player using these rules.
func (r Rules) NewState(player PlayerID) State {
	return DefaultState(player, r.MissionTarget)
}

// RequiredExperience is the experience needed to leave level.
func (r Rules) RequiredExperience(level int64) int64 {
	return level * r.ExperiencePerLevel
}

// Identification is an inbound identification result. A nil Points means the
// remote service did not say, and BasePoints applies.
type Identification struct {
	Species    string  `json:"species"`
	Confidence float64 `json:"confidence"`
	Points     *int64  `json:"points,omitempty"`
}

// Validate checks the identification at the engine boundary.
func (i Identification) Validate() error {
	if strings.TrimSpace(i.Species) == "" {
		return fmt.Errorf("%w: species is required", ErrInvalidIdentification)
	}
	if math.IsNaN(i.Confidence) || i.Confidence < 0 || i.Confidence > 100 {
		return fmt.Errorf("%w: confidence %v outside [0,100]", ErrInvalidIdentification, i.Confidence)
	}
	if i.Points != nil && *i.Points < 0 {
		return fmt.Errorf("%w: points must be non-negative", ErrInvalidIdentification)
	}
	return nil
}

// IdentificationResult describes what a single identification changed.
// PointsAwarded is the whole gain of the call: base points, discovery,
// mission and achievement bonuses.
type IdentificationResult struct {
	Record                SpeciesRecord           `json:"record"`
	IsNewDiscovery        bool                    `json:"isNewDiscovery"`
	PointsAwarded         int64                   `json:"pointsAwarded"`
	TotalPoints           int64                   `json:"totalPoints"`
	DailyMissionCompleted bool                    `json:"dailyMissionCompleted"`
	HealthCheckSupported  bool                    `json:"healthCheckSupported"`
	Achievements          []AchievementDefinition `json:"achievements,omitempty"`
	LevelsGained          []int64                 `json:"levelsGained,omitempty"`
	Events                []Event                 `json:"events"`
}

// RecordIdentification folds an identification into the state. On a
// validation error the returned state is the input, untouched.
func (r Rules) RecordIdentification(s State, in Identification, now time.Time) (State, IdentificationResult, error) {
	if err := in.Validate(); err != nil {
		return s, IdentificationResult{}, err
	}
	base := r.BasePoints
	if in.Points != nil {
		base = *in.Points
	}
	species := strings.TrimSpace(in.Species)

	next := s.Clone()
	var res IdentificationResult

	idx := next.find(species)
	award := base
	if idx < 0 {
		next.Collection = append(next.Collection, SpeciesRecord{
			Species:           species,
			BestConfidence:    in.Confidence,
			TimesIdentified:   1,
			FirstDiscoveredAt: now,
			LastSeenAt:        now,
			Health:            HealthUnknown,
		})
		idx = len(next.Collection) - 1
		award += r.DiscoveryBonus
		res.IsNewDiscovery = true
	} else {
		rec := &next.Collection[idx]
		rec.TimesIdentified++
		rec.LastSeenAt = now
		if in.Confidence > rec.BestConfidence {
			rec.BestConfidence = in.Confidence
		}
	}
	if err := next.addPoints(award); err != nil {
		return s, IdentificationResult{}, err
	}
	next.Stats.TotalIdentifications++
	next.User.Experience += r.ExperiencePerIdentification

	res.Events = append(res.Events, NewSpeciesIdentified(next.PlayerID, now, next.Collection[idx].Species, award, next.User.Points))
	if res.IsNewDiscovery {
		res.Events = append(res.Events, NewSpeciesDiscovered(next.PlayerID, now, next.Collection[idx].Species))
	}

	if !next.Mission.Completed {
		next.Mission.Progress++
		if next.Mission.Progress >= next.Mission.Target {
			next.Mission.Progress = next.Mission.Target
			next.Mission.Completed = true
			next.Stats.MissionsCompleted++
			if err := next.addPoints(r.MissionBonus); err != nil {
				return s, IdentificationResult{}, err
			}
			res.DailyMissionCompleted = true
			res.Events = append(res.Events, NewDailyMissionCompleted(next.PlayerID, now, r.MissionBonus, next.User.Points))
		}
	}

	unlocked, evs, err := r.unlockAchievements(&next, now)
	if err != nil {
		return s, IdentificationResult{}, err
	}
	res.Achievements = append(res.Achievements, unlocked...)
	res.Events = append(res.Events, evs...)

	levels, evs, err := r.levelUp(&next, now)
	if err != nil {
		return s, IdentificationResult{}, err
	}
	res.LevelsGained = levels
	res.Events = append(res.Events, evs...)

	if len(levels) > 0 {
		unlocked, evs, err := r.unlockAchievements(&next, now)
		if err != nil {
			return s, IdentificationResult{}, err
		}
		res.Achievements = append(res.Achievements, unlocked...)
		res.Events = append(res.Events, evs...)
	}

	next.Updated = now
	res.Record = next.Collection[idx]
	res.PointsAwarded = next.User.Points - s.User.Points
	res.TotalPoints = next.User.Points
	res.HealthCheckSupported = SupportsHealthCheck(species)
	return next, res, nil
}

// Diagnosis is an inbound plant-health result.
type Diagnosis struct {
	Species   string `json:"species"`
	IsHealthy bool   `json:"healthy"`
}

// DiagnosisResult carries the updated record.
type DiagnosisResult struct {
	Record SpeciesRecord `json:"record"`
	Events []Event       `json:"events"`
}

// RecordDiagnosis sets the health of an already collected species. It awards
// nothing and does not evaluate achievements. Unknown species yield
// ErrSpeciesNotFound.
func (r Rules) RecordDiagnosis(s State, in Diagnosis, now time.Time) (State, DiagnosisResult, error) {
	if strings.TrimSpace(in.Species) == "" {
		return s, DiagnosisResult{}, fmt.Errorf("%w: species is required", ErrInvalidDiagnosis)
	}
	idx := s.find(in.Species)
	if idx < 0 {
		return s, DiagnosisResult{}, fmt.Errorf("%w: %q", ErrSpeciesNotFound, strings.TrimSpace(in.Species))
	}
	next := s.Clone()
	rec := &next.Collection[idx]
	rec.Health = HealthDiseased
	if in.IsHealthy {
		rec.Health = HealthHealthy
	}
	next.Stats.DiagnosesRecorded++
	next.Updated = now
	return next, DiagnosisResult{
		Record: *rec,
		Events: []Event{NewSpeciesDiagnosed(next.PlayerID, now, rec.Species, rec.Health)},
	}, nil
}

// EvaluateAchievements unlocks every locked catalog entry whose requirement is
// met, in catalog order. Calling it again without a state change unlocks
// nothing.
func (r Rules) EvaluateAchievements(s State, now time.Time) (State, []AchievementDefinition, []Event, error) {
	next := s.Clone()
	unlocked, evs, err := r.unlockAchievements(&next, now)
	if err != nil {
		return s, nil, nil, err
	}
	return next, unlocked, evs, nil
}

func (r Rules) unlockAchievements(s *State, now time.Time) ([]AchievementDefinition, []Event, error) {
	var (
		unlocked []AchievementDefinition
		evs      []Event
	)
	for _, def := range r.catalog() {
		if s.HasAchievement(def.ID) {
			continue
		}
		if def.CurrentValue(*s) < def.RequirementValue {
			continue
		}
		if err := s.addPoints(r.AchievementBonus); err != nil {
			return nil, nil, err
		}
		s.User.Achievements[def.ID] = struct{}{}
		s.Stats.BadgesEarned = int64(len(s.User.Achievements))
		unlocked = append(unlocked, def)
		evs = append(evs, NewAchievementUnlocked(s.PlayerID, now, def, r.AchievementBonus, s.User.Points))
	}
	return unlocked, evs, nil
}

// EvaluateLevelUp promotes the player while experience covers the current
// level's requirement. Experience beyond the threshold is discarded. Returns
// the levels reached.
func (r Rules) EvaluateLevelUp(s State, now time.Time) (State, []int64, []Event, error) {
	next := s.Clone()
	levels, evs, err := r.levelUp(&next, now)
	if err != nil {
		return s, nil, nil, err
	}
	return next, levels, evs, nil
}

func (r Rules) levelUp(s *State, now time.Time) ([]int64, []Event, error) {
	if r.ExperiencePerLevel <= 0 {
		return nil, nil, nil
	}
	var (
		levels []int64
		evs    []Event
	)
	for s.User.Experience >= r.RequiredExperience(s.User.Level) {
		s.User.Level++
		s.User.Experience = 0
		if err := s.addPoints(r.LevelUpBonus); err != nil {
			return nil, nil, err
		}
		levels = append(levels, s.User.Level)
		evs = append(evs, NewLevelUp(s.PlayerID, now, s.User.Level, r.LevelUpBonus, s.User.Points))
	}
	return levels, evs, nil
}

// RolloverResult describes a session-start day check.
type RolloverResult struct {
	Changed      bool                    `json:"changed"`
	Streak       int64                   `json:"streak"`
	StreakReset  bool                    `json:"streakReset"`
	Achievements []AchievementDefinition `json:"achievements,omitempty"`
	Events       []Event                 `json:"events"`
}

// RolloverDay advances the streak and resets the daily mission when today
// differs from the last active day. Repeating it on the same day is a no-op.
func (r Rules) RolloverDay(s State, today Date, now time.Time) (State, RolloverResult, error) {
	if today.IsZero() {
		return s, RolloverResult{}, errors.New("rollover date is required")
	}
	if today == s.User.LastActive {
		return s, RolloverResult{Streak: s.User.Streak}, nil
	}
	next := s.Clone()
	res := RolloverResult{Changed: true}
	if !next.User.LastActive.IsZero() && today.DaysSince(next.User.LastActive) == 1 {
		next.User.Streak++
	} else {
		res.StreakReset = next.User.Streak > 0
		next.User.Streak = 1
	}
	next.User.LastActive = today
	next.Stats.DaysActive++
	next.Mission = DailyMission{Target: r.MissionTarget}
	res.Streak = next.User.Streak
	res.Events = append(res.Events, NewDayRollover(next.PlayerID, now, next.User.Streak))

	unlocked, evs, err := r.unlockAchievements(&next, now)
	if err != nil {
		return s, RolloverResult{}, err
	}
	res.Achievements = unlocked
	res.Events = append(res.Events, evs...)
	next.Updated = now
	return next, res, nil
}

func (s *State) addPoints(delta int64) error {
	total, err := AddSafe(s.User.Points, delta)
	if err != nil {
		return err
	}
	s.User.Points = total
	return nil
}
