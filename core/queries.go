package core

import "fmt"

// HealthFilter narrows the collection view.
type HealthFilter string

const (
	FilterAll      HealthFilter = "all"
	FilterHealthy  HealthFilter = "healthy"
	FilterDiseased HealthFilter = "diseased"
)

// ParseHealthFilter maps "" to FilterAll and rejects unknown values.
func ParseHealthFilter(s string) (HealthFilter, error) {
	switch HealthFilter(s) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterHealthy, FilterDiseased:
		return HealthFilter(s), nil
	}
	return "", fmt.Errorf("unknown health filter %q", s)
}

// Collection returns the records matching filter in discovery order.
func Collection(s State, filter HealthFilter) []SpeciesRecord {
	out := make([]SpeciesRecord, 0, len(s.Collection))
	for _, rec := range s.Collection {
		switch filter {
		case FilterHealthy:
			if rec.Health != HealthHealthy {
				continue
			}
		case FilterDiseased:
			if rec.Health != HealthDiseased {
				continue
			}
		}
		out = append(out, rec)
	}
	return out
}

// ProfileSummary is the header view of a player.
type ProfileSummary struct {
	PlayerID           PlayerID `json:"playerId"`
	Name               string   `json:"name"`
	Points             int64    `json:"points"`
	Level              int64    `json:"level"`
	Experience         int64    `json:"experience"`
	RequiredExperience int64    `json:"requiredExperience"`
	LevelProgress      float64  `json:"levelProgress"`
	Streak             int64    `json:"streak"`
	LastActive         Date     `json:"lastActive"`
}

// Summary builds the profile header; LevelProgress is experience as a
// fraction of the current level's requirement.
func (r Rules) Summary(s State) ProfileSummary {
	req := r.RequiredExperience(s.User.Level)
	var progress float64
	if req > 0 {
		progress = float64(s.User.Experience) / float64(req)
	}
	return ProfileSummary{
		PlayerID:           s.PlayerID,
		Name:               s.User.Name,
		Points:             s.User.Points,
		Level:              s.User.Level,
		Experience:         s.User.Experience,
		RequiredExperience: req,
		LevelProgress:      progress,
		Streak:             s.User.Streak,
		LastActive:         s.User.LastActive,
	}
}
