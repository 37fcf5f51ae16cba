package core

// RequirementType selects which counter an achievement is measured against.
type RequirementType string

const (
	RequireTreesUnique     RequirementType = "treesUnique"
	RequireStreak          RequirementType = "streak"
	RequireLevel           RequirementType = "level"
	RequireDailyMissions   RequirementType = "dailyMissionCompletion"
	RequireHealthyCheckups RequirementType = "healthyCheckups"
)

// AchievementDefinition is a static catalog entry.
type AchievementDefinition struct {
	ID               AchievementID   `json:"id"`
	Name             string          `json:"name"`
	Icon             string          `json:"icon"`
	RequirementType  RequirementType `json:"requirementType"`
	RequirementValue int64           `json:"requirementValue"`
}

// Catalog is the ordered achievement list. Evaluation walks it in this order.
var Catalog = []AchievementDefinition{
	{ID: "first_tree", Name: "First Discovery", Icon: "🌱", RequirementType: RequireTreesUnique, RequirementValue: 1},
	{ID: "tree_collector", Name: "Tree Collector", Icon: "🌳", RequirementType: RequireTreesUnique, RequirementValue: 10},
	{ID: "forest_expert", Name: "Forest Expert", Icon: "🌲", RequirementType: RequireTreesUnique, RequirementValue: 50},
	{ID: "streak_week", Name: "Week Warrior", Icon: "🔥", RequirementType: RequireStreak, RequirementValue: 7},
	{ID: "level_5", Name: "Rising Star", Icon: "⭐", RequirementType: RequireLevel, RequirementValue: 5},
	{ID: "level_10", Name: "Tree Master", Icon: "👑", RequirementType: RequireLevel, RequirementValue: 10},
	{ID: "perfect_diagnosis", Name: "Plant Doctor", Icon: "🩺", RequirementType: RequireHealthyCheckups, RequirementValue: 5},
	{ID: "daily_champion", Name: "Daily Champion", Icon: "🏆", RequirementType: RequireDailyMissions, RequirementValue: 10},
}

// LookupAchievement finds a catalog entry by id.
func LookupAchievement(catalog []AchievementDefinition, id AchievementID) (AchievementDefinition, bool) {
	for _, def := range catalog {
		if def.ID == id {
			return def, true
		}
	}
	return AchievementDefinition{}, false
}

// CurrentValue measures the state against the achievement's requirement type.
func (d AchievementDefinition) CurrentValue(s State) int64 {
	switch d.RequirementType {
	case RequireTreesUnique:
		return int64(len(s.Collection))
	case RequireStreak:
		return s.User.Streak
	case RequireLevel:
		return s.User.Level
	case RequireDailyMissions:
		return s.Stats.MissionsCompleted
	case RequireHealthyCheckups:
		var n int64
		for _, rec := range s.Collection {
			if rec.Health == HealthHealthy {
				n++
			}
		}
		return n
	}
	return 0
}

// AchievementStatus annotates a catalog entry with the player's progress.
type AchievementStatus struct {
	AchievementDefinition
	Unlocked bool  `json:"unlocked"`
	Current  int64 `json:"current"`
}

// AchievementProgress returns the whole catalog with unlocked flags and the
// numeric progress toward each entry.
func (r Rules) AchievementProgress(s State) []AchievementStatus {
	out := make([]AchievementStatus, 0, len(r.catalog()))
	for _, def := range r.catalog() {
		cur := def.CurrentValue(s)
		if cur > def.RequirementValue {
			cur = def.RequirementValue
		}
		out = append(out, AchievementStatus{
			AchievementDefinition: def,
			Unlocked:              s.HasAchievement(def.ID),
			Current:               cur,
		})
	}
	return out
}
