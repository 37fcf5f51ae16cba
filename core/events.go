package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventSpeciesIdentified    EventType = "species_identified"
	EventSpeciesDiscovered    EventType = "species_discovered"
	EventSpeciesDiagnosed     EventType = "species_diagnosed"
	EventDailyMissionComplete EventType = "daily_mission_completed"
	EventAchievementUnlocked  EventType = "achievement_unlocked"
	EventLevelUp              EventType = "level_up"
	EventDayRollover          EventType = "day_rollover"
)

// AllEventTypes lists every event the engine can emit, in a stable order.
var AllEventTypes = []EventType{
	EventSpeciesIdentified,
	EventSpeciesDiscovered,
	EventSpeciesDiagnosed,
	EventDailyMissionComplete,
	EventAchievementUnlocked,
	EventLevelUp,
	EventDayRollover,
}

// Event represents an immutable domain event. ID is stamped by the service
// when the event is published.
type Event struct {
	ID          string         `json:"id,omitempty"`
	Type        EventType      `json:"type"`
	Time        time.Time      `json:"time"`
	PlayerID    PlayerID       `json:"player_id"`
	Species     string         `json:"species,omitempty"`
	Delta       int64          `json:"delta,omitempty"`
	Total       int64          `json:"total,omitempty"`
	Level       int64          `json:"level,omitempty"`
	Streak      int64          `json:"streak,omitempty"`
	Achievement AchievementID  `json:"achievement,omitempty"`
	Health      Health         `json:"health,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewSpeciesIdentified(player PlayerID, at time.Time, species string, delta, total int64) Event {
	return Event{Type: EventSpeciesIdentified, Time: at, PlayerID: player, Species: species, Delta: delta, Total: total}
}

func NewSpeciesDiscovered(player PlayerID, at time.Time, species string) Event {
	return Event{Type: EventSpeciesDiscovered, Time: at, PlayerID: player, Species: species}
}

func NewSpeciesDiagnosed(player PlayerID, at time.Time, species string, health Health) Event {
	return Event{Type: EventSpeciesDiagnosed, Time: at, PlayerID: player, Species: species, Health: health}
}

func NewDailyMissionCompleted(player PlayerID, at time.Time, bonus, total int64) Event {
	return Event{Type: EventDailyMissionComplete, Time: at, PlayerID: player, Delta: bonus, Total: total}
}

func NewAchievementUnlocked(player PlayerID, at time.Time, def AchievementDefinition, bonus, total int64) Event {
	return Event{
		Type:        EventAchievementUnlocked,
		Time:        at,
		PlayerID:    player,
		Achievement: def.ID,
		Delta:       bonus,
		Total:       total,
		Metadata:    map[string]any{"name": def.Name, "icon": def.Icon},
	}
}

func NewLevelUp(player PlayerID, at time.Time, level, bonus, total int64) Event {
	return Event{Type: EventLevelUp, Time: at, PlayerID: player, Level: level, Delta: bonus, Total: total}
}

func NewDayRollover(player PlayerID, at time.Time, streak int64) Event {
	return Event{Type: EventDayRollover, Time: at, PlayerID: player, Streak: streak}
}
