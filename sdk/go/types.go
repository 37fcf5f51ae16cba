package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Player mirrors the GET /players/{id} payload.
type Player struct {
	Profile struct {
		PlayerID           string  `json:"playerId"`
		Name               string  `json:"name"`
		Points             int64   `json:"points"`
		Level              int64   `json:"level"`
		Experience         int64   `json:"experience"`
		RequiredExperience int64   `json:"requiredExperience"`
		LevelProgress      float64 `json:"levelProgress"`
		Streak             int64   `json:"streak"`
		LastActive         string  `json:"lastActive"`
	} `json:"profile"`
	Stats struct {
		TreesIdentified   int64 `json:"treesIdentified"`
		DaysActive        int64 `json:"daysActive"`
		BadgesEarned      int64 `json:"badgesEarned"`
		MissionsCompleted int64 `json:"missionsCompleted"`
		DiagnosesRecorded int64 `json:"diagnosesRecorded"`
	} `json:"stats"`
	Mission struct {
		Target    int64 `json:"target"`
		Progress  int64 `json:"progress"`
		Completed bool  `json:"completed"`
	} `json:"dailyMission"`
	Achievements int `json:"achievementsUnlocked"`
	Collected    int `json:"speciesCollected"`
	Rank         int `json:"rank,omitempty"`
}

// SpeciesRecord is one collection entry.
type SpeciesRecord struct {
	Species           string  `json:"species"`
	BestConfidence    float64 `json:"bestConfidence"`
	TimesIdentified   int64   `json:"timesIdentified"`
	FirstDiscoveredAt string  `json:"firstDiscoveredAt"`
	LastSeenAt        string  `json:"lastSeenAt"`
	Health            string  `json:"health"`
}

// Achievement is a catalog entry annotated with the player's progress.
type Achievement struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Icon             string `json:"icon"`
	RequirementType  string `json:"requirementType"`
	RequirementValue int64  `json:"requirementValue"`
	Unlocked         bool   `json:"unlocked"`
	Current          int64  `json:"current"`
}

// IdentificationResult mirrors the identification response.
type IdentificationResult struct {
	Record                SpeciesRecord `json:"record"`
	IsNewDiscovery        bool          `json:"isNewDiscovery"`
	PointsAwarded         int64         `json:"pointsAwarded"`
	TotalPoints           int64         `json:"totalPoints"`
	DailyMissionCompleted bool          `json:"dailyMissionCompleted"`
	HealthCheckSupported  bool          `json:"healthCheckSupported"`
	Achievements          []Achievement `json:"achievements"`
	LevelsGained          []int64       `json:"levelsGained"`
}

// SessionResult mirrors the day-rollover response.
type SessionResult struct {
	Changed      bool          `json:"changed"`
	Streak       int64         `json:"streak"`
	StreakReset  bool          `json:"streakReset"`
	Achievements []Achievement `json:"achievements"`
}

// LeaderboardEntry is one ranked player.
type LeaderboardEntry struct {
	Player string `json:"player"`
	Points int64  `json:"points"`
	Rank   int    `json:"rank"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed: status %d", e.Status)
	}
	return fmt.Sprintf("request failed: status %d: %s: %s", e.Status, e.Code, e.Message)
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyPlayerID is returned when player id is empty.
var ErrEmptyPlayerID = errors.New("player id is required")
