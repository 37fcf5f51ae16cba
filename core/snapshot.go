package core

import (
	"encoding/json"
	"fmt"
)

// StorageKey is the well-known key a state snapshot is saved under.
const StorageKey = "treeGuardianState"

// EncodeSnapshot serializes the whole state document.
func EncodeSnapshot(s State) ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSnapshot decodes data on top of the rules' default state, so fields
// that an older snapshot lacks keep their defaults. On a decode error the
// default state is returned along with the error.
func (r Rules) DecodeSnapshot(player PlayerID, data []byte) (State, error) {
	st := r.NewState(player)
	if err := json.Unmarshal(data, &st); err != nil {
		return r.NewState(player), fmt.Errorf("decode snapshot: %w", err)
	}
	r.Normalize(&st)
	if st.PlayerID == "" {
		st.PlayerID = player
	}
	return st, nil
}

// Normalize repairs a decoded state so the engine invariants hold.
func (r Rules) Normalize(s *State) {
	if s.User.Name == "" {
		s.User.Name = DefaultPlayerName
	}
	if s.User.Level < 1 {
		s.User.Level = 1
	}
	if s.User.Experience < 0 {
		s.User.Experience = 0
	}
	if s.User.Points < 0 {
		s.User.Points = 0
	}
	if s.User.Streak < 0 {
		s.User.Streak = 0
	}
	if s.User.Achievements == nil {
		s.User.Achievements = map[AchievementID]struct{}{}
	}
	if s.Collection == nil {
		s.Collection = []SpeciesRecord{}
	}
	for i := range s.Collection {
		if s.Collection[i].Health == "" {
			s.Collection[i].Health = HealthUnknown
		}
		if s.Collection[i].TimesIdentified < 1 {
			s.Collection[i].TimesIdentified = 1
		}
	}
	if s.Mission.Target <= 0 {
		s.Mission.Target = r.MissionTarget
	}
	if s.Mission.Progress > s.Mission.Target {
		s.Mission.Progress = s.Mission.Target
	}
	s.Stats.BadgesEarned = int64(len(s.User.Achievements))
}
