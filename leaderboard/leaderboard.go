package leaderboard

import "treeguardian/core"

// Entry is one player's standing.
type Entry struct {
	Player core.PlayerID `json:"player"`
	Points int64         `json:"points"`
	Rank   int           `json:"rank,omitempty"`
}

// Board ranks players by points, highest first, ties broken by player id.
type Board interface {
	Update(player core.PlayerID, points int64)
	Remove(player core.PlayerID)
	TopN(n int) []Entry
	Get(player core.PlayerID) (Entry, bool)
}
