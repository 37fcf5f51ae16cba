package redis

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"treeguardian/core"
	"treeguardian/leaderboard"
)

// DefaultLeaderboardKey is the sorted set holding every player's points.
const DefaultLeaderboardKey = "treeGuardian:leaderboard"

// Board mirrors player points into a Redis sorted set so several server
// instances share one ranking. Redis errors are logged, never returned,
// matching the leaderboard.Board contract.
type Board struct {
	client  *redis.Client
	key     string
	timeout time.Duration
	logger  *slog.Logger
}

func NewBoard(client *redis.Client, key string, logger *slog.Logger) *Board {
	if key == "" {
		key = DefaultLeaderboardKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{client: client, key: key, timeout: 2 * time.Second, logger: logger}
}

func (b *Board) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), b.timeout)
}

func (b *Board) Update(player core.PlayerID, points int64) {
	ctx, cancel := b.ctx()
	defer cancel()
	if err := b.client.ZAdd(ctx, b.key, redis.Z{Score: float64(points), Member: string(player)}).Err(); err != nil {
		b.logger.Warn("leaderboard update failed", "player", player, "error", err)
	}
}

func (b *Board) Remove(player core.PlayerID) {
	ctx, cancel := b.ctx()
	defer cancel()
	if err := b.client.ZRem(ctx, b.key, string(player)).Err(); err != nil {
		b.logger.Warn("leaderboard remove failed", "player", player, "error", err)
	}
}

// TopN returns the n best players. Redis orders equal scores in reverse
// lexical order under ZREVRANGE, so the lowest score in the page is refetched
// with ZRANGEBYSCORE to break ties by ascending player id.
func (b *Board) TopN(n int) []Entry {
	if n <= 0 {
		return nil
	}
	ctx, cancel := b.ctx()
	defer cancel()
	page, err := b.client.ZRevRangeWithScores(ctx, b.key, 0, int64(n-1)).Result()
	if err != nil {
		b.logger.Warn("leaderboard read failed", "error", err)
		return nil
	}
	if len(page) == 0 {
		return nil
	}
	floor := page[len(page)-1].Score
	out := make([]Entry, 0, n)
	for _, z := range page {
		if z.Score > floor {
			out = append(out, Entry{Player: core.PlayerID(z.Member.(string)), Points: int64(z.Score)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].Player < out[j].Player
	})
	score := strconv.FormatFloat(floor, 'f', -1, 64)
	ties, err := b.client.ZRangeByScore(ctx, b.key, &redis.ZRangeBy{Min: score, Max: score}).Result()
	if err != nil {
		b.logger.Warn("leaderboard read failed", "error", err)
		return nil
	}
	for _, m := range ties {
		if len(out) == n {
			break
		}
		out = append(out, Entry{Player: core.PlayerID(m), Points: int64(floor)})
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func (b *Board) Get(player core.PlayerID) (Entry, bool) {
	ctx, cancel := b.ctx()
	defer cancel()
	score, err := b.client.ZScore(ctx, b.key, string(player)).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false
	}
	if err != nil {
		b.logger.Warn("leaderboard read failed", "player", player, "error", err)
		return Entry{}, false
	}
	above, err := b.client.ZCount(ctx, b.key, "("+strconv.FormatFloat(score, 'f', -1, 64), "+inf").Result()
	if err != nil {
		b.logger.Warn("leaderboard read failed", "player", player, "error", err)
		return Entry{}, false
	}
	s := strconv.FormatFloat(score, 'f', -1, 64)
	ties, err := b.client.ZRangeByScore(ctx, b.key, &redis.ZRangeBy{Min: s, Max: s}).Result()
	if err != nil {
		b.logger.Warn("leaderboard read failed", "player", player, "error", err)
		return Entry{}, false
	}
	rank := int(above) + 1
	for _, m := range ties {
		if core.PlayerID(m) == player {
			break
		}
		rank++
	}
	return Entry{Player: player, Points: int64(score), Rank: rank}, true
}

// Entry aliases leaderboard.Entry for callers of this package.
type Entry = leaderboard.Entry

var _ leaderboard.Board = (*Board)(nil)
