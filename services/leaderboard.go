package services

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type LeaderboardEntry struct {
	UserID  string `json:"user_id"`
	TotalXP int64  `json:"total_xp"`
}

// LeaderboardService keeps a per-group XP ranking in a Redis sorted
// set. It is strictly a read-model: the ledger is the source of truth
// and the sorted set is rebuilt by replaying awards if Redis is wiped.
// When Redis is unreachable the service is fail-open: writes are
// dropped, reads return empty.
type LeaderboardService struct {
	rdb *redis.Client
	log *logrus.Logger
}

func NewLeaderboardService(addr, password string, db int, log *logrus.Logger) *LeaderboardService {
	if addr == "" {
		return &LeaderboardService{log: log}
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("redis unreachable, leaderboard disabled")
		return &LeaderboardService{log: log}
	}
	log.WithField("addr", addr).Info("connected to Redis")
	return &LeaderboardService{rdb: rdb, log: log}
}

func leaderboardKey(groupID string) string {
	return fmt.Sprintf("leaderboard:xp:%s", groupID)
}

// Record folds an award into the group ranking.
func (l *LeaderboardService) Record(ctx context.Context, groupID, userID string, amount int) {
	if l == nil || l.rdb == nil || groupID == "" {
		return
	}
	if err := l.rdb.ZIncrBy(ctx, leaderboardKey(groupID), float64(amount), userID).Err(); err != nil {
		l.log.WithError(err).Warn("failed to update leaderboard")
	}
}

// Top returns the highest-XP members of a group.
func (l *LeaderboardService) Top(ctx context.Context, groupID string, limit int) ([]LeaderboardEntry, error) {
	if l == nil || l.rdb == nil {
		return nil, nil
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	zs, err := l.rdb.ZRevRangeWithScores(ctx, leaderboardKey(groupID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]LeaderboardEntry, 0, len(zs))
	for _, z := range zs {
		uid, _ := z.Member.(string)
		entries = append(entries, LeaderboardEntry{UserID: uid, TotalXP: int64(z.Score)})
	}
	return entries, nil
}

// Rank returns the user's zero-based position in the group, or -1 when
// unranked or the leaderboard is disabled.
func (l *LeaderboardService) Rank(ctx context.Context, groupID, userID string) (int64, error) {
	if l == nil || l.rdb == nil {
		return -1, nil
	}
	rank, err := l.rdb.ZRevRank(ctx, leaderboardKey(groupID), userID).Result()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}
	return rank, nil
}
