package xp

import (
	"context"

	"github.com/linuskang/bubbly/internal/db"
)

// XP awarded per contribution kind.
const (
	RewardAddReview    = 10
	RewardEditWaypoint = 20
	RewardAddWaypoint  = 30
)

type Threshold struct {
	Level      int
	RequiredXP int
}

// Levels maps cumulative XP to a level. XP past the last entry clamps
// to level 10.
var Levels = []Threshold{
	{1, 0},
	{2, 50},
	{3, 100},
	{4, 150},
	{5, 200},
	{6, 250},
	{7, 300},
	{8, 350},
	{9, 400},
	{10, 450},
}

// LevelFromXP returns the highest level whose threshold is <= xp.
func LevelFromXP(xp int) int {
	level := 1
	for _, t := range Levels {
		if xp >= t.RequiredXP {
			level = t.Level
		} else {
			break
		}
	}
	return level
}

// Award is the result of applying an XP change.
type Award struct {
	XP        int  `json:"xp"`
	Level     int  `json:"level"`
	LeveledUp bool `json:"leveledUp"`
	Applied   bool `json:"applied"`
}

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// Give credits amount XP to a user. eventKey makes the award
// idempotent: re-delivering the same contribution event is a no-op.
func (s *Service) Give(ctx context.Context, userID, eventKey string, amount int) (Award, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO xp_events (event_key, user_id, amount)
		VALUES ($1,$2,$3)
		ON CONFLICT (event_key) DO NOTHING
	`, eventKey, userID, amount)
	if err != nil {
		return Award{}, err
	}
	if tag.RowsAffected() == 0 {
		return Award{Applied: false}, nil
	}
	return s.apply(ctx, userID, amount)
}

// Remove debits amount XP, floored at zero. Used for moderation
// reversals.
func (s *Service) Remove(ctx context.Context, userID string, amount int) (Award, error) {
	return s.apply(ctx, userID, -amount)
}

func (s *Service) apply(ctx context.Context, userID string, delta int) (Award, error) {
	var current, level int
	row := s.db.QueryRow(ctx, `SELECT xp, level FROM users WHERE id=$1`, userID)
	if err := row.Scan(&current, &level); err != nil {
		return Award{}, err
	}

	newXP := current + delta
	if newXP < 0 {
		newXP = 0
	}
	newLevel := LevelFromXP(newXP)

	_, err := s.db.Exec(ctx, `
		UPDATE users SET xp=$2, level=$3, updated_at=now() WHERE id=$1
	`, userID, newXP, newLevel)
	if err != nil {
		return Award{}, err
	}

	return Award{
		XP:        newXP,
		Level:     newLevel,
		LeveledUp: newLevel > level,
		Applied:   true,
	}, nil
}
