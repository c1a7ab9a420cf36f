package domain

import (
	"strings"
	"time"
)

type PlayerStatus string

const (
	PlayerOnline  PlayerStatus = "online"
	PlayerOffline PlayerStatus = "offline"
)

type Player struct {
	ID          int64        `json:"playerId"`
	Username    string       `json:"username"`
	DisplayName string       `json:"displayName"`
	Status      PlayerStatus `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Name returns the label shown to other players.
func (p *Player) Name() string {
	if p == nil {
		return ""
	}
	if strings.TrimSpace(p.DisplayName) != "" {
		return p.DisplayName
	}
	return p.Username
}

type PlayerStats struct {
	PlayerID    int64 `json:"playerId"`
	GamesPlayed int   `json:"gamesPlayed"`
	Wins        int   `json:"wins"`
	Losses      int   `json:"losses"`
	Draws       int   `json:"draws"`
	Points      int   `json:"point"`
}

// StatOutcome is the per-player bucket a finished ranked game is counted in.
type StatOutcome string

const (
	StatWin  StatOutcome = "win"
	StatLoss StatOutcome = "loss"
	StatDraw StatOutcome = "draw"
)

// Apply folds one finished game into the counters.
func (s *PlayerStats) Apply(outcome StatOutcome, points int) {
	s.GamesPlayed++
	switch outcome {
	case StatWin:
		s.Wins++
	case StatLoss:
		s.Losses++
	case StatDraw:
		s.Draws++
	}
	s.Points += points
}
