package domain

import (
	"strings"
	"time"
)

// Color identifies chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func ParseColor(s string) (Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, true
	case "black", "b":
		return Black, true
	default:
		return "", false
	}
}

func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

type GameStatus string

const (
	GamePlaying  GameStatus = "playing"
	GameFinished GameStatus = "finished"
)

type Result string

const (
	WhiteWin Result = "white_win"
	BlackWin Result = "black_win"
	Draw     Result = "draw"
)

func (r Result) Valid() bool { return r == WhiteWin || r == BlackWin || r == Draw }

// WinFor returns the result in which color wins.
func WinFor(c Color) Result {
	if c == White {
		return WhiteWin
	}
	return BlackWin
}

// LossFor returns the result in which color loses.
func LossFor(c Color) Result { return WinFor(c.Opposite()) }

type EndReason string

const (
	ReasonAgreement EndReason = "mutual_agreement"
	ReasonResign    EndReason = "resignation"
	ReasonTimeout   EndReason = "timeout"
	ReasonCheckmate EndReason = "checkmate"
)

// Game is the persisted record of one played game.
type Game struct {
	ID               int64        `json:"gameId"`
	Mode             RoomMode     `json:"gameMode"`
	RoomID           int64        `json:"roomId,omitempty"`
	WhiteID          int64        `json:"whitePlayerId"`
	BlackID          int64        `json:"blackPlayerId"`
	Ranked           bool         `json:"isRanked"`
	Time             TimeSettings `json:"timeSettings"`
	Status           GameStatus   `json:"status"`
	Result           Result       `json:"result,omitempty"`
	Reason           EndReason    `json:"reason,omitempty"`
	WhitePointChange int          `json:"whitePointChange"`
	BlackPointChange int          `json:"blackPointChange"`
	StartedAt        time.Time    `json:"startTime"`
	EndedAt          time.Time    `json:"endTime,omitempty"`
}

// ColorOf returns the side assigned to playerID.
func (g *Game) ColorOf(playerID int64) (Color, bool) {
	switch {
	case g == nil || playerID == 0:
		return "", false
	case g.WhiteID == playerID:
		return White, true
	case g.BlackID == playerID:
		return Black, true
	default:
		return "", false
	}
}

// PlayerOf returns the player holding color.
func (g *Game) PlayerOf(c Color) int64 {
	if c == White {
		return g.WhiteID
	}
	return g.BlackID
}

// Opponent returns the other participant, or 0 when playerID is not in the game.
func (g *Game) Opponent(playerID int64) int64 {
	c, ok := g.ColorOf(playerID)
	if !ok {
		return 0
	}
	return g.PlayerOf(c.Opposite())
}

func (g *Game) Playing() bool { return g != nil && g.Status == GamePlaying }

// Move is one append-only half-move record.
type Move struct {
	GameID    int64     `json:"gameId"`
	Seq       int       `json:"moveNumber"`
	Color     Color     `json:"playerColor"`
	Notation  string    `json:"move"`
	FEN       string    `json:"fen"`
	CreatedAt time.Time `json:"createdAt"`
}

// Outcome is what finishing a game writes.
type Outcome struct {
	Result     Result
	Reason     EndReason
	WhiteDelta int
	BlackDelta int
	EndedAt    time.Time
}
