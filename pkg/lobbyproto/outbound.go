package lobbyproto

import "github.com/park285/cheese-lobby/internal/domain"

// Notice is the body of plain acknowledgements such as matchmaking_left.
type Notice struct {
	Message string `json:"message,omitempty"`
}

type Connected struct {
	PlayerID int64  `json:"playerId"`
	Message  string `json:"message,omitempty"`
}

type MatchmakingJoined struct {
	QueueSize int    `json:"queueSize"`
	Message   string `json:"message,omitempty"`
}

type MatchFound struct {
	MatchID    string `json:"matchId"`
	OpponentID int64  `json:"opponentId"`
}

type MatchAccepted struct {
	MatchID string `json:"matchId"`
	Message string `json:"message,omitempty"`
}

type MatchDeclined struct {
	MatchID    string `json:"matchId"`
	ByOpponent bool   `json:"byOpponent"`
	Message    string `json:"message,omitempty"`
}

type MatchExpired struct {
	MatchID string `json:"matchId"`
	Message string `json:"message,omitempty"`
}

type GameStarted struct {
	GameID        int64               `json:"gameId"`
	RoomID        int64               `json:"roomId,omitempty"`
	WhitePlayerID int64               `json:"whitePlayerId"`
	BlackPlayerID int64               `json:"blackPlayerId"`
	IsRanked      bool                `json:"isRanked"`
	GameMode      domain.RoomMode     `json:"gameMode"`
	TimeSettings  domain.TimeSettings `json:"timeSettings"`
}

type RoomView struct {
	Room domain.Snapshot `json:"room"`
}

type RoomList struct {
	Rooms []domain.Snapshot `json:"rooms"`
}

type RoomInvitation struct {
	RoomID       int64  `json:"roomId"`
	RoomCode     string `json:"roomCode,omitempty"`
	FromPlayerID int64  `json:"fromPlayerId"`
}

type InvitationSent struct {
	RoomID         int64  `json:"roomId"`
	TargetPlayerID int64  `json:"targetPlayerId"`
	Message        string `json:"message,omitempty"`
}

type RoomJoinRequest struct {
	RoomID        int64  `json:"roomId"`
	RequesterID   int64  `json:"requesterId"`
	RequesterName string `json:"requesterName"`
}

type JoinRequestSent struct {
	RoomID  int64  `json:"roomId"`
	Message string `json:"message,omitempty"`
}

type JoinApproved struct {
	Room domain.Snapshot `json:"room"`
}

type JoinRejected struct {
	RoomID int64  `json:"roomId"`
	Reason string `json:"reason"`
}

type MoveConfirmed struct {
	GameID     int64 `json:"gameId"`
	MoveNumber int   `json:"moveNumber"`
}

type DrawOffered struct {
	GameID       int64 `json:"gameId"`
	FromPlayerID int64 `json:"fromPlayerId"`
}

type GameNotice struct {
	GameID  int64  `json:"gameId"`
	Message string `json:"message,omitempty"`
}

type GameEnded struct {
	GameID           int64            `json:"gameId"`
	Result           domain.Result    `json:"result"`
	Reason           domain.EndReason `json:"reason"`
	WhitePointChange int              `json:"whitePointChange"`
	BlackPointChange int              `json:"blackPointChange"`
}

type ChatRelay struct {
	GameID       int64  `json:"gameId"`
	FromPlayerID int64  `json:"fromPlayerId"`
	Message      string `json:"message"`
	Timestamp    int64  `json:"timestamp"`
}

// Error is the single rejection sent back to the actor of a failed event.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
