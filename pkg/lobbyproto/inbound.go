package lobbyproto

type MatchRef struct {
	MatchID string `json:"matchId"`
}

type RoomRef struct {
	RoomID int64 `json:"roomId"`
}

type GameRef struct {
	GameID int64 `json:"gameId"`
}

type CreateRoom struct {
	RoomName       string `json:"roomName"`
	RoomType       string `json:"roomType"`
	RoomMode       string `json:"roomMode"`
	Password       string `json:"password,omitempty"`
	TimeInitialSec int    `json:"timeInitialSec"`
	PerMoveMaxSec  int    `json:"perMoveMaxSec"`
	IncrementSec   int    `json:"incrementSec"`
}

// JoinRoom addresses the room by id or by its share code.
type JoinRoom struct {
	RoomID   int64  `json:"roomId,omitempty"`
	RoomCode string `json:"roomCode,omitempty"`
	Password string `json:"password,omitempty"`
}

type RequestJoin struct {
	RoomID   int64  `json:"roomId"`
	Password string `json:"password,omitempty"`
}

type JoinDecision struct {
	RoomID      int64 `json:"roomId"`
	RequesterID int64 `json:"requesterId"`
}

type RoomReady struct {
	RoomID  int64 `json:"roomId"`
	IsReady bool  `json:"isReady"`
}

type InvitePlayer struct {
	TargetPlayerID int64 `json:"targetPlayerId"`
	RoomID         int64 `json:"roomId"`
}

// MakeMove is also the body of the opponent_move relay.
type MakeMove struct {
	GameID      int64  `json:"gameId"`
	Move        string `json:"move"`
	FEN         string `json:"fen"`
	MoveNumber  int    `json:"moveNumber"`
	PlayerColor string `json:"playerColor"`
}

type ChatMessage struct {
	GameID  int64  `json:"gameId"`
	Message string `json:"message"`
}

type GameEnd struct {
	GameID int64  `json:"gameId"`
	Result string `json:"result"`
}

type Timeout struct {
	GameID      int64  `json:"gameId"`
	PlayerColor string `json:"playerColor"`
}
