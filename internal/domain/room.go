package domain

import "time"

type RoomType string

const (
	RoomPublic  RoomType = "public"
	RoomPrivate RoomType = "private"
)

func (t RoomType) Valid() bool { return t == RoomPublic || t == RoomPrivate }

type RoomMode string

const (
	ModeNormal    RoomMode = "normal"
	ModeIncrement RoomMode = "increment"
)

func (m RoomMode) Valid() bool { return m == ModeNormal || m == ModeIncrement }

type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomPlaying  RoomStatus = "playing"
	RoomFinished RoomStatus = "finished"
)

// TimeSettings are seconds; zero means unset.
type TimeSettings struct {
	InitialSec    int `json:"time_initial_sec"`
	PerMoveMaxSec int `json:"per_move_max_sec"`
	IncrementSec  int `json:"increment_sec"`
}

// Timed reports whether the settings describe a clocked game.
func (t TimeSettings) Timed() bool { return t.InitialSec > 0 || t.PerMoveMaxSec > 0 }

type Room struct {
	ID           int64        `json:"id"`
	Code         string       `json:"code"`
	Name         string       `json:"name"`
	Type         RoomType     `json:"roomType"`
	Mode         RoomMode     `json:"roomMode"`
	Time         TimeSettings `json:"timeSettings"`
	HostID       int64        `json:"hostPlayerId"`
	GuestID      int64        `json:"guestPlayerId,omitempty"`
	HostReady    bool         `json:"hostReady"`
	GuestReady   bool         `json:"guestReady"`
	Status       RoomStatus   `json:"status"`
	PasswordHash string       `json:"passwordHash,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

func (r *Room) IsHost(playerID int64) bool  { return r != nil && playerID != 0 && r.HostID == playerID }
func (r *Room) IsGuest(playerID int64) bool { return r != nil && playerID != 0 && r.GuestID == playerID }

// HasMember reports whether playerID occupies either seat.
func (r *Room) HasMember(playerID int64) bool { return r.IsHost(playerID) || r.IsGuest(playerID) }

// Occupants returns the non-empty seats, host first.
func (r *Room) Occupants() []int64 {
	if r == nil {
		return nil
	}
	out := make([]int64, 0, 2)
	if r.HostID != 0 {
		out = append(out, r.HostID)
	}
	if r.GuestID != 0 {
		out = append(out, r.GuestID)
	}
	return out
}

// NeedsPassword reports whether joining requires a password check.
func (r *Room) NeedsPassword() bool { return r != nil && r.Type == RoomPrivate && r.PasswordHash != "" }

// Clone returns a copy safe to mutate.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Snapshot is the client-visible view of a room; the password hash never leaves the server.
type Snapshot struct {
	ID          int64        `json:"id"`
	Code        string       `json:"code"`
	Name        string       `json:"name"`
	Type        RoomType     `json:"roomType"`
	Mode        RoomMode     `json:"roomMode"`
	Time        TimeSettings `json:"timeSettings"`
	HostID      int64        `json:"hostPlayerId"`
	GuestID     int64        `json:"guestPlayerId,omitempty"`
	HostReady   bool         `json:"hostReady"`
	GuestReady  bool         `json:"guestReady"`
	Status      RoomStatus   `json:"status"`
	HasPassword bool         `json:"hasPassword"`
	CreatedAt   time.Time    `json:"createdAt"`
}

func (r *Room) Snapshot() Snapshot {
	return Snapshot{
		ID:          r.ID,
		Code:        r.Code,
		Name:        r.Name,
		Type:        r.Type,
		Mode:        r.Mode,
		Time:        r.Time,
		HostID:      r.HostID,
		GuestID:     r.GuestID,
		HostReady:   r.HostReady,
		GuestReady:  r.GuestReady,
		Status:      r.Status,
		HasPassword: r.NeedsPassword(),
		CreatedAt:   r.CreatedAt,
	}
}
