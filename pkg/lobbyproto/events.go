package lobbyproto

// Inbound event types (client → server).
const (
	TypeJoinMatchmaking  = "join_matchmaking"
	TypeLeaveMatchmaking = "leave_matchmaking"
	TypeAcceptMatch      = "accept_match"
	TypeDeclineMatch     = "decline_match"

	TypeCreateRoom   = "create_room"
	TypeJoinRoom     = "join_room"
	TypeRequestJoin  = "request_join"
	TypeApproveJoin  = "approve_join"
	TypeRejectJoin   = "reject_join"
	TypeRoomReady    = "room_ready"
	TypeStartGame    = "start_game"
	TypeInvitePlayer = "invite_player"
	TypeLeaveRoom    = "leave_room"
	TypeListRooms    = "list_rooms"

	TypeMakeMove    = "make_move"
	TypeOfferDraw   = "offer_draw"
	TypeAcceptDraw  = "accept_draw"
	TypeDeclineDraw = "decline_draw"
	TypeResign      = "resign"
	TypeTimeout     = "timeout"
	TypeChatMessage = "chat_message"
	TypeGameEnd     = "game_end"

	TypePing = "ping"
)

// Outbound event types (server → client).
const (
	TypeConnected         = "connected"
	TypeMatchmakingJoined = "matchmaking_joined"
	TypeMatchmakingLeft   = "matchmaking_left"
	TypeMatchFound        = "match_found"
	TypeMatchAccepted     = "match_accepted"
	TypeMatchDeclined     = "match_declined"
	TypeMatchExpired      = "match_expired"
	TypeGameStarted       = "game_started"

	TypeRoomCreated     = "room_created"
	TypeRoomUpdated     = "room_updated"
	TypeRoomLeft        = "room_left"
	TypeRoomListUpdated = "room_list_updated"
	TypeRoomInvitation  = "room_invitation"
	TypeInvitationSent  = "invitation_sent"
	TypeRoomJoinRequest = "room_join_request"
	TypeJoinRequestSent = "join_request_sent"
	TypeJoinApproved    = "join_approved"
	TypeJoinRejected    = "join_rejected"

	TypeOpponentMove  = "opponent_move"
	TypeMoveConfirmed = "move_confirmed"
	TypeDrawOffered   = "draw_offered"
	TypeDrawOfferSent = "draw_offer_sent"
	TypeDrawDeclined  = "draw_declined"
	TypeGameEnded     = "game_ended"

	TypeError = "error"
	TypePong  = "pong"
)
