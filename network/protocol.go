package network

const (
	MsgTypeHeartbeat  = 1
	MsgTypeJoinRoom   = 101
	MsgTypeLeaveRoom  = 102
	MsgTypeCreateRoom = 103
	MsgTypeStartGame  = 104
	MsgTypePlaceDigit = 201
	MsgTypeChat       = 202
	MsgTypeRoomState  = 301
	MsgTypeGameEnd    = 305
	MsgTypeError      = 500
)

// MsgName 用于日志和指标标签
func MsgName(msgID uint16) string {
	switch msgID {
	case MsgTypeHeartbeat:
		return "heartbeat"
	case MsgTypeJoinRoom:
		return "join_room"
	case MsgTypeLeaveRoom:
		return "leave_room"
	case MsgTypeCreateRoom:
		return "create_room"
	case MsgTypeStartGame:
		return "start_game"
	case MsgTypePlaceDigit:
		return "place_digit"
	case MsgTypeChat:
		return "chat"
	case MsgTypeRoomState:
		return "room_state"
	case MsgTypeGameEnd:
		return "game_end"
	case MsgTypeError:
		return "error"
	default:
		return "unknown"
	}
}

type CreateRoomRequest struct {
	Type      string `json:"type"`
	MaxMember int    `json:"maxMember"`
}

type CreateRoomReply struct {
	RoomCode  string `json:"roomCode"`
	ShareLink string `json:"shareLink"`
}

type JoinRoomRequest struct {
	RoomCode string `json:"roomCode"`
}

type PlaceDigitRequest struct {
	Row   int `json:"row"`
	Col   int `json:"col"`
	Digit int `json:"digit"`
}

type PlaceDigitReply struct {
	Correct    bool `json:"correct"`
	LifeLost   bool `json:"lifeLost"`
	Eliminated bool `json:"eliminated"`
	Ended      bool `json:"ended"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

// ErrorReply 错误包，code 为稳定的机器可读值
type ErrorReply struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
