package event

import (
	"encoding/json"
	"strings"
)

// Server to client events
const (
	// EventMessageNew - a message was appended to the user's conversation
	EventMessageNew = "message:new"

	// EventChatUpdate - conversation preview (last message, status) changed
	EventChatUpdate = "chat:update"

	// EventAdminMessageNew - same as EventMessageNew, for the admin support room
	EventAdminMessageNew = "admin_support:message:new"

	// EventAdminChatUpdate - same as EventChatUpdate, for the admin support room
	EventAdminChatUpdate = "admin_support:chat:update"
)

// Client to server events
const (
	// EventTyping - typing indicator, forwarded to the other side
	EventTyping = "chat:typing"
)

const (
	// RoomAdminSupport is joined by every connected admin.
	RoomAdminSupport = "admin_support"

	userRoomPrefix = "user:"
)

// UserRoom is the room every connection of userID joins.
func UserRoom(userID string) string {
	return userRoomPrefix + userID
}

// UserFromRoom extracts the user id of a user room.
func UserFromRoom(room string) (string, bool) {
	if !strings.HasPrefix(room, userRoomPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(room, userRoomPrefix)
	return id, id != ""
}

type WsEvent struct {
	Event   string          `json:"event"`
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

// New marshals payload into an event addressed to room.
func New(room, name string, payload interface{}) (WsEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return WsEvent{}, err
	}
	return WsEvent{Event: name, Room: room, Payload: raw}, nil
}
