package matrix

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event types the shell looks at.
const (
	EventRoomMessage    = "m.room.message"
	EventRoomName       = "m.room.name"
	EventRoomTopic      = "m.room.topic"
	EventRoomEncryption = "m.room.encryption"
	EventRoomEncrypted  = "m.room.encrypted"

	MsgTypeText = "m.text"
)

// Event is a client-server API event as delivered by /sync or
// /rooms/{roomId}/event/{eventId}.
type Event struct {
	EventID        string          `json:"event_id"`
	Type           string          `json:"type"`
	Sender         string          `json:"sender"`
	OriginServerTS int64           `json:"origin_server_ts"`
	StateKey       *string         `json:"state_key,omitempty"`
	Content        json.RawMessage `json:"content,omitempty"`
}

type messageContent struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`
	Name    string `json:"name"`
	Topic   string `json:"topic"`
}

func (e *Event) content() messageContent {
	var c messageContent
	if len(e.Content) > 0 {
		_ = json.Unmarshal(e.Content, &c)
	}
	return c
}

// IsMessage reports whether e is an m.room.message event.
func (e *Event) IsMessage() bool {
	return e.Type == EventRoomMessage
}

// MsgType returns the msgtype of a message event.
func (e *Event) MsgType() string {
	if !e.IsMessage() {
		return ""
	}
	return e.content().MsgType
}

// Body returns the body of a message event.
func (e *Event) Body() string {
	if !e.IsMessage() {
		return ""
	}
	return e.content().Body
}

// IsState reports whether e carries a state key.
func (e *Event) IsState() bool {
	return e.StateKey != nil
}

// SyncResponse is the subset of the /sync response the shell consumes.
type SyncResponse struct {
	NextBatch string `json:"next_batch"`
	Rooms     struct {
		Join  map[string]JoinedRoom `json:"join"`
		Leave map[string]struct{}   `json:"leave"`
	} `json:"rooms"`
}

// JoinedRoom is the per-room part of a /sync response.
type JoinedRoom struct {
	State struct {
		Events []Event `json:"events"`
	} `json:"state"`
	Timeline struct {
		Events    []Event `json:"events"`
		Limited   bool    `json:"limited"`
		PrevBatch string  `json:"prev_batch"`
	} `json:"timeline"`
	UnreadNotifications struct {
		NotificationCount int64 `json:"notification_count"`
		HighlightCount    int64 `json:"highlight_count"`
	} `json:"unread_notifications"`
}

// Pusher kinds.
const (
	PusherKindHTTP  = "http"
	PusherKindEmail = "email"
)

// Pusher is a push gateway registration of the account.
type Pusher struct {
	Kind              string `json:"kind"`
	AppDisplayName    string `json:"app_display_name"`
	AppID             string `json:"app_id"`
	DeviceDisplayName string `json:"device_display_name"`
	Lang              string `json:"lang"`
	ProfileTag        string `json:"profile_tag,omitempty"`
	Pushkey           string `json:"pushkey"`
	Data              struct {
		URL    string `json:"url,omitempty"`
		Format string `json:"format,omitempty"`
	} `json:"data"`
}

// ParseUserID splits a fully qualified user id "@localpart:server".
func ParseUserID(userID string) (localpart, server string, err error) {
	if !strings.HasPrefix(userID, "@") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	localpart, server, found := strings.Cut(userID[1:], ":")
	if !found || localpart == "" || server == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	return localpart, server, nil
}
