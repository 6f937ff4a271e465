package models

import "encoding/json"

// Event names accepted from clients over the WebSocket channel.
const (
	EventRegister       = "register"
	EventLogin          = "login"
	EventPing           = "ping"
	EventChatMessage    = "chat-message"
	EventPrivateMsg     = "private-msg"
	EventMarkRead       = "mark-read"
	EventSaveSettings   = "save-settings"
	EventUpdateProfile  = "update-profile"
	EventGetUserInfo    = "get-user-info"
	EventSendRequest    = "send-friend-request"
	EventRespondRequest = "respond-friend-request"
	EventRemoveFriend   = "remove-friend"
	EventBlockUser      = "block-user"
	EventUnblockUser    = "unblock-user"
	EventCallUser       = "call-user"
	EventMakeAnswer     = "make-answer"
	EventIceCandidate   = "ice-candidate"
	EventHangUp         = "hang-up"
	EventAdminDeleteMsg = "admin-delete-msg"
	EventAdminBanUser   = "admin-ban-user"
)

// Event names emitted to clients.
const (
	EventAuthSuccess     = "auth-success"
	EventAuthError       = "auth-error"
	EventValidationError = "validation-error"
	EventError           = "error"
	EventLoadHistory     = "load-history"
	EventUpdateUsers     = "update-users"
	EventUpdateFriends   = "update-friends"
	EventUpdateStatuses  = "update-statuses"
	EventUpdateUnread    = "update-unread"
	EventUpdateAvatars   = "update-avatars"
	EventUserInfoResult  = "user-info-result"
	EventNotification    = "notification"
	EventProfileUpdated  = "profile-updated"
	EventForceDisconnect = "force-disconnect"
)

// Frame is the wire envelope in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound payloads, decoded per event at the gateway boundary.

type RegisterPayload struct {
	Pseudo   string `json:"pseudo"`
	Password string `json:"password"`
	Age      int    `json:"age,omitempty"`
	Sex      string `json:"sex,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

type LoginPayload struct {
	Pseudo   string `json:"pseudo"`
	Password string `json:"password"`
}

type ChatMessagePayload struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

type PrivateMsgPayload struct {
	To      string      `json:"to"`
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

type MarkReadPayload struct {
	From string `json:"from"`
}

type UpdateProfilePayload struct {
	Avatar   *string `json:"avatar,omitempty"`
	Status   *string `json:"status,omitempty"`
	Password *string `json:"password,omitempty"`
}

// TargetPayload covers every event whose payload is just another pseudo
// (get-user-info, friend/block operations, admin-ban-user).
type TargetPayload struct {
	Pseudo string `json:"pseudo"`
}

type RespondRequestPayload struct {
	Pseudo string `json:"pseudo"`
	Accept bool   `json:"accept"`
}

// SignalPayload carries call negotiation data. Data stays opaque to the
// coordinator; only From is stamped server-side before relaying.
type SignalPayload struct {
	To   string          `json:"to"`
	Data json.RawMessage `json:"data,omitempty"`
}

type DeleteMsgPayload struct {
	ID string `json:"id"`
}

// Outbound payloads.

// SignalEvent is the relayed form of a signaling payload.
type SignalEvent struct {
	From string          `json:"from"`
	Data json.RawMessage `json:"data,omitempty"`
}

type AuthErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorPayload struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

type NotificationPayload struct {
	Message string `json:"message"`
}
