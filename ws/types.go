package ws

import "github.com/ihazratummar/Neat-Roots-Chat-app/common/apperr"

// Frame is one server to client message.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Outbound frame types.
const (
	FrameProfile  = "profile"
	FrameChats    = "chats"
	FrameMessages = "messages"
	FrameStatus   = "status"
	FrameNotice   = "notice"
	FrameAck      = "ack"
	FrameError    = "error"
)

// Request is one client to server message. ID is echoed back in the ack or
// error frame answering it.
type Request struct {
	ID     string `json:"id,omitempty"`
	Type   string `json:"type"`
	ChatID string `json:"chatId,omitempty"`
	Body   string `json:"body,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// Request types.
const (
	RequestOpen    = "open"
	RequestClose   = "close"
	RequestSend    = "send"
	RequestAddChat = "addChat"
	RequestSignOut = "signOut"
)

type MessagesView struct {
	ChatID   string `json:"chatId"`
	Messages any    `json:"messages"`
}

type Ack struct {
	ID   string `json:"id,omitempty"`
	Data any    `json:"data,omitempty"`
}

type Failure struct {
	ID      string      `json:"id,omitempty"`
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}
