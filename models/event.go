package models

import "encoding/json"

// EventType 定義 WebSocket 事件名稱
type EventType string

// 客戶端 → 伺服器 的事件
const (
	EventJoin           EventType = "join"
	EventCodeChange     EventType = "codeChange"
	EventLeaveRoom      EventType = "leaveRoom"
	EventTyping         EventType = "typing"
	EventLanguageChange EventType = "languageChange"
	EventCompileCode    EventType = "compileCode"
)

// 伺服器 → 客戶端 的事件
const (
	EventUserJoined     EventType = "userJoined"
	EventCodeUpdate     EventType = "codeUpdate"
	EventUserTyping     EventType = "userTyping"
	EventLanguageUpdate EventType = "languageUpdate"
	EventCodeResponse   EventType = "codeResponse"
	EventLeftRoom       EventType = "leftRoom"
)

// InboundEvent 是客戶端送來的事件封包
// Data 先保留原始 JSON，由各事件的處理邏輯再解析成對應的 payload
type InboundEvent struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// OutboundEvent 是伺服器送出的事件封包，在 writePump 統一序列化
type OutboundEvent struct {
	Event EventType   `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// JoinPayload 對應 join 事件
type JoinPayload struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
	Email    string `json:"email,omitempty"` // 可選：登入使用者的帳號 Email
}

// CodeChangePayload 對應 codeChange 事件
type CodeChangePayload struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

// TypingPayload 對應 typing 事件
type TypingPayload struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

// LanguageChangePayload 對應 languageChange 事件
type LanguageChangePayload struct {
	RoomID   string `json:"roomId"`
	Language string `json:"language"`
}

// CompileCodePayload 對應 compileCode 事件
type CompileCodePayload struct {
	Code     string `json:"code"`
	RoomID   string `json:"roomId"`
	Language string `json:"language"`
	Version  string `json:"version"`
	Input    string `json:"input"`
}
