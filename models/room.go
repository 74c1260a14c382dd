package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// DefaultCode 是新房間的預設文件內容
	DefaultCode = "// start code here"

	// DefaultLanguage 是新房間的預設程式語言
	DefaultLanguage = "javascript"
)

// Room 代表一個共編房間：以 roomId 為全域唯一鍵，保存最新的文件內容與語言
type Room struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	RoomID    string             `bson:"roomId" json:"roomId"` // 呼叫端提供的房間鍵
	Name      string             `bson:"name" json:"name"`
	Code      string             `bson:"code" json:"code"`
	Language  string             `bson:"language" json:"language"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Participant 代表房間在線名單中的一筆成員紀錄
// SocketID 是連線身分（每條連線唯一），Name 是顯示名稱（允許重複）
type Participant struct {
	Name     string `bson:"name" json:"name"`
	SocketID string `bson:"socketId" json:"socketId"`
}

// ParticipantNames 依加入順序取出顯示名稱列表，供 userJoined 廣播使用
func ParticipantNames(participants []Participant) []string {
	names := make([]string, 0, len(participants))
	for _, p := range participants {
		names = append(names, p.Name)
	}
	return names
}
