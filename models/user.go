package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RegisterRequest 結構體用於處理註冊請求
type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest 結構體用於處理登入請求
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ErrorResponse 結構體用於返回 JSON 格式的錯誤訊息
type ErrorResponse struct {
	Message string `json:"message"`
}

// User 結構體定義了使用者資料的欄位
// Rooms 保存使用者造訪過的房間鍵，首次加入或建立房間時追加
type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"` // MongoDB 的唯一 ID
	Email    string             `bson:"email" json:"email"`                // 使用者 Email，唯一索引在連線時建立
	Username string             `bson:"username" json:"username"`
	Password string             `bson:"password" json:"-"` // 儲存哈希後的密碼，JSON 輸出時忽略
	Rooms    []string           `bson:"rooms" json:"rooms"`
}
