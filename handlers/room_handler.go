package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"dev-room/backend/database"
	"dev-room/backend/models"
)

// JoinRoomRequest 定義把房間加入帳號造訪列表的請求體
type JoinRoomRequest struct {
	Email  string `json:"email"`
	RoomID string `json:"roomId"`
}

// CreateRoomRequest 定義建立房間的請求體
type CreateRoomRequest struct {
	RoomID    string `json:"roomId"`
	Name      string `json:"name"`
	CreatedBy string `json:"createdBy,omitempty"` // 可選：建立者的帳號 Email
}

// GetUserRooms 處理獲取使用者造訪過的所有房間的請求
// GET /api/rooms?email=...
func GetUserRooms(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		sendJSONError(w, "Email required", http.StatusBadRequest)
		return
	}

	user, err := database.Users.GetByEmail(email)
	if err != nil {
		sendJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		sendJSONError(w, "User not found", http.StatusNotFound)
		return
	}

	rooms, err := database.Rooms.FindByKeys(user.Rooms)
	if err != nil {
		sendJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"rooms": rooms})
}

// JoinRoomForUser 處理把房間加入使用者造訪列表的請求
// POST /api/rooms/join
func JoinRoomForUser(w http.ResponseWriter, r *http.Request) {
	var req JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.RoomID == "" {
		sendJSONError(w, "Email and roomId required", http.StatusBadRequest)
		return
	}

	user, err := database.Users.GetByEmail(req.Email)
	if err != nil {
		sendJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		sendJSONError(w, "User not found", http.StatusNotFound)
		return
	}

	if err := database.Users.AddRoom(req.Email, req.RoomID); err != nil {
		sendJSONError(w, "Failed to add room", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Room added"})
}

// CheckRoom 處理檢查房間是否存在的請求（建立房間前的前端檢查）
// GET /api/rooms/check?roomId=...
func CheckRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		sendJSONError(w, "Room ID is required", http.StatusBadRequest)
		return
	}

	room, err := database.Rooms.Find(roomID)
	if err != nil {
		sendJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// 一併回報目前在線的成員名稱，名單讀取失敗不影響存在性檢查
	activeUsers := []string{}
	if room != nil {
		if participants, err := database.Presence.List(roomID); err == nil {
			activeUsers = models.ParticipantNames(participants)
		} else {
			log.Printf("Error listing presence for room %s: %v", roomID, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"exists":      room != nil,
		"room":        room,
		"activeUsers": activeUsers,
	})
}

// CreateRoom 處理建立新房間的請求
// POST /api/rooms/create
func CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.RoomID == "" || req.Name == "" {
		sendJSONError(w, "Room ID and name required", http.StatusBadRequest)
		return
	}

	existing, err := database.Rooms.Find(req.RoomID)
	if err != nil {
		sendJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		sendJSONError(w, "Room ID already exists", http.StatusBadRequest)
		return
	}

	room, err := database.Rooms.Create(req.RoomID, req.Name)
	if err != nil {
		log.Printf("Error creating room %s: %v", req.RoomID, err)
		sendJSONError(w, "Failed to create room", http.StatusInternalServerError)
		return
	}

	// 把新房間記到建立者的造訪列表，失敗不影響建立結果
	if req.CreatedBy != "" {
		if err := database.Users.AddRoom(req.CreatedBy, req.RoomID); err != nil {
			log.Printf("Error adding room %s to creator %s: %v", req.RoomID, req.CreatedBy, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Room created",
		"room":    room,
	})
}
