package database

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"dev-room/backend/models"

	"github.com/redis/go-redis/v9"
)

var RedisClient *redis.Client

// ConnectRedis 建立並初始化 Redis 連線，在線名單存放在這裡
func ConnectRedis(addr string) {
	RedisClient = redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := RedisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis successfully!")
}

// CloseRedis 關閉 Redis 連線
func CloseRedis() {
	if RedisClient == nil {
		return
	}
	if err := RedisClient.Close(); err != nil {
		log.Printf("Error closing Redis connection: %v", err)
	}
}

// presenceKey 組出房間在線名單的 Redis 鍵
func presenceKey(roomID string) string {
	return "room:" + roomID + ":active"
}

// PresenceStore 以 Redis list 實作每個房間的在線名單
// RPUSH / LREM 是單指令原子操作：同一房間的並發加入與離開
// 不會互相覆蓋，名單順序就是加入順序
type PresenceStore struct{}

// Presence 是同步引擎共用的在線名單儲存實例
var Presence PresenceStore

// Add 把成員加入房間名單並回傳更新後的完整名單
// 以連線身分判斷重複：同一條連線重複 join 不會產生第二筆紀錄
// （單一連線的事件在它的讀取迴圈上序列執行，先查後寫不會跟自己競爭）
func (PresenceStore) Add(roomID string, p models.Participant) ([]models.Participant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := presenceKey(roomID)
	entries, err := RedisClient.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		log.Printf("Error reading presence for room %s: %v", roomID, err)
		return nil, err
	}

	if findEntry(entries, p.SocketID) == "" {
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		if err := RedisClient.RPush(ctx, key, raw).Err(); err != nil {
			log.Printf("Error adding participant to room %s: %v", roomID, err)
			return nil, err
		}
	}

	entries, err = RedisClient.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return decodeParticipants(entries), nil
}

// Remove 依連線身分把成員移出房間名單並回傳更新後的完整名單
func (PresenceStore) Remove(roomID, socketID string) ([]models.Participant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := presenceKey(roomID)
	entries, err := RedisClient.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		log.Printf("Error reading presence for room %s: %v", roomID, err)
		return nil, err
	}

	// LREM 以值比對移除，先找出這條連線的原始紀錄再整筆移除
	if entry := findEntry(entries, socketID); entry != "" {
		if err := RedisClient.LRem(ctx, key, 1, entry).Err(); err != nil {
			log.Printf("Error removing participant from room %s: %v", roomID, err)
			return nil, err
		}
	}

	entries, err = RedisClient.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return decodeParticipants(entries), nil
}

// List 讀取房間的完整在線名單
func (PresenceStore) List(roomID string) ([]models.Participant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries, err := RedisClient.LRange(ctx, presenceKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return decodeParticipants(entries), nil
}

// findEntry 在原始紀錄中找出指定連線身分的那一筆，找不到回傳空字串
func findEntry(entries []string, socketID string) string {
	for _, entry := range entries {
		var p models.Participant
		if err := json.Unmarshal([]byte(entry), &p); err != nil {
			continue
		}
		if p.SocketID == socketID {
			return entry
		}
	}
	return ""
}

// decodeParticipants 解析名單紀錄，無法解析的紀錄直接略過
func decodeParticipants(entries []string) []models.Participant {
	participants := make([]models.Participant, 0, len(entries))
	for _, entry := range entries {
		var p models.Participant
		if err := json.Unmarshal([]byte(entry), &p); err != nil {
			log.Printf("Skipping malformed presence entry: %v", err)
			continue
		}
		participants = append(participants, p)
	}
	return participants
}
