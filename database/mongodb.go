package database

import (
	"context"
	"log"
	"time"

	"dev-room/backend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var MongoClient *mongo.Client
var dbName string

// ConnectMongoDB 建立並初始化 MongoDB 連線
func ConnectMongoDB(uri, name string) {
	clientOptions := options.Client().ApplyURI(uri)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}

	// Ping the primary to verify connection
	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		log.Fatalf("Failed to ping MongoDB: %v", err)
	}

	log.Println("Connected to MongoDB successfully!")
	MongoClient = client
	dbName = name

	// 房間鍵與帳號 Email 都是全域唯一鍵，在啟動時建立唯一索引
	roomIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "roomId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err = GetCollection("rooms").Indexes().CreateOne(ctx, roomIndex); err != nil {
		log.Fatalf("Failed to create unique index for rooms collection: %v", err)
	}

	userIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err = GetCollection("users").Indexes().CreateOne(ctx, userIndex); err != nil {
		log.Fatalf("Failed to create unique index for users collection: %v", err)
	}
	log.Println("Unique indexes created for rooms and users collections.")
}

// GetCollection 獲取指定資料庫的集合
func GetCollection(collectionName string) *mongo.Collection {
	if MongoClient == nil {
		log.Fatal("MongoDB client is not initialized. Call ConnectMongoDB first.")
	}
	if dbName == "" { // 額外防護，確保 dbName 已初始化
		log.Fatal("Database name is not set. Call ConnectMongoDB with a valid dbName.")
	}
	return MongoClient.Database(dbName).Collection(collectionName)
}

// DisconnectMongoDB 關閉 MongoDB 連線
func DisconnectMongoDB() {
	if MongoClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := MongoClient.Disconnect(ctx); err != nil {
		log.Printf("Error disconnecting from MongoDB: %v", err)
	} else {
		log.Println("Disconnected from MongoDB.")
	}
}

// RoomStore 以 MongoDB 的 rooms 集合實作房間文件的存取
type RoomStore struct{}

// Rooms 是同步引擎與 HTTP 處理器共用的房間儲存實例
var Rooms RoomStore

// Ensure 讀取房間，不存在時以預設文件內容建立（create-if-absent）
// 以 upsert 實作，兩個連線同時加入新房間也只會建立一份文件
func (RoomStore) Ensure(roomID string) (*models.Room, error) {
	collection := GetCollection("rooms")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now()
	filter := bson.M{"roomId": roomID}
	update := bson.M{"$setOnInsert": bson.M{
		"roomId":    roomID,
		"name":      roomID,
		"code":      models.DefaultCode,
		"language":  models.DefaultLanguage,
		"createdAt": now,
		"updatedAt": now,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var room models.Room
	if err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&room); err != nil {
		log.Printf("Error ensuring room %s: %v", roomID, err)
		return nil, err
	}
	return &room, nil
}

// Find 依房間鍵查詢房間，找不到時回傳 (nil, nil)
func (RoomStore) Find(roomID string) (*models.Room, error) {
	collection := GetCollection("rooms")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var room models.Room
	err := collection.FindOne(ctx, bson.M{"roomId": roomID}).Decode(&room)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		log.Printf("Error finding room %s: %v", roomID, err)
		return nil, err
	}
	return &room, nil
}

// Create 以房間鍵與顯示名稱建立新房間，房間鍵重複時回傳錯誤（唯一索引擋下）
func (RoomStore) Create(roomID, name string) (*models.Room, error) {
	collection := GetCollection("rooms")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now()
	room := models.Room{
		RoomID:    roomID,
		Name:      name,
		Code:      models.DefaultCode,
		Language:  models.DefaultLanguage,
		CreatedAt: now,
		UpdatedAt: now,
	}
	result, err := collection.InsertOne(ctx, room)
	if err != nil {
		return nil, err
	}
	room.ID = result.InsertedID.(primitive.ObjectID)
	return &room, nil
}

// FindByKeys 依房間鍵列表批次查詢房間，供「使用者的房間列表」API 使用
func (RoomStore) FindByKeys(roomIDs []string) ([]models.Room, error) {
	if len(roomIDs) == 0 {
		return []models.Room{}, nil
	}
	collection := GetCollection("rooms")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cursor, err := collection.Find(ctx, bson.M{"roomId": bson.M{"$in": roomIDs}})
	if err != nil {
		log.Printf("Error finding rooms by keys: %v", err)
		return nil, err
	}
	defer cursor.Close(ctx)

	var rooms []models.Room
	if err = cursor.All(ctx, &rooms); err != nil {
		log.Printf("Error decoding rooms: %v", err)
		return nil, err
	}
	return rooms, nil
}

// UpdateCode 無條件覆寫房間的文件內容（last-write-wins，不帶版本號）
func (RoomStore) UpdateCode(roomID, code string) error {
	collection := GetCollection("rooms")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	update := bson.M{"$set": bson.M{"code": code, "updatedAt": time.Now()}}
	if _, err := collection.UpdateOne(ctx, bson.M{"roomId": roomID}, update); err != nil {
		log.Printf("Error updating code for room %s: %v", roomID, err)
		return err
	}
	return nil
}

// UpdateLanguage 覆寫房間的語言標籤，讓之後加入的連線拿到當前語言
func (RoomStore) UpdateLanguage(roomID, language string) error {
	collection := GetCollection("rooms")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	update := bson.M{"$set": bson.M{"language": language, "updatedAt": time.Now()}}
	if _, err := collection.UpdateOne(ctx, bson.M{"roomId": roomID}, update); err != nil {
		log.Printf("Error updating language for room %s: %v", roomID, err)
		return err
	}
	return nil
}

// AccountStore 以 MongoDB 的 users 集合實作帳號資料的存取
type AccountStore struct{}

// Users 是同步引擎與 HTTP 處理器共用的帳號儲存實例
var Users AccountStore

// GetByEmail 依 Email 查詢使用者，找不到時回傳 (nil, nil)
func (AccountStore) GetByEmail(email string) (*models.User, error) {
	collection := GetCollection("users")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var user models.User
	err := collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		log.Printf("Error finding user %s: %v", email, err)
		return nil, err
	}
	return &user, nil
}

// AddRoom 把房間鍵追加到使用者的造訪列表，$addToSet 保證不會重複
func (AccountStore) AddRoom(email, roomID string) error {
	collection := GetCollection("users")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	update := bson.M{"$addToSet": bson.M{"rooms": roomID}}
	if _, err := collection.UpdateOne(ctx, bson.M{"email": email}, update); err != nil {
		log.Printf("Error adding room %s to user %s: %v", roomID, email, err)
		return err
	}
	return nil
}
