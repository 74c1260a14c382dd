package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv" // 引入這個庫來讀取 .env 檔案
)

// Config 結構體用於儲存應用程式的配置
type Config struct {
	MongoDBURI     string
	DBName         string
	RedisAddr      string
	Port           string
	JWTSecret      string
	FrontendURL    string
	ExecuteAPIURL  string
	ExecuteTimeout time.Duration
}

// LoadConfig 載入配置，優先從環境變數讀取，其次從 .env 檔案讀取
func LoadConfig() *Config {
	// 嘗試載入 .env 檔案，如果不存在也不會報錯
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, relying on environment variables.")
	}

	cfg := &Config{
		MongoDBURI:     getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		DBName:         getEnv("DB_NAME", "codeeditor"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		Port:           getEnv("PORT", "5000"),
		JWTSecret:      getEnv("JWT_SECRET", "dev-room-secret"),
		FrontendURL:    getEnv("FRONTEND_URL", "http://localhost:5173"),
		ExecuteAPIURL:  getEnv("EXECUTE_API_URL", "https://emkc.org/api/v2/piston/execute"),
		ExecuteTimeout: time.Duration(getEnvInt("EXECUTE_TIMEOUT_SECONDS", 10)) * time.Second,
	}
	return cfg
}

// getEnv 輔助函數，用於從環境變數獲取值，如果不存在則使用預設值
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt 輔助函數，解析整數型環境變數，解析失敗時使用預設值
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Invalid integer for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}
