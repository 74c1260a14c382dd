package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dev-room/backend/config"
	"dev-room/backend/database"
	"dev-room/backend/execution"
	"dev-room/backend/handlers"
	"dev-room/backend/middleware"
	"dev-room/backend/websocket"

	"github.com/gorilla/mux"
	"github.com/rs/cors" // 引入 CORS 庫
)

func main() {
	cfg := config.LoadConfig()

	database.ConnectMongoDB(cfg.MongoDBURI, cfg.DBName)
	defer database.DisconnectMongoDB()

	database.ConnectRedis(cfg.RedisAddr)
	defer database.CloseRedis()

	// 同步引擎每個程序只初始化一次，儲存層與執行服務由這裡注入
	runner := execution.NewClient(cfg.ExecuteAPIURL, cfg.ExecuteTimeout)
	engine := websocket.NewEngine(database.Rooms, database.Presence, database.Users, runner)

	router := mux.NewRouter()

	// 健康檢查路由
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "Backend is running!")
	}).Methods("GET")

	// 註冊 / 登入 API 路由
	router.HandleFunc("/register", handlers.RegisterUser).Methods("POST")
	router.HandleFunc("/login", handlers.LoginUser).Methods("POST")

	// WebSocket 事件通道
	router.HandleFunc("/ws", websocket.ServeWS(engine))

	// 房間 API 路由，需通過 JWT 驗證
	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.JWTMiddleware)
	api.HandleFunc("/rooms", handlers.GetUserRooms).Methods("GET")
	api.HandleFunc("/rooms/join", handlers.JoinRoomForUser).Methods("POST")
	api.HandleFunc("/rooms/check", handlers.CheckRoom).Methods("GET")
	api.HandleFunc("/rooms/create", handlers.CreateRoom).Methods("POST")

	// 設置 CORS 中介軟體
	// 實際生產環境中，AllowedOrigins 應限制為你的前端網域
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	// 將 CORS 中介軟體應用到你的路由上
	handler := c.Handler(router)

	serverAddr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		IdleTimeout:  120 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// 如果錯誤不是因為主動關閉伺服器，就記錄錯誤並結束程式
			log.Fatalf("Could not listen on %s: %v", serverAddr, err)
		}
	}()

	//當按下 Ctrl+C，程式會收到 SIGINT
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received signal %s, shutting down server...", sig)

	//最多等30秒關閉，避免資料損壞，請求中斷
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited gracefully.")
}
