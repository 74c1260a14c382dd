package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"dev-room/backend/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// 將訊息寫入到遠端對等點的最長時間
	writeWait = 10 * time.Second

	// 允許從遠端對等點讀取下一個 pong 訊息的最長時間。
	pongWait = 60 * time.Second

	// 發送 ping 訊息給遠端對等點的週期。
	pingPeriod = (pongWait * 9) / 10

	// 單一訊息的上限。codeChange 會帶整份文件，所以比一般聊天訊息大得多
	maxMessageSize = 512 * 1024
)

// upgrader 用於將 HTTP 連線升級為 WebSocket 連線
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 設定true:允許所有來源的連線
		return true
	},
}

// Client 代表一個 WebSocket 連線會話
// RoomID 與 Username 只會被這條連線自己的讀取迴圈（經由引擎）讀寫，
// 事件在該迴圈上序列執行，所以不需要額外加鎖
type Client struct {
	engine *Engine
	conn   *websocket.Conn
	send   chan models.OutboundEvent // 待送出的事件，在 writePump 序列化

	SocketID string // 連線身分，每條連線唯一
	Username string // join 之後才有值
	RoomID   string // 目前綁定的房間鍵，未綁定時為空字串
}

// enqueue 把事件放進送出佇列；佇列滿了就丟棄這個事件而不是阻塞扇出
// （漏掉的狀態會在下一次 join 的權威同步補回來）
func (c *Client) enqueue(evt models.OutboundEvent) {
	select {
	case c.send <- evt:
	default:
		log.Printf("Send buffer full for client %s, dropping %s event", c.SocketID, evt.Event)
	}
}

// 讀取客戶端傳來的事件，解析後交給引擎處理
func (c *Client) readPump() {
	defer func() {
		c.engine.Disconnect(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, p, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Client %s disconnected gracefully.", c.SocketID)
			} else {
				log.Printf("Error reading message from client %s: %v", c.SocketID, err)
			}
			break
		}

		var evt models.InboundEvent
		if err := json.Unmarshal(p, &evt); err != nil {
			log.Printf("Error unmarshalling event: %v", err)
			continue
		}

		c.dispatch(evt)
	}
}

// dispatch 依事件名稱解析 payload 並呼叫對應的引擎操作
func (c *Client) dispatch(evt models.InboundEvent) {
	switch evt.Event {
	case models.EventJoin:
		var payload models.JoinPayload
		if err := json.Unmarshal(evt.Data, &payload); err != nil {
			log.Printf("Error unmarshalling join payload: %v", err)
			return
		}
		c.engine.Join(c, payload.RoomID, payload.UserName, payload.Email)

	case models.EventCodeChange:
		var payload models.CodeChangePayload
		if err := json.Unmarshal(evt.Data, &payload); err != nil {
			log.Printf("Error unmarshalling codeChange payload: %v", err)
			return
		}
		c.engine.CodeChange(c, payload.RoomID, payload.Code)

	case models.EventLeaveRoom:
		c.engine.LeaveRoom(c)

	case models.EventTyping:
		var payload models.TypingPayload
		if err := json.Unmarshal(evt.Data, &payload); err != nil {
			log.Printf("Error unmarshalling typing payload: %v", err)
			return
		}
		c.engine.Typing(c, payload.RoomID, payload.UserName)

	case models.EventLanguageChange:
		var payload models.LanguageChangePayload
		if err := json.Unmarshal(evt.Data, &payload); err != nil {
			log.Printf("Error unmarshalling languageChange payload: %v", err)
			return
		}
		c.engine.LanguageChange(c, payload.RoomID, payload.Language)

	case models.EventCompileCode:
		var payload models.CompileCodePayload
		if err := json.Unmarshal(evt.Data, &payload); err != nil {
			log.Printf("Error unmarshalling compileCode payload: %v", err)
			return
		}
		// 外部執行可能要跑幾秒，放到獨立的 goroutine，
		// 不讓一次編譯擋住發送者後續的編輯事件
		go c.engine.Execute(payload.RoomID, payload.Code, payload.Language, payload.Version, payload.Input)

	default:
		log.Printf("Unknown event %q from client %s", evt.Event, c.SocketID)
	}
}

// 接收引擎扇出的事件，序列化後送給客戶端
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case evt, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 如果這個 channel 被關閉了（ok == false），就送出 CloseMessage
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			jsonEvent, err := json.Marshal(evt)
			if err != nil {
				log.Printf("Error marshalling event: %v", err)
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, jsonEvent); err != nil {
				log.Printf("Error writing message: %v", err)
				return
			}

		// 接收定時器以保持連線活躍並檢測客戶端是否仍在線。
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS 回傳處理 WebSocket 連線請求的處理器
// 連線建立時處於未綁定狀態，之後由 join 事件綁定房間
func ServeWS(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Failed to upgrade to WebSocket: %v", err)
			return
		}

		client := &Client{
			engine:   engine,
			conn:     conn,
			send:     make(chan models.OutboundEvent, 256),
			SocketID: uuid.New().String(),
		}
		log.Printf("Client %s connected", client.SocketID)

		go client.writePump()
		client.readPump() // readPump 會在連線關閉時呼叫 Disconnect
	}
}
