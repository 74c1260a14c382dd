package websocket

import (
	"log"
	"strings"
	"sync"

	"dev-room/backend/models"
)

// RoomStore 是房間文件的儲存合約（MongoDB 實作在 database 套件）
type RoomStore interface {
	Ensure(roomID string) (*models.Room, error)
	UpdateCode(roomID, code string) error
	UpdateLanguage(roomID, language string) error
}

// PresenceStore 是房間在線名單的儲存合約（Redis 實作在 database 套件）
// Add 以連線身分去重，Remove 以連線身分移除，兩者都回傳更新後的完整名單
type PresenceStore interface {
	Add(roomID string, p models.Participant) ([]models.Participant, error)
	Remove(roomID, socketID string) ([]models.Participant, error)
}

// AccountStore 是帳號造訪列表的合約，引擎只在加入房間時追加房間鍵
type AccountStore interface {
	AddRoom(email, roomID string) error
}

// Runner 是外部執行服務的合約，失敗也要回傳可廣播的回應物件
type Runner interface {
	Run(language, version, code, input string) interface{}
}

// Engine 是房間同步引擎：調度所有加入/離開/編輯/打字/換語言/執行事件，
// 對兩個儲存層做唯一寫入，並把結果扇出給綁定到該房間的所有連線。
// 每個程序只初始化一個實例，儲存層由外部注入。
type Engine struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]bool // 房間鍵 → 目前綁定的連線

	store    RoomStore
	presence PresenceStore
	accounts AccountStore
	runner   Runner
}

// NewEngine 建立同步引擎
func NewEngine(store RoomStore, presence PresenceStore, accounts AccountStore, runner Runner) *Engine {
	return &Engine{
		rooms:    make(map[string]map[*Client]bool),
		store:    store,
		presence: presence,
		accounts: accounts,
		runner:   runner,
	}
}

// register 把連線綁進房間的傳輸群組
func (e *Engine) register(c *Client, roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rooms[roomID]; !ok {
		e.rooms[roomID] = make(map[*Client]bool)
	}
	e.rooms[roomID][c] = true
}

// unregister 把連線移出房間的傳輸群組
func (e *Engine) unregister(c *Client, roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if clients, ok := e.rooms[roomID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(e.rooms, roomID) // 如果房間沒有連線了，就移除這個群組
		}
	}
}

// broadcast 把事件送給房間內的所有連線
func (e *Engine) broadcast(roomID string, evt models.OutboundEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for client := range e.rooms[roomID] {
		client.enqueue(evt)
	}
}

// broadcastExcept 把事件送給房間內除了 sender 以外的所有連線
func (e *Engine) broadcastExcept(roomID string, sender *Client, evt models.OutboundEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for client := range e.rooms[roomID] {
		if client != sender {
			client.enqueue(evt)
		}
	}
}

// Join 處理加入房間：
//   - 顯示名稱修剪後為空的請求直接忽略，不回錯誤也不改任何狀態
//   - 已綁定其他房間時先做隱式離開，確保一條連線只會出現在一個名單裡
//   - 房間不存在時以預設文件內容建立
//   - 名單以連線身分去重，重複的 join 不會產生第二筆成員
//   - 完整名單廣播給全房間（含加入者），最新文件與語言只發給加入者，
//     讓新成員從權威狀態開始而不是空白編輯器
func (e *Engine) Join(c *Client, roomID, userName, email string) {
	userName = strings.TrimSpace(userName)
	if userName == "" || roomID == "" {
		return
	}

	// 重複 join 同一個房間時，綁定與名單都是先前事件建立的狀態，
	// 這次事件失敗時不能退掉它們
	rejoin := c.RoomID == roomID

	room, err := e.store.Ensure(roomID)
	if err != nil {
		// 先前的房間綁定（如果有）保持原狀，客戶端可以直接重試
		log.Printf("Join failed for room %s: %v", roomID, err)
		return
	}

	// 確定新房間存在之後才離開舊房間，失敗的 join 不會讓連線兩頭落空
	if c.RoomID != "" && !rejoin {
		e.leave(c, false)
	}

	if !rejoin {
		e.register(c, roomID)
	}

	participants, err := e.presence.Add(roomID, models.Participant{Name: userName, SocketID: c.SocketID})
	if err != nil {
		// 名單寫入失敗就放棄這次事件，只退掉這次事件建立的傳輸綁定，
		// 維持先前狀態
		log.Printf("Failed to add participant to room %s: %v", roomID, err)
		if !rejoin {
			e.unregister(c, roomID)
		}
		return
	}

	c.RoomID = roomID
	c.Username = userName

	e.broadcast(roomID, models.OutboundEvent{Event: models.EventUserJoined, Data: models.ParticipantNames(participants)})

	// 只發給加入者的權威狀態同步
	c.enqueue(models.OutboundEvent{Event: models.EventCodeUpdate, Data: room.Code})
	c.enqueue(models.OutboundEvent{Event: models.EventLanguageUpdate, Data: room.Language})

	// 把房間記到帳號的造訪列表，盡力而為，失敗不回滾
	if email != "" {
		if err := e.accounts.AddRoom(email, roomID); err != nil {
			log.Printf("Failed to record room %s for account %s: %v", roomID, email, err)
		}
	}
}

// CodeChange 處理文件編輯：覆寫儲存的文件內容（last-write-wins），
// 再廣播給除了發送者以外的所有連線，避免回音蓋掉發送端的本地編輯狀態。
// 事件中的房間鍵必須等於連線綁定的房間，否則丟棄——
// 不讓客戶端寫入它沒有加入過的房間。
func (e *Engine) CodeChange(c *Client, roomID, code string) {
	if c.RoomID == "" || c.RoomID != roomID {
		log.Printf("Dropping codeChange for room %s from session bound to %q", roomID, c.RoomID)
		return
	}

	if err := e.store.UpdateCode(roomID, code); err != nil {
		log.Printf("Failed to update code for room %s: %v", roomID, err)
		return
	}

	e.broadcastExcept(roomID, c, models.OutboundEvent{Event: models.EventCodeUpdate, Data: code})
}

// Typing 處理打字脈衝：不落地，廣播給除了發送者以外的所有連線
// 接收端在短暫逾時後自行清掉指示
func (e *Engine) Typing(c *Client, roomID, userName string) {
	if c.RoomID == "" || c.RoomID != roomID {
		return
	}
	e.broadcastExcept(roomID, c, models.OutboundEvent{Event: models.EventUserTyping, Data: userName})
}

// LanguageChange 處理語言切換：持久化到房間（讓之後的加入者拿到當前語言），
// 再廣播給包含發送者在內的所有連線，讓所有客戶端立即收斂到同一語言。
// 持久化失敗只記錄，不擋廣播——在線的客戶端仍然要收斂。
func (e *Engine) LanguageChange(c *Client, roomID, language string) {
	if c.RoomID == "" || c.RoomID != roomID {
		return
	}

	if err := e.store.UpdateLanguage(roomID, language); err != nil {
		log.Printf("Failed to persist language for room %s: %v", roomID, err)
	}

	e.broadcast(roomID, models.OutboundEvent{Event: models.EventLanguageUpdate, Data: language})
}

// LeaveRoom 處理明確離開：移除名單成員、廣播更新後的名單、解除綁定，
// 並單獨回一個 leftRoom 確認給離開者，讓它的 UI 不用跟廣播賽跑。
// 未綁定任何房間時是 no-op。
func (e *Engine) LeaveRoom(c *Client) {
	if c.RoomID == "" {
		return
	}
	e.leave(c, true)
}

// Disconnect 處理連線中斷：效果同 LeaveRoom，但沒有確認可送
func (e *Engine) Disconnect(c *Client) {
	if c.RoomID == "" {
		return
	}
	e.leave(c, false)
}

// leave 執行實際的離開流程，ack 控制是否回 leftRoom 確認
// 先解除傳輸綁定再廣播：離開者只收到 leftRoom 確認，不會收到
// 自己離開後的名單
func (e *Engine) leave(c *Client, ack bool) {
	roomID := c.RoomID

	e.unregister(c, roomID)

	participants, err := e.presence.Remove(roomID, c.SocketID)
	if err != nil {
		log.Printf("Failed to remove participant from room %s: %v", roomID, err)
	} else {
		e.broadcast(roomID, models.OutboundEvent{Event: models.EventUserJoined, Data: models.ParticipantNames(participants)})
	}

	c.RoomID = ""
	c.Username = ""

	if ack {
		c.enqueue(models.OutboundEvent{Event: models.EventLeftRoom})
	}
}

// Execute 把文件轉送給外部執行服務，結果廣播給整個房間，
// 讓所有成員看到同一份執行輸出。Runner 保證失敗也回傳 error 形狀的
// 回應，所以每個請求恰好產生一次 codeResponse 廣播。
func (e *Engine) Execute(roomID, code, language, version, input string) {
	result := e.runner.Run(language, version, code, input)
	e.broadcast(roomID, models.OutboundEvent{Event: models.EventCodeResponse, Data: result})
}
