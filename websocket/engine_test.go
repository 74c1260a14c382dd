package websocket

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"dev-room/backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- 測試用的記憶體儲存層 ----

type fakeRoomStore struct {
	mu        sync.Mutex
	rooms     map[string]*models.Room
	ensureErr error
	updateErr error
}

func newFakeRoomStore() *fakeRoomStore {
	return &fakeRoomStore{rooms: make(map[string]*models.Room)}
}

func (s *fakeRoomStore) Ensure(roomID string) (*models.Room, error) {
	if s.ensureErr != nil {
		return nil, s.ensureErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		room = &models.Room{RoomID: roomID, Name: roomID, Code: models.DefaultCode, Language: models.DefaultLanguage}
		s.rooms[roomID] = room
	}
	copied := *room
	return &copied, nil
}

func (s *fakeRoomStore) UpdateCode(roomID, code string) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[roomID]; ok {
		room.Code = code
	}
	return nil
}

func (s *fakeRoomStore) UpdateLanguage(roomID, language string) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[roomID]; ok {
		room.Language = language
	}
	return nil
}

func (s *fakeRoomStore) code(roomID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[roomID]; ok {
		return room.Code
	}
	return ""
}

type fakePresence struct {
	mu     sync.Mutex
	lists  map[string][]models.Participant
	addErr error
}

func newFakePresence() *fakePresence {
	return &fakePresence{lists: make(map[string][]models.Participant)}
}

func (s *fakePresence) Add(roomID string, p models.Participant) ([]models.Participant, error) {
	if s.addErr != nil {
		return nil, s.addErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exists := false
	for _, existing := range s.lists[roomID] {
		if existing.SocketID == p.SocketID {
			exists = true
			break
		}
	}
	if !exists {
		s.lists[roomID] = append(s.lists[roomID], p)
	}
	return append([]models.Participant(nil), s.lists[roomID]...), nil
}

func (s *fakePresence) Remove(roomID, socketID string) ([]models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]models.Participant, 0, len(s.lists[roomID]))
	for _, existing := range s.lists[roomID] {
		if existing.SocketID != socketID {
			kept = append(kept, existing)
		}
	}
	s.lists[roomID] = kept
	return append([]models.Participant(nil), kept...), nil
}

func (s *fakePresence) names(roomID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.ParticipantNames(s.lists[roomID])
}

type fakeAccounts struct {
	mu      sync.Mutex
	visited map[string][]string
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{visited: make(map[string][]string)}
}

func (s *fakeAccounts) AddRoom(email, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.visited[email] {
		if existing == roomID {
			return nil
		}
	}
	s.visited[email] = append(s.visited[email], roomID)
	return nil
}

type fakeRunner struct {
	mu     sync.Mutex
	result interface{}
	calls  int
}

func (r *fakeRunner) Run(language, version, code, input string) interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.result
}

// ---- 測試輔助 ----

func newTestEngine() (*Engine, *fakeRoomStore, *fakePresence, *fakeAccounts, *fakeRunner) {
	store := newFakeRoomStore()
	presence := newFakePresence()
	accounts := newFakeAccounts()
	runner := &fakeRunner{result: map[string]string{"output": "ok"}}
	return NewEngine(store, presence, accounts, runner), store, presence, accounts, runner
}

func newTestClient(e *Engine, id string) *Client {
	return &Client{
		engine:   e,
		send:     make(chan models.OutboundEvent, 32),
		SocketID: id,
	}
}

// drain 取出客戶端目前收到的所有事件
func drain(c *Client) []models.OutboundEvent {
	var events []models.OutboundEvent
	for {
		select {
		case evt := <-c.send:
			events = append(events, evt)
		default:
			return events
		}
	}
}

// ---- 測試 ----

func TestJoinSyncsJoinerWithAuthoritativeState(t *testing.T) {
	engine, _, presence, _, _ := newTestEngine()
	a := newTestClient(engine, "sock-a")

	engine.Join(a, "r1", "Alice", "")

	events := drain(a)
	require.Len(t, events, 3, "加入者應收到名單廣播與針對性的文件、語言同步")
	assert.Equal(t, models.EventUserJoined, events[0].Event)
	assert.Equal(t, []string{"Alice"}, events[0].Data, "名單廣播應包含加入者自己")
	assert.Equal(t, models.EventCodeUpdate, events[1].Event)
	assert.Equal(t, models.DefaultCode, events[1].Data, "新房間應送出預設文件內容")
	assert.Equal(t, models.EventLanguageUpdate, events[2].Event)
	assert.Equal(t, models.DefaultLanguage, events[2].Data)

	assert.Equal(t, "r1", a.RoomID, "會話應綁定到房間")
	assert.Equal(t, "Alice", a.Username)
	assert.Equal(t, []string{"Alice"}, presence.names("r1"))
}

func TestJoinWithBlankNameIsIgnored(t *testing.T) {
	engine, _, presence, _, _ := newTestEngine()
	a := newTestClient(engine, "sock-a")

	engine.Join(a, "r1", "   ", "")

	assert.Empty(t, drain(a), "格式錯誤的 join 不應產生任何事件")
	assert.Empty(t, presence.names("r1"), "名單不應有任何成員")
	assert.Equal(t, "", a.RoomID, "會話不應被綁定")
}

func TestJoinIsIdempotentPerConnection(t *testing.T) {
	engine, _, presence, _, _ := newTestEngine()
	a := newTestClient(engine, "sock-a")

	engine.Join(a, "r1", "Alice", "")
	engine.Join(a, "r1", "Alice", "")

	assert.Equal(t, []string{"Alice"}, presence.names("r1"), "同一條連線重複 join 不應產生重複成員")
}

func TestJoinDeliversLatestCodeToNewJoiner(t *testing.T) {
	engine, _, _, _, _ := newTestEngine()
	a := newTestClient(engine, "sock-a")
	b := newTestClient(engine, "sock-b")

	engine.Join(a, "r1", "Alice", "")
	engine.CodeChange(a, "r1", "print(1)")

	engine.Join(b, "r1", "Bob", "")

	events := drain(b)
	require.Len(t, events, 3)
	assert.Equal(t, models.EventCodeUpdate, events[1].Event)
	assert.Equal(t, "print(1)", events[1].Data, "新加入者應拿到最新寫入的文件內容")
}

func TestJoinRecordsVisitedRoomForAccount(t *testing.T) {
	engine, _, _, accounts, _ := newTestEngine()
	a := newTestClient(engine, "sock-a")

	engine.Join(a, "r1", "Alice", "alice@example.com")
	engine.Join(a, "r1", "Alice", "alice@example.com")

	assert.Equal(t, []string{"r1"}, accounts.visited["alice@example.com"], "造訪列表只追加一次")
}

func TestJoinToSecondRoomLeavesFirst(t *testing.T) {
	engine, _, presence, _, _ := newTestEngine()
	a := newTestClient(engine, "sock-a")
	b := newTestClient(engine, "sock-b")

	engine.Join(a, "r1", "Alice", "")
	engine.Join(b, "r1", "Bob", "")
	drain(a)
	drain(b)

	engine.Join(a, "r2", "Alice", "")

	assert.Equal(t, []string{"Bob"}, presence.names("r1"), "舊房間的名單不應殘留這條連線")
	assert.Equal(t, []string{"Alice"}, presence.names("r2"))
	assert.Equal(t, "r2", a.RoomID)

	events := drain(b)
	require.Len(t, events, 1, "舊房間的成員應收到更新後的名單")
	assert.Equal(t, models.EventUserJoined, events[0].Event)
	assert.Equal(t, []string{"Bob"}, events[0].Data)
}

func TestJoinAbortsWhenRoomStoreFails(t *testing.T) {
	engine, store, presence, _, _ := newTestEngine()
	store.ensureErr = errors.New("mongo down")
	a := newTestClient(engine, "sock-a")

	engine.Join(a, "r1", "Alice", "")

	assert.Empty(t, drain(a))
	assert.Empty(t, presence.names("r1"))
	assert.Equal(t, "", a.RoomID)
	engine.mu.RLock()
	assert.Empty(t, engine.rooms, "儲存層失敗後不應留下傳輸綁定")
	engine.mu.RUnlock()
}

func TestJoinRollsBackRegistrationWhenPresenceFails(t *testing.T) {
	engine, _, presence, _, _ := newTestEngine()
	presence.addErr = errors.New("redis down")
	a := newTestClient(engine, "sock-a")

	engine.Join(a, "r1", "Alice", "")

	assert.Empty(t, drain(a))
	assert.Equal(t, "", a.RoomID)
	engine.mu.RLock()
	assert.Empty(t, engine.rooms, "名單寫入失敗後傳輸綁定應退掉")
	engine.mu.RUnlock()
}

func TestRejoinKeepsMembershipWhenPresenceFails(t *testing.T) {
	engine, _, presence, _, _ := newTestEngine()
	a := newTestClient(engine, "sock-a")
	b := newTestClient(engine, "sock-b")

	engine.Join(a, "r1", "Alice", "")
	drain(a)

	// 已經在房間裡的連線重複 join，碰上名單寫入失敗
	presence.addErr = errors.New("redis down")
	engine.Join(a, "r1", "Alice", "")

	assert.Empty(t, drain(a), "失敗的重複 join 不應產生事件")
	assert.Equal(t, "r1", a.RoomID, "先前事件建立的綁定應保持原狀")
	assert.Equal(t, []string{"Alice"}, presence.names("r1"))

	// 連線必須還在傳輸群組裡，後續廣播照常送達
	presence.addErr = nil
	engine.Join(b, "r1", "Bob", "")

	events := drain(a)
	require.Len(t, events, 1, "重複 join 失敗後不能變成收不到廣播的成員")
	assert.Equal(t, models.EventUserJoined, events[0].Event)
	assert.Equal(t, []string{"Alice", "Bob"}, events[0].Data)
}

func TestJoinKeepsOldRoomWhenNewRoomStoreFails(t *testing.T) {
	engine, store, presence, _, _ := newTestEngine()
	a := newTestClient(engine, "sock-a")
	b := newTestClient(engine, "sock-b")

	engine.Join(a, "r1", "Alice", "")
	engine.Join(b, "r1", "Bob", "")
	drain(a)
	drain(b)

	// 換到新房間時儲存層失敗，不應先把舊房間的狀態拆掉
	store.ensureErr = errors.New("mongo down")
	engine.Join(a, "r2", "Alice", "")

	assert.Empty(t, drain(a))
	assert.Equal(t, "r1", a.RoomID, "換房失敗時應留在舊房間")
	assert.Equal(t, []string{"Alice", "Bob"}, presence.names("r1"), "舊房間的名單應保持原狀")
	assert.Empty(t, drain(b), "舊房間不應收到離開廣播")

	// 舊房間的廣播仍然送得到
	store.ensureErr = nil
	engine.CodeChange(b, "r1", "print(2)")

	events := drain(a)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventCodeUpdate, events[0].Event)
	assert.Equal(t, "print(2)", events[0].Data)
}

func TestCodeChangeBroadcastsToOthersOnly(t *testing.T) {
	engine, store, _, _, _ := newTestEngine()
	a := newTestClient(engine, "sock-a")
	b := newTestClient(engine, "sock-b")

	engine.Join(a, "r1", "Alice", "")
	engine.Join(b, "r1", "Bob", "")
	drain(a)
	drain(b)

	engine.CodeChange(a, "r1", "print(1)")

	assert.Equal(t, "print(1)", store.code("r1"), "文件內容應被覆寫")
	assert.Empty(t, drain(a), "codeChange 不應回音給發送者")

	events := drain(b)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventCodeUpdate, events[0].Event)
	assert.Equal(t, "print(1)", events[0].Data)
}

func TestCodeChangeForUnboundRoomIsDropped(t *testing.T) {
	engine, store, _, _, _ := newTestEngine()
	a := newTestClient(engine, "sock-a")
	b := newTestClient(engine, "sock-b")

	engine.Join(a, "r1", "Alice", "")
	engine.Join(b, "r2", "Bob", "")
	drain(a)
	drain(b)

	// A 綁定在 r1，卻對 r2 送出編輯
	engine.CodeChange(a, "r2", "hacked")

	assert.Equal(t, models.DefaultCode, store.code("r2"), "未綁定房間的編輯不應寫入")
	assert.Empty(t, drain(b))

	unbound := newTestClient(engine, "sock-c")
	engine.CodeChange(unbound, "r1", "hacked")
	assert.Equal(t, models.DefaultCode, store.code("r1"))
}

func TestTypingIsRelayedToOthersOnly(t *testing.T) {
	engine, _, _, _, _ := newTestEngine()
	a := newTestClient(engine, "sock-a")
	b := newTestClient(engine, "sock-b")

	engine.Join(a, "r1", "Alice", "")
	engine.Join(b, "r1", "Bob", "")
	drain(a)
	drain(b)

	engine.Typing(a, "r1", "Alice")

	assert.Empty(t, drain(a))
	events := drain(b)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventUserTyping, events[0].Event)
	assert.Equal(t, "Alice", events[0].Data)
}

func TestLanguageChangeBroadcastsToAllAndPersists(t *testing.T) {
	engine, _, _, _, _ := newTestEngine()
	a := newTestClient(engine, "sock-a")
	b := newTestClient(engine, "sock-b")

	engine.Join(a, "r1", "Alice", "")
	engine.Join(b, "r1", "Bob", "")
	drain(a)
	drain(b)

	engine.LanguageChange(a, "r1", "python")

	for _, c := range []*Client{a, b} {
		events := drain(c)
		require.Len(t, events, 1, "languageUpdate 應廣播給包含發送者的所有連線")
		assert.Equal(t, models.EventLanguageUpdate, events[0].Event)
		assert.Equal(t, "python", events[0].Data)
	}

	// 之後的加入者應拿到持久化的語言
	joiner := newTestClient(engine, "sock-c")
	engine.Join(joiner, "r1", "Carol", "")
	events := drain(joiner)
	require.Len(t, events, 3)
	assert.Equal(t, "python", events[2].Data)
}

func TestLeaveRoomSendsAckAndUpdatesRoom(t *testing.T) {
	engine, _, presence, _, _ := newTestEngine()
	a := newTestClient(engine, "sock-a")
	b := newTestClient(engine, "sock-b")

	engine.Join(a, "r1", "Alice", "")
	engine.Join(b, "r1", "Bob", "")
	drain(a)
	drain(b)

	engine.LeaveRoom(b)

	events := drain(b)
	require.Len(t, events, 1, "離開者應只收到 leftRoom 確認，不收到名單廣播")
	assert.Equal(t, models.EventLeftRoom, events[0].Event)
	assert.Equal(t, "", b.RoomID, "離開後會話應解除綁定")

	remaining := drain(a)
	require.Len(t, remaining, 1)
	assert.Equal(t, models.EventUserJoined, remaining[0].Event)
	assert.Equal(t, []string{"Alice"}, remaining[0].Data)
	assert.Equal(t, []string{"Alice"}, presence.names("r1"))
}

func TestDisconnectRemovesParticipantWithoutAck(t *testing.T) {
	engine, _, presence, _, _ := newTestEngine()
	a := newTestClient(engine, "sock-a")
	b := newTestClient(engine, "sock-b")

	engine.Join(a, "r1", "Alice", "")
	engine.Join(b, "r1", "Bob", "")
	drain(a)
	drain(b)

	engine.Disconnect(b)

	assert.Empty(t, drain(b), "連線中斷沒有確認可送")
	remaining := drain(a)
	require.Len(t, remaining, 1)
	assert.Equal(t, []string{"Alice"}, remaining[0].Data)
	assert.Equal(t, []string{"Alice"}, presence.names("r1"))
}

func TestLeaveAndDisconnectAreNoopsWhenUnbound(t *testing.T) {
	engine, _, presence, _, _ := newTestEngine()
	a := newTestClient(engine, "sock-a")

	engine.LeaveRoom(a)
	engine.Disconnect(a)

	assert.Empty(t, drain(a), "未綁定的會話離開不應產生任何事件")
	assert.Empty(t, presence.lists, "不應有任何名單被動到")
}

func TestExecuteBroadcastsExactlyOneResponse(t *testing.T) {
	engine, _, _, _, runner := newTestEngine()
	a := newTestClient(engine, "sock-a")
	b := newTestClient(engine, "sock-b")

	engine.Join(a, "r1", "Alice", "")
	engine.Join(b, "r1", "Bob", "")
	drain(a)
	drain(b)

	engine.Execute("r1", "print(1)", "python", "*", "")

	assert.Equal(t, 1, runner.calls)
	for _, c := range []*Client{a, b} {
		events := drain(c)
		require.Len(t, events, 1, "執行結果應廣播給整個房間，每個請求恰好一次")
		assert.Equal(t, models.EventCodeResponse, events[0].Event)
	}
}

func TestExecuteFailureStillProducesOneResponse(t *testing.T) {
	engine, _, _, _, runner := newTestEngine()
	runner.result = map[string]map[string]string{"run": {"output": "Error: execution timed out"}}
	a := newTestClient(engine, "sock-a")

	engine.Join(a, "r1", "Alice", "")
	drain(a)

	engine.Execute("r1", "while(1){}", "javascript", "*", "")

	events := drain(a)
	require.Len(t, events, 1, "失敗也必須走同一條回應通道，不能掉事件")
	assert.Equal(t, models.EventCodeResponse, events[0].Event)
	assert.Equal(t, runner.result, events[0].Data)
}

func TestConcurrentJoinsAndLeavesKeepExactMembership(t *testing.T) {
	engine, _, presence, _, _ := newTestEngine()

	const total = 32
	clients := make([]*Client, total)
	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		clients[i] = newTestClient(engine, fmt.Sprintf("sock-%d", i))
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			engine.Join(clients[i], "r1", fmt.Sprintf("user-%d", i), "")
		}(i)
	}
	wg.Wait()

	assert.Len(t, presence.names("r1"), total, "並發加入不應互相覆蓋")

	// 偶數的連線離開，名單應恰好剩下還在的成員
	for i := 0; i < total; i += 2 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			engine.LeaveRoom(clients[i])
		}(i)
	}
	wg.Wait()

	names := presence.names("r1")
	assert.Len(t, names, total/2)
	for i := 1; i < total; i += 2 {
		assert.Contains(t, names, fmt.Sprintf("user-%d", i))
	}
}

// 對應前端的完整情境：Alice 加入、Bob 加入、Alice 編輯、Bob 斷線
func TestFullRoomLifecycleScenario(t *testing.T) {
	engine, _, _, _, _ := newTestEngine()
	a := newTestClient(engine, "sock-a")
	b := newTestClient(engine, "sock-b")

	engine.Join(a, "r1", "Alice", "")
	events := drain(a)
	require.Len(t, events, 3)
	assert.Equal(t, []string{"Alice"}, events[0].Data)
	assert.Equal(t, models.DefaultCode, events[1].Data)

	engine.Join(b, "r1", "Bob", "")
	assert.Equal(t, []string{"Alice", "Bob"}, drain(a)[0].Data, "既有成員應收到含新成員的完整名單")
	assert.Equal(t, []string{"Alice", "Bob"}, drain(b)[0].Data, "名單順序應為加入順序")

	engine.CodeChange(a, "r1", "print(1)")
	assert.Empty(t, drain(a))
	bEvents := drain(b)
	require.Len(t, bEvents, 1)
	assert.Equal(t, "print(1)", bEvents[0].Data)

	engine.Disconnect(b)
	aEvents := drain(a)
	require.Len(t, aEvents, 1)
	assert.Equal(t, []string{"Alice"}, aEvents[0].Data)
}
