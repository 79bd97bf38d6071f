package notification

import (
	"log"
	"sync"
)

// connBufferSize はライブ接続1本あたりのイベントバッファ数。
// バッファが埋まった接続へのイベントは破棄される（fire-and-forget）。
const connBufferSize = 16

// PushEvent はライブ接続へ配信する1件のイベント。
type PushEvent struct {
	// Name はイベント名（例: "notification_received"）。
	Name string
	// Data はイベントのペイロード。SSEハンドラがJSONとして書き出す。
	Data any
}

// Conn はユーザーが開いている1本のライブ接続を表す。
type Conn struct {
	// userID は接続を開いたユーザーのID。
	userID string
	// ch は配信待ちイベントのバッファ付きチャネル。
	ch chan PushEvent
}

// Events は配信されるイベントの受信チャネルを返す。
// 接続がRegistryから解除されるとチャネルはクローズされる。
func (c *Conn) Events() <-chan PushEvent {
	return c.ch
}

// Registry はユーザーIDと開いているライブ接続の対応を管理する。
// 多数の接続ハンドラから並行して呼ばれるため、全操作はミューテックスで保護する。
// 接続は永続化されず、プロセスの生存期間だけ存在する。
type Registry struct {
	// mu はconnsへの並行アクセスを保護するミューテックス。
	mu sync.RWMutex
	// conns はユーザーIDから接続集合へのマップ。
	conns map[string]map[*Conn]struct{}
}

// NewRegistry は新しい接続レジストリを生成する。
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]map[*Conn]struct{})}
}

// Register は指定ユーザーの新しいライブ接続を登録して返す。
// 1ユーザーが複数の接続を同時に持つことができる。
func (r *Registry) Register(userID string) *Conn {
	conn := &Conn{
		userID: userID,
		ch:     make(chan PushEvent, connBufferSize),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[userID] == nil {
		r.conns[userID] = make(map[*Conn]struct{})
	}
	r.conns[userID][conn] = struct{}{}
	return conn
}

// Unregister は接続を解除し、イベントチャネルをクローズする。
// すでに解除済みの接続に対しては何もしない。
func (r *Registry) Unregister(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[conn.userID]
	if !ok {
		return
	}
	if _, ok := set[conn]; !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(r.conns, conn.userID)
	}
	close(conn.ch)
}

// Broadcast は指定ユーザーの全接続へイベントを配信する。
// 接続が1本もない場合は何もしない（エラーではない）。
// バッファが埋まっている接続へのイベントは破棄し、他の接続への配信は継続する。
// 送信はノンブロッキングなので、読み取りロックを保持したままでもI/O待ちは発生しない。
// Unregisterによるチャネルのクローズは書き込みロック下で行われるため、
// クローズ済みチャネルへの送信は起こらない。
func (r *Registry) Broadcast(userID, name string, data any) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for conn := range r.conns[userID] {
		select {
		case conn.ch <- PushEvent{Name: name, Data: data}:
		default:
			log.Printf("[Registry] 接続バッファが満杯のためイベントを破棄 (user=%s, event=%s)", userID, name)
		}
	}
}

// ConnCount は指定ユーザーが開いている接続数を返す。
func (r *Registry) ConnCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID])
}
