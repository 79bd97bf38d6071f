package notification

import (
	"log"
	"time"
)

// pushEventName はライブ接続へ配信する通知イベントの名前。
const pushEventName = "notification_received"

// Mailer はメール送信を抽象化するインターフェース。pkg/mailerのSMTPMailerが実装する。
type Mailer interface {
	// Enabled はメール送信が設定されているかどうかを返す。
	Enabled() bool
	// Send は指定の宛先にHTML形式のメールを送信する。
	Send(to, subject, htmlBody string) error
}

// Gateway は通知の配信チャネル（ライブ接続プッシュとメール）へのファンアウトを担当する。
// 配信はすべてベストエフォートであり、失敗はログに記録するだけで呼び出し元へは返さない。
// 永続化されたアプリ内通知が唯一の保証された副作用である。
type Gateway struct {
	// registry はライブ接続のレジストリ。
	registry *Registry
	// mailer はメール送信の実装。nilの場合メールは送信されない。
	mailer Mailer
}

// NewGateway は新しい配信ゲートウェイを生成する。
func NewGateway(registry *Registry, mailer Mailer) *Gateway {
	return &Gateway{registry: registry, mailer: mailer}
}

// Push は通知をユーザーの全ライブ接続へ配信する。
// 接続が1本もない場合は何もしない。
func (g *Gateway) Push(userID string, n Notification) {
	g.registry.Broadcast(userID, pushEventName, toPushPayload(n))
}

// Email は指定の宛先へメールを送信する。
// 宛先が空、メーラーが未設定、送信失敗のいずれの場合もエラーを返さず、
// 失敗はログに記録するだけにとどめる。
func (g *Gateway) Email(to, subject, htmlBody string) {
	if to == "" {
		return
	}
	if g.mailer == nil || !g.mailer.Enabled() {
		log.Printf("[Gateway] メール設定がないため送信をスキップ (to=%s)", to)
		return
	}
	if err := g.mailer.Send(to, subject, htmlBody); err != nil {
		log.Printf("[Gateway] メール送信エラー: %v", err)
		return
	}
	log.Printf("[Gateway] メールを送信しました (to=%s)", to)
}

// pushPayload はライブ接続へ配信する通知のJSON構造。
type pushPayload struct {
	// ID は通知の一意識別子。
	ID string `json:"id"`
	// UserID は通知先のユーザーID。
	UserID string `json:"user_id"`
	// TaskID は関連するタスクのID。
	TaskID string `json:"task_id,omitempty"`
	// Kind は通知イベントの種類。
	Kind string `json:"kind"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// Priority は通知の優先度ヒント。
	Priority string `json:"priority,omitempty"`
	// CreatedAt は通知の作成日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
}

// toPushPayload は通知レコードをプッシュ用ペイロードに変換する。
func toPushPayload(n Notification) pushPayload {
	p := pushPayload{
		ID:        n.ID,
		UserID:    n.UserID,
		Kind:      string(n.Kind),
		Title:     n.Title,
		Message:   n.Message,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
	if n.TaskID != nil {
		p.TaskID = *n.TaskID
	}
	if n.Priority != nil {
		p.Priority = *n.Priority
	}
	return p
}
