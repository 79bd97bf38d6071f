package notification

import (
	"errors"
	"time"

	"github.com/nao1215/taskhub/pkg/event"
)

// ストア操作のエラー種別。ハンドラがHTTPステータスへ変換する。
var (
	// ErrValidation は必須フィールドが欠けていることを表す。
	ErrValidation = errors.New("必須フィールドがありません")
	// ErrNotFound は指定された通知が存在しないことを表す。
	ErrNotFound = errors.New("通知が見つかりません")
	// ErrNotOwner は通知の所有者以外による操作を表す。
	ErrNotOwner = errors.New("この通知を操作する権限がありません")
)

// Notification はユーザーへのアプリ内通知レコード。
// is_readとread_at以外のフィールドは作成後に変更されない。
type Notification struct {
	// ID は通知の一意識別子（UUID）。ストアが採番する。
	ID string `db:"id"`
	// UserID は通知先のユーザーID。
	UserID string `db:"user_id"`
	// TaskID は関連するタスクのID。タスクに紐づかない通知ではnil。
	TaskID *string `db:"task_id"`
	// Kind は通知イベントの種類。
	Kind event.Kind `db:"kind"`
	// Title は通知のタイトル。
	Title string `db:"title"`
	// Message は通知メッセージ。
	Message string `db:"message"`
	// Priority は通知の優先度ヒント。未設定の場合はnil。
	Priority *string `db:"priority"`
	// IsRead は通知の既読状態。falseからtrueへの一方向にのみ遷移する。
	IsRead bool `db:"is_read"`
	// ReadAt は既読にした日時。未読の間はnil。一度設定されたら変化しない。
	ReadAt *time.Time `db:"read_at"`
	// CreatedAt は通知の作成日時。
	CreatedAt time.Time `db:"created_at"`
}

// Stats はユーザーごとの通知件数の集計。
type Stats struct {
	// Total は通知の総数。
	Total int `db:"total" json:"total_notifications"`
	// Unread は未読通知の数。
	Unread int `db:"unread" json:"unread_notifications"`
	// Read は既読通知の数。
	Read int `db:"read" json:"read_notifications"`
}
