// Package event はタスクの状態変化から生じる通知イベントの語彙を定義する。
// tasksサービス（ミューテーションフック）とnotificationサービスの両方が参照する。
package event

// Kind は通知イベントの種類を表す。
type Kind string

const (
	// KindTaskAssigned はタスクが新しくアサインされたことを表す。
	KindTaskAssigned Kind = "task_assigned"
	// KindTaskDue はタスクの期限が近いことを表す。
	KindTaskDue Kind = "task_due"
	// KindTaskCompleted はタスクが完了したことを表す。
	KindTaskCompleted Kind = "task_completed"
	// KindTaskOverdue はタスクが期限切れであることを表す。
	KindTaskOverdue Kind = "task_overdue"
	// KindTaskCommented はタスクにコメントが追加されたことを表す。
	KindTaskCommented Kind = "task_commented"
)

// 通知の優先度。タスクの優先度とは独立したヒントであり、未設定でもよい。
const (
	// PriorityMedium は通常の優先度。
	PriorityMedium = "medium"
	// PriorityHigh は高優先度。期限切れ通知では常にこの値になる。
	PriorityHigh = "high"
)

// SendRequest はnotificationサービスの内部送信APIに渡すペイロード。
// kindとタスクの文脈を渡し、本文のレンダリングはnotificationサービス側で行う。
type SendRequest struct {
	// UserID は通知先のユーザーID。
	UserID string `json:"user_id"`
	// TaskID は関連するタスクのID。タスクに紐づかない通知では空。
	TaskID string `json:"task_id,omitempty"`
	// Kind は通知イベントの種類。
	Kind Kind `json:"kind"`
	// TaskTitle はレンダリングに使うタスクのタイトル。
	TaskTitle string `json:"task_title"`
	// ActorName はイベントを起こしたユーザーの表示名。
	ActorName string `json:"actor_name,omitempty"`
	// Priority は通知の優先度ヒント。空の場合は優先度なしとして保存される。
	Priority string `json:"priority,omitempty"`
	// EmailTo はメール通知の宛先。空の場合メールは送信されない。
	EmailTo string `json:"email_to,omitempty"`
	// EmailSubject はメールの件名。空の場合は通知タイトルが使われる。
	EmailSubject string `json:"email_subject,omitempty"`
	// EmailHTML はメールのHTML本文。空の場合は通知メッセージから生成される。
	EmailHTML string `json:"email_html,omitempty"`
}
