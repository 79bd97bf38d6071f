package tasks

import (
	"errors"
	"time"
)

// タスクの状態。
const (
	// StatusPending は未着手のタスクを表す。
	StatusPending = "pending"
	// StatusInProgress は作業中のタスクを表す。
	StatusInProgress = "in-progress"
	// StatusCompleted は完了したタスクを表す。
	StatusCompleted = "completed"
	// StatusCancelled はキャンセルされたタスクを表す。
	StatusCancelled = "cancelled"
)

// ストア操作のエラー種別。
var (
	// ErrTaskNotFound は指定されたタスクが存在しない（または削除済み）ことを表す。
	ErrTaskNotFound = errors.New("タスクが見つかりません")
	// ErrUserNotFound は指定されたユーザーが存在しないことを表す。
	ErrUserNotFound = errors.New("ユーザーが見つかりません")
)

// validStatuses は受け付けるタスク状態の集合。
var validStatuses = map[string]struct{}{
	StatusPending:    {},
	StatusInProgress: {},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// ValidStatus は指定された文字列が有効なタスク状態かどうかを返す。
func ValidStatus(s string) bool {
	_, ok := validStatuses[s]
	return ok
}

// User はタスクの担当者・作成者の識別情報。
// 認証サービスが管理するユーザーの読み取りレプリカであり、通知の宛先解決に使用する。
type User struct {
	// ID はユーザーの一意識別子。
	ID string `db:"id"`
	// Name はユーザーの表示名。
	Name string `db:"name"`
	// Email はユーザーのメールアドレス。
	Email string `db:"email"`
	// CreatedAt はレコードの作成日時。
	CreatedAt time.Time `db:"created_at"`
}

// Task はタスクレコード。
type Task struct {
	// ID はタスクの一意識別子（UUID）。
	ID string `db:"id"`
	// Title はタスクのタイトル。
	Title string `db:"title"`
	// Description はタスクの説明。
	Description string `db:"description"`
	// Status はタスクの状態。
	Status string `db:"status"`
	// Priority はタスクの優先度。
	Priority string `db:"priority"`
	// Category はタスクのカテゴリ。
	Category string `db:"category"`
	// AssignedTo は担当者のユーザーID。
	AssignedTo string `db:"assigned_to"`
	// AssignedBy はアサインしたユーザーのID。
	AssignedBy string `db:"assigned_by"`
	// DueDate はタスクの期限。
	DueDate time.Time `db:"due_date"`
	// CompletedAt は完了日時。未完了の間はnil。
	CompletedAt *time.Time `db:"completed_at"`
	// Project は所属プロジェクト名。未設定の場合はnil。
	Project *string `db:"project"`
	// IsDeleted は論理削除フラグ。削除済みタスクは存在しないものとして扱う。
	IsDeleted bool `db:"is_deleted"`
	// CreatedAt はレコードの作成日時。
	CreatedAt time.Time `db:"created_at"`
	// UpdatedAt はレコードの更新日時。
	UpdatedAt time.Time `db:"updated_at"`
}

// Comment はタスクへのコメント。
type Comment struct {
	// ID はコメントの一意識別子（UUID）。
	ID string `db:"id"`
	// TaskID はコメント先のタスクID。
	TaskID string `db:"task_id"`
	// UserID はコメントしたユーザーのID。
	UserID string `db:"user_id"`
	// Comment はコメント本文。
	Comment string `db:"comment"`
	// CreatedAt はコメントの作成日時。
	CreatedAt time.Time `db:"created_at"`
}

// DueTask はスケジューラー照会用の、担当者情報を解決済みのタスクビュー。
type DueTask struct {
	// ID はタスクの一意識別子。
	ID string `db:"id"`
	// Title はタスクのタイトル。
	Title string `db:"title"`
	// Description はタスクの説明。
	Description string `db:"description"`
	// Status はタスクの状態。
	Status string `db:"status"`
	// Priority はタスクの優先度。
	Priority string `db:"priority"`
	// DueDate はタスクの期限。
	DueDate time.Time `db:"due_date"`
	// AssigneeID は担当者のユーザーID。
	AssigneeID string `db:"assignee_id"`
	// AssigneeName は担当者の表示名。
	AssigneeName string `db:"assignee_name"`
	// AssigneeEmail は担当者のメールアドレス。
	AssigneeEmail string `db:"assignee_email"`
}

// TaskStats はタスク件数の集計。
type TaskStats struct {
	// Total はタスクの総数。
	Total int `db:"total" json:"total_tasks"`
	// Pending は未着手タスクの数。
	Pending int `db:"pending" json:"pending_tasks"`
	// InProgress は作業中タスクの数。
	InProgress int `db:"in_progress" json:"in_progress_tasks"`
	// Completed は完了タスクの数。
	Completed int `db:"completed" json:"completed_tasks"`
	// Overdue は期限切れの未完了タスクの数。
	Overdue int `db:"overdue" json:"overdue_tasks"`
}
