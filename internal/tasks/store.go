package tasks

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nao1215/taskhub/pkg/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// defaultPageLimit は一覧取得の1ページあたりのデフォルト件数。
const defaultPageLimit = 10

// OpenDB はタスク用SQLiteデータベースを開き、マイグレーションを適用する。
func OpenDB(dbPath string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("WALモードの有効化に失敗: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("busy_timeoutの設定に失敗: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("外部キー制約の有効化に失敗: %w", err)
	}

	if err := migration.Run(db, migrationsFS, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return db, nil
}

// Store はタスク・ユーザー・コメントの永続化を担当する。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sqlx.DB
}

// NewStore は新しいタスクストアを生成する。
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// UpsertUser はユーザーの識別情報を登録または更新する。
func (s *Store) UpsertUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email`,
		u.ID, u.Name, u.Email, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("ユーザーの保存に失敗: %w", err)
	}
	return nil
}

// GetUser は指定IDのユーザーを返す。存在しない場合はErrUserNotFoundを返す。
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	return &u, nil
}

// CreateTask はタスクを作成し、採番したIDを返す。
func (s *Store) CreateTask(ctx context.Context, t *Task) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, status, priority, category,
			assigned_to, assigned_by, due_date, project, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		id, t.Title, t.Description, t.Status, t.Priority, t.Category,
		t.AssignedTo, t.AssignedBy, t.DueDate.UTC(), t.Project, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("タスクの保存に失敗: %w", err)
	}
	return id, nil
}

// GetTask は指定IDのタスクを返す。削除済みまたは存在しない場合はErrTaskNotFoundを返す。
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	var t Task
	err := s.db.GetContext(ctx, &t, "SELECT * FROM tasks WHERE id = ? AND is_deleted = 0", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗: %w", err)
	}
	return &t, nil
}

// TaskFilter はタスク一覧取得の絞り込みとページング条件。
type TaskFilter struct {
	// Status を指定すると該当する状態のタスクのみを返す。
	Status string
	// Priority を指定すると該当する優先度のタスクのみを返す。
	Priority string
	// AssignedTo を指定すると該当ユーザーが担当のタスクのみを返す。
	AssignedTo string
	// Page は1始まりのページ番号。
	Page int
	// Limit は1ページあたりの件数。
	Limit int
}

// ListTasks は削除されていないタスクを新しい順に返す。
// 戻り値は（該当ページのタスク、絞り込み後の総数）。
func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]Task, int, error) {
	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit < 1 {
		limit = defaultPageLimit
	}

	conds := []string{"is_deleted = 0"}
	args := []any{}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		conds = append(conds, "priority = ?")
		args = append(args, f.Priority)
	}
	if f.AssignedTo != "" {
		conds = append(conds, "assigned_to = ?")
		args = append(args, f.AssignedTo)
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM tasks WHERE "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("タスク総数の取得に失敗: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT * FROM tasks WHERE %s ORDER BY created_at DESC LIMIT ? OFFSET ?", where)
	listArgs := append(append([]any{}, args...), limit, (page-1)*limit)

	tasks := []Task{}
	if err := s.db.SelectContext(ctx, &tasks, query, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("タスク一覧の取得に失敗: %w", err)
	}
	return tasks, total, nil
}

// UpdateTask はタスクの可変フィールドを更新する。
// 状態がcompletedに変わる場合、completed_atは呼び出し側が設定したものを保存する。
func (s *Store) UpdateTask(ctx context.Context, t *Task) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, status = ?, priority = ?,
			category = ?, due_date = ?, project = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND is_deleted = 0`,
		t.Title, t.Description, t.Status, t.Priority,
		t.Category, t.DueDate.UTC(), t.Project, t.CompletedAt, time.Now().UTC(),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("タスクの更新に失敗: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if affected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// SoftDeleteTask はタスクを論理削除する。削除後のタスクはスキャン対象から外れる。
func (s *Store) SoftDeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET is_deleted = 1, updated_at = ? WHERE id = ? AND is_deleted = 0",
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("タスクの削除に失敗: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if affected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// AddComment はタスクにコメントを追加し、採番したIDを返す。
func (s *Store) AddComment(ctx context.Context, c *Comment) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_comments (id, task_id, user_id, comment, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, c.TaskID, c.UserID, c.Comment, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("コメントの保存に失敗: %w", err)
	}
	return id, nil
}

// ListComments は指定タスクのコメントを古い順に返す。
func (s *Store) ListComments(ctx context.Context, taskID string) ([]Comment, error) {
	comments := []Comment{}
	err := s.db.SelectContext(ctx, &comments,
		"SELECT * FROM task_comments WHERE task_id = ? ORDER BY created_at ASC", taskID)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗: %w", err)
	}
	return comments, nil
}

// dueTaskColumns はスケジューラー照会で返す列。担当者情報をusersテーブルから解決する。
const dueTaskColumns = `
	t.id, t.title, t.description, t.status, t.priority, t.due_date,
	u.id AS assignee_id, u.name AS assignee_name, u.email AS assignee_email
	FROM tasks t JOIN users u ON u.id = t.assigned_to`

// FindDueInWindow は期限が[start, end]の範囲にある未完了・未削除のタスクを返す。
// 境界値（期限がstartまたはendと一致）は範囲に含まれる。
func (s *Store) FindDueInWindow(ctx context.Context, start, end time.Time) ([]DueTask, error) {
	tasks := []DueTask{}
	err := s.db.SelectContext(ctx, &tasks, `
		SELECT`+dueTaskColumns+`
		WHERE t.is_deleted = 0 AND t.status != ?
			AND t.due_date >= ? AND t.due_date <= ?
		ORDER BY t.due_date ASC`,
		StatusCompleted, start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("期限内タスクの照会に失敗: %w", err)
	}
	return tasks, nil
}

// FindOverdue は期限がbeforeより前の未完了・未削除のタスクを返す。
func (s *Store) FindOverdue(ctx context.Context, before time.Time) ([]DueTask, error) {
	tasks := []DueTask{}
	err := s.db.SelectContext(ctx, &tasks, `
		SELECT`+dueTaskColumns+`
		WHERE t.is_deleted = 0 AND t.status != ? AND t.due_date < ?
		ORDER BY t.due_date ASC`,
		StatusCompleted, before.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("期限切れタスクの照会に失敗: %w", err)
	}
	return tasks, nil
}

// CountStats は削除されていないタスクの件数集計を返す。
func (s *Store) CountStats(ctx context.Context) (TaskStats, error) {
	var stats TaskStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0) AS pending,
			COALESCE(SUM(CASE WHEN status = 'in-progress' THEN 1 ELSE 0 END), 0) AS in_progress,
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0) AS completed,
			COALESCE(SUM(CASE WHEN due_date < ? AND status != 'completed' THEN 1 ELSE 0 END), 0) AS overdue
		FROM tasks WHERE is_deleted = 0`, time.Now().UTC())
	if err != nil {
		return TaskStats{}, fmt.Errorf("タスク統計の取得に失敗: %w", err)
	}
	return stats, nil
}
