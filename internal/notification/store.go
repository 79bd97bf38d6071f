package notification

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

	"github.com/nao1215/taskhub/pkg/event"
	"github.com/nao1215/taskhub/pkg/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// defaultPageLimit は一覧取得の1ページあたりのデフォルト件数。
const defaultPageLimit = 10

// OpenDB は通知用SQLiteデータベースを開き、マイグレーションを適用する。
func OpenDB(dbPath string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	// 並行読み取りを許可するためWALモードを有効にする
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("WALモードの有効化に失敗: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("busy_timeoutの設定に失敗: %w", err)
	}

	if err := migration.Run(db, migrationsFS, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return db, nil
}

// Store は通知レコードの永続化を担当する。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sqlx.DB
}

// NewStore は新しい通知ストアを生成する。
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Filter は通知一覧取得の絞り込みとページング条件。
type Filter struct {
	// UnreadOnly がtrueの場合、未読通知のみを返す。
	UnreadOnly bool
	// Kind を指定すると該当する種類の通知のみを返す。空の場合は全種類。
	Kind event.Kind
	// Page は1始まりのページ番号。
	Page int
	// Limit は1ページあたりの件数。
	Limit int
}

// Create は通知を作成し、採番したIDを返す。
// 通知先ユーザーまたはメッセージが空の場合はErrValidationを返す。
func (s *Store) Create(ctx context.Context, n *Notification) (string, error) {
	if n.UserID == "" {
		return "", fmt.Errorf("%w: user_id", ErrValidation)
	}
	if n.Message == "" {
		return "", fmt.Errorf("%w: message", ErrValidation)
	}

	id := uuid.New().String()
	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, task_id, kind, title, message, priority, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		id, n.UserID, n.TaskID, n.Kind, n.Title, n.Message, n.Priority, createdAt,
	)
	if err != nil {
		return "", fmt.Errorf("通知の保存に失敗: %w", err)
	}
	return id, nil
}

// List は指定ユーザーの通知を新しい順に返す。
// 戻り値は（該当ページの通知、絞り込み後の総数、ユーザーの未読総数）。
// 未読総数は絞り込み条件に関係なく、そのユーザーの全通知を対象に数える。
func (s *Store) List(ctx context.Context, userID string, f Filter) ([]Notification, int, int, error) {
	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit < 1 {
		limit = defaultPageLimit
	}

	conds := []string{"user_id = ?"}
	args := []any{userID}
	if f.UnreadOnly {
		conds = append(conds, "is_read = 0")
	}
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, f.Kind)
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM notifications WHERE "+where, args...); err != nil {
		return nil, 0, 0, fmt.Errorf("通知総数の取得に失敗: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT * FROM notifications WHERE %s ORDER BY created_at DESC LIMIT ? OFFSET ?", where)
	listArgs := append(append([]any{}, args...), limit, (page-1)*limit)

	items := []Notification{}
	if err := s.db.SelectContext(ctx, &items, query, listArgs...); err != nil {
		return nil, 0, 0, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}

	var unread int
	if err := s.db.GetContext(ctx, &unread,
		"SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0", userID); err != nil {
		return nil, 0, 0, fmt.Errorf("未読数の取得に失敗: %w", err)
	}

	return items, total, unread, nil
}

// Get は指定IDの通知を返す。存在しない場合はErrNotFoundを返す。
func (s *Store) Get(ctx context.Context, id string) (*Notification, error) {
	var n Notification
	err := s.db.GetContext(ctx, &n, "SELECT * FROM notifications WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("通知の取得に失敗: %w", err)
	}
	return &n, nil
}

// MarkRead は通知を既読にする。
// 所有者以外が操作した場合はErrNotOwnerを返す。すでに既読の場合は何もせず成功する
// （read_atは最初の既読化の時刻のまま保持される）。
func (s *Store) MarkRead(ctx context.Context, id, requesterID string) error {
	n, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != requesterID {
		return ErrNotOwner
	}
	if n.IsRead {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = 1, read_at = ? WHERE id = ? AND is_read = 0",
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("通知の既読処理に失敗: %w", err)
	}
	return nil
}

// MarkAllRead は指定ユーザーの全未読通知を既読にし、更新件数を返す。
// 未読が0件でも成功する。
func (s *Store) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = 1, read_at = ? WHERE user_id = ? AND is_read = 0",
		time.Now().UTC(), userID,
	)
	if err != nil {
		return 0, fmt.Errorf("全通知の既読処理に失敗: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	return affected, nil
}

// Delete は通知を削除する。所有権の検査はMarkReadと同一の契約。
func (s *Store) Delete(ctx context.Context, id, requesterID string) error {
	n, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != requesterID {
		return ErrNotOwner
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM notifications WHERE id = ?", id); err != nil {
		return fmt.Errorf("通知の削除に失敗: %w", err)
	}
	return nil
}

// PurgeOlderThan はcutoffより前に作成された既読通知を削除し、削除件数を返す。
// created_atがcutoffと等しいレコードは削除しない。未読通知は対象外。
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE is_read = 1 AND created_at < ?",
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("古い通知の削除に失敗: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return deleted, nil
}

// CountStats は指定ユーザーの通知件数の集計を返す。
func (s *Store) CountStats(ctx context.Context, userID string) (Stats, error) {
	var stats Stats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN is_read = 0 THEN 1 ELSE 0 END), 0) AS unread,
			COALESCE(SUM(CASE WHEN is_read = 1 THEN 1 ELSE 0 END), 0) AS read
		FROM notifications WHERE user_id = ?`, userID)
	if err != nil {
		return Stats{}, fmt.Errorf("通知統計の取得に失敗: %w", err)
	}
	return stats, nil
}
