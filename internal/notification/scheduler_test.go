package notification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/taskhub/pkg/config"
	"github.com/nao1215/taskhub/pkg/event"
)

// fixedClock はテスト用の固定時刻を返すClock。
type fixedClock struct {
	now time.Time
}

// Now は固定された時刻を返す。
func (c fixedClock) Now() time.Time { return c.now }

// fakeTaskSource はテスト用のTaskSource実装。
// 設定されたタスクをそのまま返し、照会時の引数を記録する。
type fakeTaskSource struct {
	due         []Task
	overdue     []Task
	err         error
	gotStart    time.Time
	gotEnd      time.Time
	gotBefore   time.Time
	dueCalls    int
	overdueCall int
}

// FindDueInWindow は設定された期限前タスクを返す。
func (f *fakeTaskSource) FindDueInWindow(_ context.Context, start, end time.Time) ([]Task, error) {
	f.dueCalls++
	f.gotStart = start
	f.gotEnd = end
	return f.due, f.err
}

// FindOverdue は設定された期限切れタスクを返す。
func (f *fakeTaskSource) FindOverdue(_ context.Context, before time.Time) ([]Task, error) {
	f.overdueCall++
	f.gotBefore = before
	return f.overdue, f.err
}

// recordedEmail はフェイクメーラーが記録した1通のメール。
type recordedEmail struct {
	to      string
	subject string
	body    string
}

// fakeMailer はテスト用のMailer実装。送信を記録するだけで実際には送らない。
type fakeMailer struct {
	enabled bool
	sent    []recordedEmail
}

// Enabled はメール送信が有効かどうかを返す。
func (f *fakeMailer) Enabled() bool { return f.enabled }

// Send は送信内容を記録する。
func (f *fakeMailer) Send(to, subject, htmlBody string) error {
	f.sent = append(f.sent, recordedEmail{to: to, subject: subject, body: htmlBody})
	return nil
}

// setupTestScheduler はインメモリストアとフェイク群でスケジューラーを構築する。
func setupTestScheduler(t *testing.T, now time.Time, source *fakeTaskSource) (*Scheduler, *Store, *Registry, *fakeMailer) {
	t.Helper()

	store := setupTestStore(t)
	registry := NewRegistry()
	mailer := &fakeMailer{enabled: true}
	gateway := NewGateway(registry, mailer)
	s := NewScheduler(store, gateway, source, fixedClock{now: now})
	return s, store, registry, mailer
}

// testTask はテスト用のタスクを生成するヘルパー関数。
func testTask(id, priority string, due time.Time) Task {
	return Task{
		ID:          id,
		Title:       "タスク " + id,
		Description: "説明 " + id,
		Status:      "pending",
		Priority:    priority,
		DueDate:     due,
		Assignee: Assignee{
			ID:    "user-" + id,
			Name:  "担当者 " + id,
			Email: id + "@example.com",
		},
	}
}

// TestRunDueSoonScan は期限前スキャンのテスト。
func TestRunDueSoonScan(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	t.Run("照会範囲は今日の0時から明日の終わりまで", func(t *testing.T) {
		t.Parallel()
		source := &fakeTaskSource{}
		s, _, _, _ := setupTestScheduler(t, now, source)

		if _, err := s.RunDueSoonScan(t.Context()); err != nil {
			t.Fatalf("期限前スキャンに失敗: %v", err)
		}

		wantStart := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
		if !source.gotStart.Equal(wantStart) {
			t.Errorf("start: got %v, want %v", source.gotStart, wantStart)
		}
		wantEnd := time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
		if !source.gotEnd.Equal(wantEnd) {
			t.Errorf("end: got %v, want %v", source.gotEnd, wantEnd)
		}
	})

	t.Run("タスクごとに1件のtask_due通知が生成される", func(t *testing.T) {
		t.Parallel()
		source := &fakeTaskSource{due: []Task{
			testTask("t1", "low", now.Add(24*time.Hour)),
			testTask("t2", "urgent", now.Add(24*time.Hour)),
		}}
		s, store, _, _ := setupTestScheduler(t, now, source)

		count, err := s.RunDueSoonScan(t.Context())
		if err != nil {
			t.Fatalf("期限前スキャンに失敗: %v", err)
		}
		if count != 2 {
			t.Errorf("生成数: got %d, want 2", count)
		}

		items, _, _, err := store.List(t.Context(), "user-t1", Filter{})
		if err != nil {
			t.Fatalf("通知一覧の取得に失敗: %v", err)
		}
		if len(items) != 1 {
			t.Fatalf("件数: got %d, want 1", len(items))
		}
		n := items[0]
		if n.Kind != event.KindTaskDue {
			t.Errorf("kind: got %q, want task_due", n.Kind)
		}
		if n.Title != "Task Due Reminder" {
			t.Errorf("title: got %q, want Task Due Reminder", n.Title)
		}
		if n.TaskID == nil || *n.TaskID != "t1" {
			t.Errorf("task_id: got %v, want t1", n.TaskID)
		}
	})

	t.Run("優先度はurgentのみhighで他はmedium", func(t *testing.T) {
		t.Parallel()
		source := &fakeTaskSource{due: []Task{
			testTask("t1", "urgent", now.Add(24*time.Hour)),
			testTask("t2", "high", now.Add(24*time.Hour)),
			testTask("t3", "low", now.Add(24*time.Hour)),
		}}
		s, store, _, _ := setupTestScheduler(t, now, source)

		if _, err := s.RunDueSoonScan(t.Context()); err != nil {
			t.Fatalf("期限前スキャンに失敗: %v", err)
		}

		wantPriorities := map[string]string{
			"user-t1": event.PriorityHigh,
			"user-t2": event.PriorityMedium,
			"user-t3": event.PriorityMedium,
		}
		for userID, want := range wantPriorities {
			items, _, _, err := store.List(t.Context(), userID, Filter{})
			if err != nil {
				t.Fatalf("通知一覧の取得に失敗: %v", err)
			}
			if len(items) != 1 {
				t.Fatalf("%sの件数: got %d, want 1", userID, len(items))
			}
			if items[0].Priority == nil || *items[0].Priority != want {
				t.Errorf("%sのpriority: got %v, want %q", userID, items[0].Priority, want)
			}
		}
	})

	t.Run("プッシュとリマインドメールが送られる", func(t *testing.T) {
		t.Parallel()
		due := time.Date(2026, 9, 1, 17, 0, 0, 0, time.UTC)
		source := &fakeTaskSource{due: []Task{testTask("t1", "medium", due)}}
		s, _, registry, mailer := setupTestScheduler(t, now, source)

		conn := registry.Register("user-t1")

		if _, err := s.RunDueSoonScan(t.Context()); err != nil {
			t.Fatalf("期限前スキャンに失敗: %v", err)
		}

		select {
		case ev := <-conn.Events():
			if ev.Name != "notification_received" {
				t.Errorf("イベント名: got %q, want notification_received", ev.Name)
			}
		default:
			t.Error("ライブ接続にイベントが届いていません")
		}

		if len(mailer.sent) != 1 {
			t.Fatalf("送信メール数: got %d, want 1", len(mailer.sent))
		}
		email := mailer.sent[0]
		if email.to != "t1@example.com" {
			t.Errorf("宛先: got %q, want t1@example.com", email.to)
		}
		if email.subject != "Task Due Reminder" {
			t.Errorf("件名: got %q, want Task Due Reminder", email.subject)
		}
		if !strings.Contains(email.body, "September 1, 2026") {
			t.Errorf("本文に期限日が含まれていません: %q", email.body)
		}
	})

	t.Run("1件の失敗で他のタスクの処理は止まらない", func(t *testing.T) {
		t.Parallel()
		broken := testTask("t1", "low", now.Add(24*time.Hour))
		// 担当者IDが空の通知は保存に失敗する
		broken.Assignee.ID = ""
		source := &fakeTaskSource{due: []Task{
			broken,
			testTask("t2", "low", now.Add(24*time.Hour)),
		}}
		s, store, _, _ := setupTestScheduler(t, now, source)

		count, err := s.RunDueSoonScan(t.Context())
		if err != nil {
			t.Fatalf("期限前スキャンに失敗: %v", err)
		}
		if count != 1 {
			t.Errorf("生成数: got %d, want 1", count)
		}

		items, _, _, err := store.List(t.Context(), "user-t2", Filter{})
		if err != nil {
			t.Fatalf("通知一覧の取得に失敗: %v", err)
		}
		if len(items) != 1 {
			t.Errorf("後続タスクの通知数: got %d, want 1", len(items))
		}
	})

	t.Run("再実行すると同じタスクへの通知が重複する", func(t *testing.T) {
		t.Parallel()
		source := &fakeTaskSource{due: []Task{testTask("t1", "low", now.Add(24*time.Hour))}}
		s, store, _, _ := setupTestScheduler(t, now, source)

		if _, err := s.RunDueSoonScan(t.Context()); err != nil {
			t.Fatalf("1回目のスキャンに失敗: %v", err)
		}
		if _, err := s.RunDueSoonScan(t.Context()); err != nil {
			t.Fatalf("2回目のスキャンに失敗: %v", err)
		}

		// 重複排除キーは持たないため、再実行のたびに通知が増える
		_, total, _, err := store.List(t.Context(), "user-t1", Filter{})
		if err != nil {
			t.Fatalf("通知一覧の取得に失敗: %v", err)
		}
		if total != 2 {
			t.Errorf("通知総数: got %d, want 2", total)
		}
	})

	t.Run("照会エラーはそのまま返す", func(t *testing.T) {
		t.Parallel()
		source := &fakeTaskSource{err: errors.New("接続できません")}
		s, _, _, _ := setupTestScheduler(t, now, source)

		if _, err := s.RunDueSoonScan(t.Context()); err == nil {
			t.Error("エラーが返っていません")
		}
	})

	t.Run("キャンセル済みコンテキストではアイテム間で中断する", func(t *testing.T) {
		t.Parallel()
		source := &fakeTaskSource{due: []Task{
			testTask("t1", "low", now.Add(24*time.Hour)),
			testTask("t2", "low", now.Add(24*time.Hour)),
		}}
		s, _, _, _ := setupTestScheduler(t, now, source)

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		count, err := s.RunDueSoonScan(ctx)
		if err != nil {
			t.Fatalf("期限前スキャンに失敗: %v", err)
		}
		if count != 0 {
			t.Errorf("生成数: got %d, want 0", count)
		}
	})
}

// TestRunOverdueScan は期限切れスキャンのテスト。
func TestRunOverdueScan(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	t.Run("照会の境界は今日の0時", func(t *testing.T) {
		t.Parallel()
		source := &fakeTaskSource{}
		s, _, _, _ := setupTestScheduler(t, now, source)

		if _, err := s.RunOverdueScan(t.Context()); err != nil {
			t.Fatalf("期限切れスキャンに失敗: %v", err)
		}

		want := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
		if !source.gotBefore.Equal(want) {
			t.Errorf("before: got %v, want %v", source.gotBefore, want)
		}
	})

	t.Run("通知の優先度はタスクの優先度に関係なく常にhigh", func(t *testing.T) {
		t.Parallel()
		source := &fakeTaskSource{overdue: []Task{
			testTask("t1", "low", now.AddDate(0, 0, -3)),
			testTask("t2", "urgent", now.AddDate(0, 0, -1)),
		}}
		s, store, _, _ := setupTestScheduler(t, now, source)

		count, err := s.RunOverdueScan(t.Context())
		if err != nil {
			t.Fatalf("期限切れスキャンに失敗: %v", err)
		}
		if count != 2 {
			t.Errorf("生成数: got %d, want 2", count)
		}

		for _, userID := range []string{"user-t1", "user-t2"} {
			items, _, _, err := store.List(t.Context(), userID, Filter{})
			if err != nil {
				t.Fatalf("通知一覧の取得に失敗: %v", err)
			}
			if len(items) != 1 {
				t.Fatalf("%sの件数: got %d, want 1", userID, len(items))
			}
			n := items[0]
			if n.Kind != event.KindTaskOverdue {
				t.Errorf("kind: got %q, want task_overdue", n.Kind)
			}
			if n.Priority == nil || *n.Priority != event.PriorityHigh {
				t.Errorf("priority: got %v, want high", n.Priority)
			}
		}
	})

	t.Run("メール本文に経過日数が含まれる", func(t *testing.T) {
		t.Parallel()
		source := &fakeTaskSource{overdue: []Task{
			testTask("t1", "medium", now.AddDate(0, 0, -3)),
		}}
		s, _, _, mailer := setupTestScheduler(t, now, source)

		if _, err := s.RunOverdueScan(t.Context()); err != nil {
			t.Fatalf("期限切れスキャンに失敗: %v", err)
		}

		if len(mailer.sent) != 1 {
			t.Fatalf("送信メール数: got %d, want 1", len(mailer.sent))
		}
		if !strings.Contains(mailer.sent[0].body, "3 days") {
			t.Errorf("本文に経過日数が含まれていません: %q", mailer.sent[0].body)
		}
	})
}

// TestRunRetentionSweep は既読通知の削除ジョブのテスト。
func TestRunRetentionSweep(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 31, 2, 0, 0, 0, time.UTC)

	t.Run("30日より古い既読通知だけが削除される", func(t *testing.T) {
		t.Parallel()
		s, store, _, _ := setupTestScheduler(t, now, &fakeTaskSource{})

		oldRead := createTestNotification(t, store, "user-1", event.KindTaskDue, now.AddDate(0, 0, -31))
		oldUnread := createTestNotification(t, store, "user-1", event.KindTaskDue, now.AddDate(0, 0, -31))
		recentRead := createTestNotification(t, store, "user-1", event.KindTaskDue, now.AddDate(0, 0, -10))

		for _, id := range []string{oldRead.ID, recentRead.ID} {
			if err := store.MarkRead(t.Context(), id, "user-1"); err != nil {
				t.Fatalf("既読処理に失敗: %v", err)
			}
		}

		deleted, err := s.RunRetentionSweep(t.Context())
		if err != nil {
			t.Fatalf("既読通知の削除に失敗: %v", err)
		}
		if deleted != 1 {
			t.Errorf("削除件数: got %d, want 1", deleted)
		}

		if _, err := store.Get(t.Context(), oldUnread.ID); err != nil {
			t.Errorf("古い未読通知が削除されています: %v", err)
		}
		if _, err := store.Get(t.Context(), recentRead.ID); err != nil {
			t.Errorf("保持期間内の既読通知が削除されています: %v", err)
		}
		if _, err := store.Get(t.Context(), oldRead.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("古い既読通知が残っています: %v", err)
		}
	})
}

// TestSchedulerStart はcron式の検証とジョブ登録のテスト。
func TestSchedulerStart(t *testing.T) {
	t.Parallel()

	t.Run("正しいcron式で開始と停止ができる", func(t *testing.T) {
		t.Parallel()
		s, _, _, _ := setupTestScheduler(t, time.Now(), &fakeTaskSource{})

		err := s.Start(config.Schedule{
			DueSoon:   "0 9 * * *",
			Overdue:   "0 10 * * *",
			Retention: "0 2 * * 0",
		})
		if err != nil {
			t.Fatalf("スケジューラーの開始に失敗: %v", err)
		}
		s.Stop()
	})

	t.Run("不正なcron式はエラーになる", func(t *testing.T) {
		t.Parallel()
		s, _, _, _ := setupTestScheduler(t, time.Now(), &fakeTaskSource{})

		err := s.Start(config.Schedule{
			DueSoon:   "not-a-cron-spec",
			Overdue:   "0 10 * * *",
			Retention: "0 2 * * 0",
		})
		if err == nil {
			t.Error("エラーが返っていません")
		}
	})

	t.Run("開始していないスケジューラーの停止は何もしない", func(t *testing.T) {
		t.Parallel()
		s, _, _, _ := setupTestScheduler(t, time.Now(), &fakeTaskSource{})
		s.Stop()
	})
}
