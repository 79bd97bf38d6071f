package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nao1215/taskhub/pkg/config"
	"github.com/nao1215/taskhub/pkg/event"
)

// retentionDays は既読通知を保持する日数。これより古い既読通知は削除される。
const retentionDays = 30

// Clock は現在時刻の取得を抽象化する。テストでは固定時刻を注入する。
type Clock interface {
	// Now は現在時刻を返す。
	Now() time.Time
}

// systemClock はClockの本番実装。
type systemClock struct{}

// Now は現在時刻を返す。
func (systemClock) Now() time.Time { return time.Now() }

// SystemClock はシステム時刻を返すClockを返す。
func SystemClock() Clock { return systemClock{} }

// Task はスケジューラーが参照するタスクの読み取り専用ビュー。
// 担当者の表示名とメールアドレスは解決済みの状態で渡される。
type Task struct {
	// ID はタスクの一意識別子。
	ID string `json:"id"`
	// Title はタスクのタイトル。
	Title string `json:"title"`
	// Description はタスクの説明。
	Description string `json:"description"`
	// Status はタスクの状態。
	Status string `json:"status"`
	// Priority はタスクの優先度（low/medium/high/urgent）。
	Priority string `json:"priority"`
	// DueDate はタスクの期限。
	DueDate time.Time `json:"due_date"`
	// Assignee はタスクの担当者。
	Assignee Assignee `json:"assignee"`
}

// Assignee はタスク担当者の識別情報。
type Assignee struct {
	// ID は担当者のユーザーID。
	ID string `json:"id"`
	// Name は担当者の表示名。
	Name string `json:"name"`
	// Email は担当者のメールアドレス。
	Email string `json:"email"`
}

// TaskSource はスケジューラーが照会するタスクの読み取りインターフェース。
// 実装は削除済みタスクと完了済みタスクを除外して返さなければならない。
type TaskSource interface {
	// FindDueInWindow は期限が[start, end]の範囲にあるタスクを返す。
	FindDueInWindow(ctx context.Context, start, end time.Time) ([]Task, error)
	// FindOverdue は期限がbeforeより前のタスクを返す。
	FindOverdue(ctx context.Context, before time.Time) ([]Task, error)
}

// Scheduler は3つの定期ジョブ（期限前スキャン、期限切れスキャン、既読通知の削除）を駆動する。
// 各ジョブは独立しており、同一ジョブの再実行に対して重複通知を許容する
// （at-least-once配信。重複排除キーは持たない）。
type Scheduler struct {
	// store は通知ストア。
	store *Store
	// gateway は配信ゲートウェイ。
	gateway *Gateway
	// tasks はタスクの照会元。
	tasks TaskSource
	// clock は現在時刻の取得元。
	clock Clock
	// cron は定期実行エンジン。Startで生成される。
	cron *cron.Cron
}

// NewScheduler は新しいスケジューラーを生成する。
func NewScheduler(store *Store, gateway *Gateway, tasks TaskSource, clock Clock) *Scheduler {
	return &Scheduler{
		store:   store,
		gateway: gateway,
		tasks:   tasks,
		clock:   clock,
	}
}

// Start は設定されたcron式に従って3つのジョブの定期実行を開始する。
func (s *Scheduler) Start(schedule config.Schedule) error {
	c := cron.New()

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"期限前スキャン", schedule.DueSoon, func(ctx context.Context) error {
			_, err := s.RunDueSoonScan(ctx)
			return err
		}},
		{"期限切れスキャン", schedule.Overdue, func(ctx context.Context) error {
			_, err := s.RunOverdueScan(ctx)
			return err
		}},
		{"既読通知の削除", schedule.Retention, func(ctx context.Context) error {
			_, err := s.RunRetentionSweep(ctx)
			return err
		}},
	}

	for _, job := range jobs {
		job := job
		if _, err := c.AddFunc(job.spec, func() {
			if err := job.run(context.Background()); err != nil {
				log.Printf("[Scheduler] %sでエラー: %v", job.name, err)
			}
		}); err != nil {
			return fmt.Errorf("%sのスケジュール登録に失敗 (spec=%q): %w", job.name, job.spec, err)
		}
	}

	c.Start()
	s.cron = c
	log.Printf("[Scheduler] 定期ジョブを開始しました (due_soon=%q, overdue=%q, retention=%q)",
		schedule.DueSoon, schedule.Overdue, schedule.Retention)
	return nil
}

// Stop は定期実行を停止し、実行中のジョブの完了を待つ。
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	log.Println("[Scheduler] 定期ジョブを停止しました")
}

// RunDueSoonScan は期限が今日から明日の終わりまでのタスクをスキャンし、
// 各タスクにつき1件のtask_due通知を生成する。生成した通知数を返す。
func (s *Scheduler) RunDueSoonScan(ctx context.Context) (int, error) {
	now := s.clock.Now()
	start := startOfDay(now)
	end := endOfDay(now.AddDate(0, 0, 1))

	log.Println("[Scheduler] 期限前スキャンを開始します")
	tasks, err := s.tasks.FindDueInWindow(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("期限前タスクの照会に失敗: %w", err)
	}

	count := 0
	for _, t := range tasks {
		// 停止要求があればアイテム間で中断する（処理中のアイテムは完了済み）
		if ctx.Err() != nil {
			break
		}

		priority := event.PriorityMedium
		if t.Priority == "urgent" {
			priority = event.PriorityHigh
		}
		if err := s.notify(ctx, t, event.KindTaskDue, priority,
			"Task Due Reminder", dueSoonEmailBody(t)); err != nil {
			log.Printf("[Scheduler] 期限前通知の生成に失敗 (task=%s): %v", t.ID, err)
			continue
		}
		count++
	}

	log.Printf("[Scheduler] 期限前スキャンが完了しました（%d件の通知を生成）", count)
	return count, nil
}

// RunOverdueScan は期限が今日より前のタスクをスキャンし、各タスクにつき1件の
// task_overdue通知を生成する。通知の優先度はタスクの優先度に関係なく常にhigh。
func (s *Scheduler) RunOverdueScan(ctx context.Context) (int, error) {
	now := s.clock.Now()

	log.Println("[Scheduler] 期限切れスキャンを開始します")
	tasks, err := s.tasks.FindOverdue(ctx, startOfDay(now))
	if err != nil {
		return 0, fmt.Errorf("期限切れタスクの照会に失敗: %w", err)
	}

	count := 0
	for _, t := range tasks {
		if ctx.Err() != nil {
			break
		}

		if err := s.notify(ctx, t, event.KindTaskOverdue, event.PriorityHigh,
			"Task Overdue", overdueEmailBody(t, now)); err != nil {
			log.Printf("[Scheduler] 期限切れ通知の生成に失敗 (task=%s): %v", t.ID, err)
			continue
		}
		count++
	}

	log.Printf("[Scheduler] 期限切れスキャンが完了しました（%d件の通知を生成）", count)
	return count, nil
}

// RunRetentionSweep は保持期間（30日）を過ぎた既読通知を削除し、削除件数を返す。
func (s *Scheduler) RunRetentionSweep(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().AddDate(0, 0, -retentionDays)

	log.Println("[Scheduler] 既読通知の削除を開始します")
	deleted, err := s.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("既読通知の削除に失敗: %w", err)
	}

	log.Printf("[Scheduler] 既読通知の削除が完了しました（%d件を削除）", deleted)
	return deleted, nil
}

// notify は1つのタスクに対する通知イベントを処理する。
// レンダリングと永続化に成功した場合のみプッシュとメールを試みる。
// 永続化の失敗はエラーとして返し、プッシュとメールの失敗はGatewayが飲み込む。
func (s *Scheduler) notify(ctx context.Context, t Task, kind event.Kind, priority, emailSubject, emailBody string) error {
	title, message := RenderMessage(kind, t.Title, "")

	taskID := t.ID
	n := Notification{
		UserID:    t.Assignee.ID,
		TaskID:    &taskID,
		Kind:      kind,
		Title:     title,
		Message:   message,
		Priority:  &priority,
		CreatedAt: s.clock.Now().UTC(),
	}

	id, err := s.store.Create(ctx, &n)
	if err != nil {
		return err
	}
	n.ID = id

	s.gateway.Push(t.Assignee.ID, n)
	s.gateway.Email(t.Assignee.Email, emailSubject, emailBody)
	return nil
}

// startOfDay はtと同じ日の0時0分0秒を返す。
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// endOfDay はtと同じ日の23時59分59秒（ナノ秒まで）を返す。
func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// dueSoonEmailBody は期限前リマインドメールのHTML本文を生成する。
func dueSoonEmailBody(t Task) string {
	return fmt.Sprintf(`
		<h2>Task Due Reminder</h2>
		<p>Your task %q is due tomorrow.</p>
		<p><strong>Description:</strong> %s</p>
		<p><strong>Due Date:</strong> %s</p>
		<p><strong>Priority:</strong> %s</p>
		<p>Please log in to the Task Manager to update the task status.</p>`,
		t.Title, t.Description, t.DueDate.Format("January 2, 2006"), t.Priority)
}

// overdueEmailBody は期限切れメールのHTML本文を生成する。
func overdueEmailBody(t Task, now time.Time) string {
	daysOverdue := int(now.Sub(t.DueDate).Hours() / 24)
	return fmt.Sprintf(`
		<h2>Task Overdue</h2>
		<p>Your task %q is overdue.</p>
		<p><strong>Description:</strong> %s</p>
		<p><strong>Due Date:</strong> %s</p>
		<p><strong>Days Overdue:</strong> %d days</p>
		<p><strong>Priority:</strong> %s</p>
		<p>Please complete this task as soon as possible.</p>`,
		t.Title, t.Description, t.DueDate.Format("January 2, 2006"), daysOverdue, t.Priority)
}
