package notification

import (
	"errors"
	"testing"
	"time"

	"github.com/nao1215/taskhub/pkg/event"
)

// failingMailer は常に送信に失敗するMailer実装。
type failingMailer struct{}

// Enabled は常にtrueを返す。
func (failingMailer) Enabled() bool { return true }

// Send は常にエラーを返す。
func (failingMailer) Send(_, _, _ string) error {
	return errors.New("SMTPサーバーに接続できません")
}

// TestGatewayPush はライブ接続へのプッシュ配信のテスト。
func TestGatewayPush(t *testing.T) {
	t.Parallel()

	t.Run("登録済み接続に通知ペイロードが届く", func(t *testing.T) {
		t.Parallel()
		registry := NewRegistry()
		g := NewGateway(registry, nil)

		conn := registry.Register("user-1")

		taskID := "task-1"
		priority := event.PriorityHigh
		g.Push("user-1", Notification{
			ID:        "n-1",
			UserID:    "user-1",
			TaskID:    &taskID,
			Kind:      event.KindTaskOverdue,
			Title:     "Task Overdue",
			Message:   "メッセージ",
			Priority:  &priority,
			CreatedAt: time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC),
		})

		select {
		case ev := <-conn.Events():
			if ev.Name != "notification_received" {
				t.Errorf("イベント名: got %q, want notification_received", ev.Name)
			}
			payload, ok := ev.Data.(pushPayload)
			if !ok {
				t.Fatalf("ペイロードの型: got %T, want pushPayload", ev.Data)
			}
			if payload.ID != "n-1" {
				t.Errorf("id: got %q, want n-1", payload.ID)
			}
			if payload.TaskID != "task-1" {
				t.Errorf("task_id: got %q, want task-1", payload.TaskID)
			}
			if payload.Priority != event.PriorityHigh {
				t.Errorf("priority: got %q, want high", payload.Priority)
			}
			if payload.CreatedAt != "2026-08-31T10:00:00Z" {
				t.Errorf("created_at: got %q, want 2026-08-31T10:00:00Z", payload.CreatedAt)
			}
		default:
			t.Error("接続にイベントが届いていません")
		}
	})

	t.Run("接続がないユーザーへのプッシュは何もしない", func(t *testing.T) {
		t.Parallel()
		g := NewGateway(NewRegistry(), nil)

		// パニックせず戻ることを確認する
		g.Push("no-conn-user", Notification{ID: "n-1", UserID: "no-conn-user"})
	})
}

// TestGatewayEmail はメール配信のテスト。失敗してもエラーを返さないことが契約。
func TestGatewayEmail(t *testing.T) {
	t.Parallel()

	t.Run("有効なメーラーで送信される", func(t *testing.T) {
		t.Parallel()
		mailer := &fakeMailer{enabled: true}
		g := NewGateway(NewRegistry(), mailer)

		g.Email("user@example.com", "件名", "<p>本文</p>")

		if len(mailer.sent) != 1 {
			t.Fatalf("送信メール数: got %d, want 1", len(mailer.sent))
		}
		if mailer.sent[0].to != "user@example.com" {
			t.Errorf("宛先: got %q, want user@example.com", mailer.sent[0].to)
		}
	})

	t.Run("宛先が空の場合は送信しない", func(t *testing.T) {
		t.Parallel()
		mailer := &fakeMailer{enabled: true}
		g := NewGateway(NewRegistry(), mailer)

		g.Email("", "件名", "<p>本文</p>")

		if len(mailer.sent) != 0 {
			t.Errorf("送信メール数: got %d, want 0", len(mailer.sent))
		}
	})

	t.Run("メーラーが未設定の場合はスキップする", func(t *testing.T) {
		t.Parallel()
		g := NewGateway(NewRegistry(), nil)

		// パニックせず戻ることを確認する
		g.Email("user@example.com", "件名", "<p>本文</p>")
	})

	t.Run("メーラーが無効の場合はスキップする", func(t *testing.T) {
		t.Parallel()
		mailer := &fakeMailer{enabled: false}
		g := NewGateway(NewRegistry(), mailer)

		g.Email("user@example.com", "件名", "<p>本文</p>")

		if len(mailer.sent) != 0 {
			t.Errorf("送信メール数: got %d, want 0", len(mailer.sent))
		}
	})

	t.Run("送信に失敗してもパニックやエラーにならない", func(t *testing.T) {
		t.Parallel()
		g := NewGateway(NewRegistry(), failingMailer{})

		g.Email("user@example.com", "件名", "<p>本文</p>")
	})
}
