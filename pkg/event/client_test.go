package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestKindValues はイベント種類の文字列表現を検証する。
// 通知ストアに保存される値であり、変更すると既存データと互換性がなくなる。
func TestKindValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind Kind
		want string
	}{
		{KindTaskAssigned, "task_assigned"},
		{KindTaskDue, "task_due"},
		{KindTaskCompleted, "task_completed"},
		{KindTaskOverdue, "task_overdue"},
		{KindTaskCommented, "task_commented"},
	}

	for _, tt := range tests {
		if string(tt.kind) != tt.want {
			t.Errorf("Kind: got %q, want %q", tt.kind, tt.want)
		}
	}
}

// TestClientSend は送信クライアントを検証する。
func TestClientSend(t *testing.T) {
	t.Parallel()

	t.Run("内部送信APIへ正しいパスとペイロードで送信されること", func(t *testing.T) {
		t.Parallel()

		var gotPath string
		var gotReq SendRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id":"n-1"}`)
		}))
		t.Cleanup(server.Close)

		client := NewClient(server.URL)
		err := client.Send(t.Context(), SendRequest{
			UserID:    "user-1",
			TaskID:    "task-1",
			Kind:      KindTaskAssigned,
			TaskTitle: "新しいタスク",
			ActorName: "Hanako",
			EmailTo:   "user1@example.com",
		})
		if err != nil {
			t.Fatalf("Send()でエラーが発生: %v", err)
		}

		if gotPath != "/api/v1/internal/send" {
			t.Errorf("パス = %q, want /api/v1/internal/send", gotPath)
		}
		if gotReq.UserID != "user-1" {
			t.Errorf("user_id = %q, want user-1", gotReq.UserID)
		}
		if gotReq.Kind != KindTaskAssigned {
			t.Errorf("kind = %q, want task_assigned", gotReq.Kind)
		}
		if gotReq.EmailTo != "user1@example.com" {
			t.Errorf("email_to = %q, want user1@example.com", gotReq.EmailTo)
		}
	})

	t.Run("エラーステータスでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "bad request", http.StatusBadRequest)
		}))
		t.Cleanup(server.Close)

		client := NewClient(server.URL)
		err := client.Send(t.Context(), SendRequest{UserID: "user-1", Kind: KindTaskDue})
		if err == nil {
			t.Fatal("エラーステータスでエラーが返るべき")
		}
	})
}

// failingSender は常に失敗するSender実装。
type failingSender struct{}

// Send は常にエラーを返す。
func (failingSender) Send(_ context.Context, _ SendRequest) error {
	return errors.New("notificationサービスに接続できません")
}

// TestSendBestEffort は失敗を飲み込む送信を検証する。
func TestSendBestEffort(t *testing.T) {
	t.Parallel()

	t.Run("送信失敗でもパニックやエラーにならないこと", func(t *testing.T) {
		t.Parallel()

		SendBestEffort(t.Context(), failingSender{}, SendRequest{UserID: "user-1", Kind: KindTaskDue})
	})

	t.Run("Senderがnilの場合は何もしないこと", func(t *testing.T) {
		t.Parallel()

		SendBestEffort(t.Context(), nil, SendRequest{UserID: "user-1", Kind: KindTaskDue})
	})
}
