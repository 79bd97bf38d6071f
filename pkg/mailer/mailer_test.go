package mailer

import (
	"io"
	"strings"
	"testing"

	"github.com/emersion/go-sasl"
)

// TestEnabled はメール送信の有効判定を検証する。
func TestEnabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		user string
		pass string
		want bool
	}{
		{"ユーザー名とパスワードが両方ある場合は有効", "user@example.com", "secret", true},
		{"ユーザー名が無い場合は無効", "", "secret", false},
		{"パスワードが無い場合は無効", "user@example.com", "", false},
		{"両方無い場合は無効", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := New("smtp.example.com", 587, tt.user, tt.pass, "")
			if got := m.Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestSend はメール送信処理を検証する。実際のSMTP送信はスタブに差し替える。
func TestSend(t *testing.T) {
	t.Parallel()

	t.Run("宛先と接続先が正しく渡されること", func(t *testing.T) {
		t.Parallel()

		var gotAddr, gotFrom string
		var gotTo []string
		var gotMessage string
		m := New("smtp.example.com", 587, "sender@example.com", "secret", "")
		m.send = func(addr string, _ sasl.Client, from string, to []string, r io.Reader) error {
			gotAddr = addr
			gotFrom = from
			gotTo = to
			raw, _ := io.ReadAll(r)
			gotMessage = string(raw)
			return nil
		}

		err := m.Send("user@example.com", "Task Due Reminder", "<h2>Reminder</h2>")
		if err != nil {
			t.Fatalf("Send()でエラーが発生: %v", err)
		}

		if gotAddr != "smtp.example.com:587" {
			t.Errorf("接続先 = %q, want smtp.example.com:587", gotAddr)
		}
		if gotFrom != "sender@example.com" {
			t.Errorf("From = %q, want sender@example.com", gotFrom)
		}
		if len(gotTo) != 1 || gotTo[0] != "user@example.com" {
			t.Errorf("宛先 = %v, want [user@example.com]", gotTo)
		}
		if !strings.Contains(gotMessage, "Task Due Reminder") {
			t.Errorf("メッセージに件名が含まれていません: %q", gotMessage)
		}
		if !strings.Contains(gotMessage, "text/html") {
			t.Errorf("メッセージがHTML形式になっていません: %q", gotMessage)
		}
	})

	t.Run("Fromアドレスが指定された場合は認証ユーザーより優先されること", func(t *testing.T) {
		t.Parallel()

		var gotFrom string
		m := New("smtp.example.com", 587, "auth-user@example.com", "secret", "noreply@example.com")
		m.send = func(_ string, _ sasl.Client, from string, _ []string, r io.Reader) error {
			gotFrom = from
			_, _ = io.ReadAll(r)
			return nil
		}

		if err := m.Send("user@example.com", "件名", "<p>本文</p>"); err != nil {
			t.Fatalf("Send()でエラーが発生: %v", err)
		}
		if gotFrom != "noreply@example.com" {
			t.Errorf("From = %q, want noreply@example.com", gotFrom)
		}
	})

	t.Run("無効な場合は送信せず成功すること", func(t *testing.T) {
		t.Parallel()

		called := false
		m := New("smtp.example.com", 587, "", "", "")
		m.send = func(_ string, _ sasl.Client, _ string, _ []string, _ io.Reader) error {
			called = true
			return nil
		}

		if err := m.Send("user@example.com", "件名", "<p>本文</p>"); err != nil {
			t.Fatalf("Send()でエラーが発生: %v", err)
		}
		if called {
			t.Error("無効な設定で送信処理が呼ばれています")
		}
	})

	t.Run("送信失敗がエラーとして返ること", func(t *testing.T) {
		t.Parallel()

		m := New("smtp.example.com", 587, "sender@example.com", "secret", "")
		m.send = func(_ string, _ sasl.Client, _ string, _ []string, _ io.Reader) error {
			return io.ErrUnexpectedEOF
		}

		if err := m.Send("user@example.com", "件名", "<p>本文</p>"); err == nil {
			t.Fatal("送信失敗でエラーが返るべき")
		}
	})
}
