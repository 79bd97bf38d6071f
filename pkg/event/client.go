package event

import (
	"context"
	"fmt"
	"log"

	"github.com/nao1215/taskhub/pkg/httpclient"
)

// Sender は通知イベントの送信先を表すインターフェース。
// 本番ではClientが実装し、テストでは記録用のフェイクに差し替える。
type Sender interface {
	// Send は通知イベントをnotificationサービスへ送信する。
	Send(ctx context.Context, req SendRequest) error
}

// Client はnotificationサービスの内部送信APIを呼び出すクライアント。
// tasksサービスのミューテーションフックから使用される。
type Client struct {
	// client はnotificationサービスへのHTTPクライアント。
	client *httpclient.Client
}

// NewClient は新しい通知イベントクライアントを生成する。
// baseURLにはnotificationサービスのベースURL（例: "http://localhost:8086"）を指定する。
func NewClient(baseURL string) *Client {
	return &Client{client: httpclient.New(baseURL)}
}

// Send は通知イベントをnotificationサービスの内部APIへ送信する。
func (c *Client) Send(ctx context.Context, req SendRequest) error {
	var resp map[string]any
	if err := c.client.PostJSON(ctx, "/api/v1/internal/send", req, &resp); err != nil {
		return fmt.Errorf("通知イベントの送信に失敗: %w", err)
	}
	return nil
}

// SendBestEffort はSendを実行し、失敗してもログに記録するだけで呼び出し元へは返さない。
// ミューテーションフックは通知の失敗でタスク操作を失敗させてはならない。
func SendBestEffort(ctx context.Context, s Sender, req SendRequest) {
	if s == nil {
		return
	}
	if err := s.Send(ctx, req); err != nil {
		log.Printf("[Event] 通知イベントの送信に失敗 (kind=%s, user=%s): %v", req.Kind, req.UserID, err)
	}
}
