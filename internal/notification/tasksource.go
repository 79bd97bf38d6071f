package notification

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/nao1215/taskhub/pkg/httpclient"
)

// HTTPTaskSource はtasksサービスの内部APIを呼び出すTaskSourceの実装。
type HTTPTaskSource struct {
	// client はtasksサービスへのHTTPクライアント。
	client *httpclient.Client
}

// NewHTTPTaskSource は新しいHTTPTaskSourceを生成する。
// baseURLにはtasksサービスのベースURL（例: "http://localhost:8085"）を指定する。
func NewHTTPTaskSource(baseURL string) *HTTPTaskSource {
	return &HTTPTaskSource{client: httpclient.New(baseURL)}
}

// FindDueInWindow は期限が[start, end]の範囲にあるタスクをtasksサービスから取得する。
// 削除済みタスクと完了済みタスクはtasksサービス側で除外される。
func (h *HTTPTaskSource) FindDueInWindow(ctx context.Context, start, end time.Time) ([]Task, error) {
	path := fmt.Sprintf("/api/v1/internal/tasks/due-window?start=%s&end=%s",
		url.QueryEscape(start.Format(time.RFC3339Nano)),
		url.QueryEscape(end.Format(time.RFC3339Nano)),
	)

	var tasks []Task
	if err := h.client.GetJSON(ctx, path, &tasks); err != nil {
		return nil, fmt.Errorf("期限内タスクの取得に失敗: %w", err)
	}
	return tasks, nil
}

// FindOverdue は期限がbeforeより前のタスクをtasksサービスから取得する。
func (h *HTTPTaskSource) FindOverdue(ctx context.Context, before time.Time) ([]Task, error) {
	path := fmt.Sprintf("/api/v1/internal/tasks/overdue?before=%s",
		url.QueryEscape(before.Format(time.RFC3339Nano)),
	)

	var tasks []Task
	if err := h.client.GetJSON(ctx, path, &tasks); err != nil {
		return nil, fmt.Errorf("期限切れタスクの取得に失敗: %w", err)
	}
	return tasks, nil
}
