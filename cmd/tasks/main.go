// タスクサービスのエントリポイント。
// タスクのCRUDとコメント管理を提供する。タスクの割り当て・完了・
// コメント時にnotificationサービスへイベントを送信し、
// スケジューラー向けに期限照会の内部APIを公開する。
package main

import (
	"log"

	"github.com/nao1215/taskhub/internal/tasks"
	"github.com/nao1215/taskhub/pkg/config"
)

func main() {
	cfg := config.Load("tasks")

	server, err := tasks.NewServer(cfg)
	if err != nil {
		log.Fatalf("タスクサーバーの初期化に失敗: %v", err)
	}

	log.Printf("タスクサービスを起動します: :%s", cfg.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("タスクサービスの起動に失敗: %v", err)
	}
}
