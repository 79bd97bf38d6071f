// 通知サービスのエントリポイント。
// 通知の保存・配信とリマインダースケジューラーを提供する。
// タスクの割り当てやコメント時にtasksサービスから呼び出され、
// SSEとメールでユーザーへ通知を届ける。
package main

import (
	"log"

	"github.com/nao1215/taskhub/internal/notification"
	"github.com/nao1215/taskhub/pkg/config"
)

func main() {
	cfg := config.Load("notification")

	server, err := notification.NewServer(cfg)
	if err != nil {
		log.Fatalf("通知サーバーの初期化に失敗: %v", err)
	}

	log.Printf("通知サービスを起動します: :%s", cfg.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("通知サービスの起動に失敗: %v", err)
	}
}
