// Package config はtaskhub各サービスの設定を管理する。
// 環境変数を第一とし、未設定の項目には開発用のデフォルト値を適用する。
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// SMTP はメール送信の設定。UserとPassが空の場合、メール通知は無効になる。
type SMTP struct {
	// Host はSMTPサーバーのホスト名。
	Host string
	// Port はSMTPサーバーのポート番号。
	Port int
	// User はSMTP認証のユーザー名。メールのFromアドレスとしても使用する。
	User string
	// Pass はSMTP認証のパスワード。
	Pass string
	// From はメールのFromアドレス。空の場合はUserを使用する。
	From string
}

// Schedule はスケジューラーの各ジョブのcron式。
type Schedule struct {
	// DueSoon は期限前リマインドジョブのcron式。
	DueSoon string
	// Overdue は期限切れリマインドジョブのcron式。
	Overdue string
	// Retention は既読通知の削除ジョブのcron式。
	Retention string
}

// Config はtaskhub全サービス共通の設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// DBPath はSQLiteデータベースファイルのパス。
	DBPath string
	// JWTSecret はJWTトークンの署名鍵。
	JWTSecret string
	// TasksURL はtasksサービスのベースURL。
	TasksURL string
	// NotificationURL はnotificationサービスのベースURL。
	NotificationURL string
	// CORSOrigins はCORSで許可するオリジンの一覧。
	CORSOrigins []string
	// SMTP はメール送信の設定。
	SMTP SMTP
	// Schedule はスケジューラーのcron式設定。
	Schedule Schedule
}

// Load は環境変数から設定を読み込む。
// serviceには "notification" または "tasks" を指定し、PORTとDBのデフォルトを切り替える。
func Load(service string) *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	switch service {
	case "tasks":
		v.SetDefault("PORT", "8085")
		v.SetDefault("DB_PATH", "/data/tasks.db")
	default:
		v.SetDefault("PORT", "8086")
		v.SetDefault("DB_PATH", "/data/notification.db")
	}
	v.SetDefault("JWT_SECRET", "dev-secret-key")
	v.SetDefault("TASKS_URL", "http://localhost:8085")
	v.SetDefault("NOTIFICATION_URL", "http://localhost:8086")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASS", "")
	v.SetDefault("SMTP_FROM", "")

	// 期限前リマインドは毎日9時、期限切れリマインドは毎日10時、
	// 既読通知の削除は毎週日曜2時に実行する。
	v.SetDefault("SCHEDULE_DUE_SOON", "0 9 * * *")
	v.SetDefault("SCHEDULE_OVERDUE", "0 10 * * *")
	v.SetDefault("SCHEDULE_RETENTION", "0 2 * * 0")

	return &Config{
		Port:            v.GetString("PORT"),
		DBPath:          v.GetString("DB_PATH"),
		JWTSecret:       v.GetString("JWT_SECRET"),
		TasksURL:        v.GetString("TASKS_URL"),
		NotificationURL: v.GetString("NOTIFICATION_URL"),
		CORSOrigins:     strings.Split(v.GetString("CORS_ORIGINS"), ","),
		SMTP: SMTP{
			Host: v.GetString("SMTP_HOST"),
			Port: v.GetInt("SMTP_PORT"),
			User: v.GetString("SMTP_USER"),
			Pass: v.GetString("SMTP_PASS"),
			From: v.GetString("SMTP_FROM"),
		},
		Schedule: Schedule{
			DueSoon:   v.GetString("SCHEDULE_DUE_SOON"),
			Overdue:   v.GetString("SCHEDULE_OVERDUE"),
			Retention: v.GetString("SCHEDULE_RETENTION"),
		},
	}
}
