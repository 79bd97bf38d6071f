// Package notification は通知サービスの内部実装を提供する。
//
// タスクの状態遷移と期限から通知イベントを導出し、アプリ内通知として永続化した上で
// ライブ接続へのプッシュとメールによるベストエフォート配信を行う。
// 期限前・期限切れスキャンと既読通知の削除を行うスケジューラーもこのパッケージが持つ。
package notification
