// Package tasks はタスク管理サービスの内部実装を提供する。
//
// タスクのCRUD、コメント、統計に加えて、notificationサービスの2つの消費面を提供する。
// ひとつはスケジューラー向けのタスク照会API（期限内・期限切れ）、
// もうひとつはタスクの作成・完了・コメント時に通知イベントを送る同期フックである。
package tasks
