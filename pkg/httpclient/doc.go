// Package httpclient はサービス間通信用のJSON HTTPクライアントを提供する。
// リクエストタイムアウト、ユーザーIDの伝播、冪等なGETの再試行を扱う。
package httpclient
