// Package middleware はGin用の共通ミドルウェアを提供する。
// JWT認証、パニックからの回復、CORS設定を含む。
package middleware
