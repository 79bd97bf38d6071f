package notification

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/nao1215/taskhub/pkg/config"
	"github.com/nao1215/taskhub/pkg/event"
	"github.com/nao1215/taskhub/pkg/mailer"
	"github.com/nao1215/taskhub/pkg/middleware"
)

// Server は通知サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はサービス設定。
	cfg *config.Config
	// db はSQLiteデータベース接続。
	db *sqlx.DB
	// store は通知ストア。
	store *Store
	// registry はライブ接続のレジストリ。
	registry *Registry
	// gateway は配信ゲートウェイ。
	gateway *Gateway
	// scheduler は定期ジョブのスケジューラー。
	scheduler *Scheduler
}

// NewServer は新しい通知サーバーを生成する。
// SQLiteデータベースの初期化、配信ゲートウェイとスケジューラーの構築を行う。
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := OpenDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	store := NewStore(db)
	registry := NewRegistry()
	gateway := NewGateway(registry, mailer.New(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Pass, cfg.SMTP.From))
	scheduler := NewScheduler(store, gateway, NewHTTPTaskSource(cfg.TasksURL), SystemClock())

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS(cfg.CORSOrigins))

	s := &Server{
		router:    router,
		cfg:       cfg,
		db:        db,
		store:     store,
		registry:  registry,
		gateway:   gateway,
		scheduler: scheduler,
	}
	s.setupRoutes()

	return s, nil
}

// Run はスケジューラーとHTTPサーバーを起動する。
func (s *Server) Run() error {
	if err := s.scheduler.Start(s.cfg.Schedule); err != nil {
		return err
	}
	defer s.scheduler.Stop()
	return s.router.Run(fmt.Sprintf(":%s", s.cfg.Port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")

	notifications := api.Group("/notifications")
	notifications.Use(middleware.JWTAuth(s.cfg.JWTSecret))
	{
		// 通知一覧取得（ページング・絞り込み付き）
		notifications.GET("", s.handleList())
		// 未読通知一覧取得
		notifications.GET("/unread", s.handleListUnread())
		// 通知統計取得
		notifications.GET("/stats", s.handleStats())
		// ライブ接続（SSE）
		notifications.GET("/stream", s.handleStream())
		// 通知を既読にする
		notifications.PUT("/:id/read", s.handleMarkAsRead())
		// 全通知を既読にする
		notifications.PUT("/read-all", s.handleMarkAllAsRead())
		// 通知を削除する
		notifications.DELETE("/:id", s.handleDelete())
	}

	// 内部API - tasksサービスのミューテーションフックから呼び出される
	internal := api.Group("/internal")
	{
		internal.POST("/send", s.handleSend())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notification"})
	})
}

// notificationResponse は通知のJSONレスポンス構造。
type notificationResponse struct {
	// ID は通知の一意識別子。
	ID string `json:"id"`
	// UserID は通知先のユーザーID。
	UserID string `json:"user_id"`
	// TaskID は関連するタスクのID。
	TaskID string `json:"task_id,omitempty"`
	// Kind は通知イベントの種類。
	Kind string `json:"kind"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// Priority は通知の優先度ヒント。
	Priority string `json:"priority,omitempty"`
	// IsRead は通知の既読状態。
	IsRead bool `json:"is_read"`
	// ReadAt は既読にした日時（RFC3339形式）。未読の間は空。
	ReadAt string `json:"read_at,omitempty"`
	// CreatedAt は通知の作成日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
}

// toNotificationResponse はストアのレコードをJSONレスポンスに変換する。
func toNotificationResponse(n Notification) notificationResponse {
	resp := notificationResponse{
		ID:        n.ID,
		UserID:    n.UserID,
		Kind:      string(n.Kind),
		Title:     n.Title,
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
	if n.TaskID != nil {
		resp.TaskID = *n.TaskID
	}
	if n.Priority != nil {
		resp.Priority = *n.Priority
	}
	if n.ReadAt != nil {
		resp.ReadAt = n.ReadAt.Format(time.RFC3339)
	}
	return resp
}

// toNotificationResponses はレコードのスライスをJSONレスポンスのスライスに変換する。
func toNotificationResponses(notifications []Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		responses = append(responses, toNotificationResponse(n))
	}
	return responses
}

// handleList は認証済みユーザーの通知一覧をページング付きで返すハンドラ。
// クエリパラメータ: page, limit, unread_only, kind
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
		filter := Filter{
			UnreadOnly: c.Query("unread_only") == "true",
			Kind:       event.Kind(c.Query("kind")),
			Page:       page,
			Limit:      limit,
		}

		items, total, unread, err := s.store.List(c.Request.Context(), userID, filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			log.Printf("通知一覧取得エラー: %v", err)
			return
		}

		if limit < 1 {
			limit = defaultPageLimit
		}
		pages := (total + limit - 1) / limit

		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"count":        len(items),
			"total":        total,
			"unread_count": unread,
			"page":         page,
			"pages":        pages,
			"data":         toNotificationResponses(items),
		})
	}
}

// handleListUnread は認証済みユーザーの未読通知一覧を返すハンドラ。
func (s *Server) handleListUnread() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		items, _, _, err := s.store.List(c.Request.Context(), userID, Filter{
			UnreadOnly: true,
			Limit:      defaultPageLimit,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "未読通知一覧の取得に失敗しました"})
			log.Printf("未読通知一覧取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toNotificationResponses(items))
	}
}

// handleStats は認証済みユーザーの通知統計を返すハンドラ。
func (s *Server) handleStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		stats, err := s.store.CountStats(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知統計の取得に失敗しました"})
			log.Printf("通知統計取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
	}
}

// handleStream は認証済みユーザーのライブ接続（SSE）を処理するハンドラ。
// レジストリに接続を登録し、切断までイベントをストリーミングする。
func (s *Server) handleStream() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		conn := s.registry.Register(userID)
		defer s.registry.Unregister(conn)

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		log.Printf("[Stream] ライブ接続を開始 (user=%s)", userID)
		c.Stream(func(_ io.Writer) bool {
			select {
			case ev, ok := <-conn.Events():
				if !ok {
					return false
				}
				c.SSEvent(ev.Name, ev.Data)
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
		log.Printf("[Stream] ライブ接続を終了 (user=%s)", userID)
	}
}

// handleMarkAsRead は指定された通知を既読にするハンドラ。
func (s *Server) handleMarkAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		if err := s.store.MarkRead(c.Request.Context(), c.Param("id"), userID); err != nil {
			s.writeStoreError(c, err, "通知の既読処理に失敗しました")
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "message": "通知を既読にしました"})
	}
}

// handleMarkAllAsRead は認証済みユーザーの全通知を既読にするハンドラ。
func (s *Server) handleMarkAllAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		affected, err := s.store.MarkAllRead(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "全通知の既読処理に失敗しました"})
			log.Printf("全通知既読処理エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"message":  "全通知を既読にしました",
			"affected": affected,
		})
	}
}

// handleDelete は指定された通知を削除するハンドラ。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		if err := s.store.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
			s.writeStoreError(c, err, "通知の削除に失敗しました")
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "message": "通知を削除しました"})
	}
}

// handleSend は通知イベントを受け取り、レンダリング・永続化・配信を行うハンドラ。
// 内部API（tasksサービスのミューテーションフックから呼び出される）。
// 永続化に失敗した場合はエラーを返すが、プッシュとメールの失敗は成功として扱う。
func (s *Server) handleSend() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req event.SendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		title, message := RenderMessage(req.Kind, req.TaskTitle, req.ActorName)

		n := Notification{
			UserID:  req.UserID,
			Kind:    req.Kind,
			Title:   title,
			Message: message,
		}
		if req.TaskID != "" {
			n.TaskID = &req.TaskID
		}
		if req.Priority != "" {
			n.Priority = &req.Priority
		}

		id, err := s.store.Create(c.Request.Context(), &n)
		if err != nil {
			if errors.Is(err, ErrValidation) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の作成に失敗しました"})
			log.Printf("通知作成エラー: %v", err)
			return
		}
		n.ID = id
		n.CreatedAt = time.Now().UTC()

		// 永続化に成功した後の配信はすべてベストエフォート
		s.gateway.Push(req.UserID, n)
		if req.EmailTo != "" {
			subject := req.EmailSubject
			if subject == "" {
				subject = title
			}
			body := req.EmailHTML
			if body == "" {
				body = fmt.Sprintf("<h2>%s</h2><p>%s</p>", title, message)
			}
			s.gateway.Email(req.EmailTo, subject, body)
		}

		c.JSON(http.StatusCreated, gin.H{"id": id, "message": "通知を送信しました"})
	}
}

// writeStoreError はストアのエラー種別をHTTPステータスに変換してレスポンスを書き込む。
func (s *Server) writeStoreError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "通知が見つかりません"})
	case errors.Is(err, ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "この通知を操作する権限がありません"})
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
		log.Printf("ストアエラー: %v", err)
	}
}
