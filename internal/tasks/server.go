package tasks

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/nao1215/taskhub/pkg/config"
	"github.com/nao1215/taskhub/pkg/event"
	"github.com/nao1215/taskhub/pkg/middleware"
)

// Server はタスクサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はサービス設定。
	cfg *config.Config
	// db はSQLiteデータベース接続。
	db *sqlx.DB
	// store はタスクストア。
	store *Store
	// notifier は通知イベントの送信先。タスクの変更時に同期的に呼び出される。
	notifier event.Sender
}

// NewServer は新しいタスクサーバーを生成する。
// SQLiteデータベースの初期化とnotificationサービスへのクライアント構築を行う。
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := OpenDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS(cfg.CORSOrigins))

	s := &Server{
		router:   router,
		cfg:      cfg,
		db:       db,
		store:    NewStore(db),
		notifier: event.NewClient(cfg.NotificationURL),
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.cfg.Port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")

	tasks := api.Group("/tasks")
	tasks.Use(middleware.JWTAuth(s.cfg.JWTSecret))
	{
		// タスク作成
		tasks.POST("", s.handleCreate())
		// タスク一覧取得
		tasks.GET("", s.handleList())
		// タスク統計取得
		tasks.GET("/stats/overview", s.handleStats())
		// タスク詳細取得
		tasks.GET("/:id", s.handleGetByID())
		// タスク更新
		tasks.PUT("/:id", s.handleUpdate())
		// タスク削除（論理削除）
		tasks.DELETE("/:id", s.handleDelete())
		// コメント追加
		tasks.POST("/:id/comments", s.handleAddComment())
		// コメント一覧取得
		tasks.GET("/:id/comments", s.handleListComments())
	}

	// 内部API - notificationサービスのスケジューラーと認証サービスから呼び出される
	internal := api.Group("/internal")
	{
		internal.GET("/tasks/due-window", s.handleDueWindow())
		internal.GET("/tasks/overdue", s.handleOverdue())
		internal.PUT("/users", s.handleUpsertUser())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "tasks"})
	})
}

// createTaskRequest はタスク作成リクエストのJSON構造。
type createTaskRequest struct {
	// Title はタスクのタイトル。
	Title string `json:"title" binding:"required"`
	// Description はタスクの説明。
	Description string `json:"description" binding:"required"`
	// AssignedTo は担当者のユーザーID。
	AssignedTo string `json:"assigned_to" binding:"required"`
	// DueDate はタスクの期限（RFC3339形式）。
	DueDate time.Time `json:"due_date" binding:"required"`
	// Category はタスクのカテゴリ。
	Category string `json:"category" binding:"required"`
	// Priority はタスクの優先度。省略時はmedium。
	Priority string `json:"priority"`
	// Project は所属プロジェクト名。
	Project string `json:"project"`
}

// updateTaskRequest はタスク更新リクエストのJSON構造。
// nilのフィールドは変更しない。
type updateTaskRequest struct {
	// Title はタスクのタイトル。
	Title *string `json:"title"`
	// Description はタスクの説明。
	Description *string `json:"description"`
	// Status はタスクの状態。
	Status *string `json:"status"`
	// Priority はタスクの優先度。
	Priority *string `json:"priority"`
	// Category はタスクのカテゴリ。
	Category *string `json:"category"`
	// DueDate はタスクの期限。
	DueDate *time.Time `json:"due_date"`
	// Project は所属プロジェクト名。
	Project *string `json:"project"`
}

// addCommentRequest はコメント追加リクエストのJSON構造。
type addCommentRequest struct {
	// Comment はコメント本文。
	Comment string `json:"comment" binding:"required"`
}

// upsertUserRequest はユーザー登録リクエストのJSON構造。
type upsertUserRequest struct {
	// ID はユーザーの一意識別子。
	ID string `json:"id" binding:"required"`
	// Name はユーザーの表示名。
	Name string `json:"name" binding:"required"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email" binding:"required"`
}

// taskResponse はタスクのJSONレスポンス構造。
type taskResponse struct {
	// ID はタスクの一意識別子。
	ID string `json:"id"`
	// Title はタスクのタイトル。
	Title string `json:"title"`
	// Description はタスクの説明。
	Description string `json:"description"`
	// Status はタスクの状態。
	Status string `json:"status"`
	// Priority はタスクの優先度。
	Priority string `json:"priority"`
	// Category はタスクのカテゴリ。
	Category string `json:"category"`
	// AssignedTo は担当者のユーザーID。
	AssignedTo string `json:"assigned_to"`
	// AssignedBy はアサインしたユーザーのID。
	AssignedBy string `json:"assigned_by"`
	// DueDate はタスクの期限（RFC3339形式）。
	DueDate string `json:"due_date"`
	// CompletedAt は完了日時（RFC3339形式）。未完了の間は空。
	CompletedAt string `json:"completed_at,omitempty"`
	// Project は所属プロジェクト名。
	Project string `json:"project,omitempty"`
	// CreatedAt はレコードの作成日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
	// UpdatedAt はレコードの更新日時（RFC3339形式）。
	UpdatedAt string `json:"updated_at"`
}

// toTaskResponse はタスクレコードをJSONレスポンスに変換する。
func toTaskResponse(t Task) taskResponse {
	resp := taskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		Category:    t.Category,
		AssignedTo:  t.AssignedTo,
		AssignedBy:  t.AssignedBy,
		DueDate:     t.DueDate.Format(time.RFC3339),
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   t.UpdatedAt.Format(time.RFC3339),
	}
	if t.CompletedAt != nil {
		resp.CompletedAt = t.CompletedAt.Format(time.RFC3339)
	}
	if t.Project != nil {
		resp.Project = *t.Project
	}
	return resp
}

// handleCreate はタスク作成を処理するハンドラを返す。
// 作成に成功した場合、担当者へtask_assignedイベントを送信する（ベストエフォート）。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		var req createTaskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		// 担当者の存在確認
		assignee, err := s.store.GetUser(c.Request.Context(), req.AssignedTo)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "担当者が見つかりません"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "担当者の確認に失敗しました"})
			log.Printf("担当者確認エラー: %v", err)
			return
		}

		priority := req.Priority
		if priority == "" {
			priority = "medium"
		}

		t := Task{
			Title:       req.Title,
			Description: req.Description,
			Status:      StatusPending,
			Priority:    priority,
			Category:    req.Category,
			AssignedTo:  req.AssignedTo,
			AssignedBy:  userID,
			DueDate:     req.DueDate,
		}
		if req.Project != "" {
			t.Project = &req.Project
		}

		id, err := s.store.CreateTask(c.Request.Context(), &t)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "タスクの作成に失敗しました"})
			log.Printf("タスク作成エラー: %v", err)
			return
		}
		t.ID = id

		// タスク作成フック: 担当者へtask_assigned通知を送る
		s.notifyAssigned(c, t, assignee)

		created, err := s.store.GetTask(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "作成したタスクの取得に失敗しました"})
			log.Printf("タスク取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"success": true, "data": toTaskResponse(*created)})
	}
}

// handleList はタスク一覧をページング付きで返すハンドラ。
// クエリパラメータ: status, priority, assigned_to, page, limit
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

		filter := TaskFilter{
			Status:     c.Query("status"),
			Priority:   c.Query("priority"),
			AssignedTo: c.Query("assigned_to"),
			Page:       page,
			Limit:      limit,
		}

		items, total, err := s.store.ListTasks(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "タスク一覧の取得に失敗しました"})
			log.Printf("タスク一覧取得エラー: %v", err)
			return
		}

		responses := make([]taskResponse, 0, len(items))
		for _, t := range items {
			responses = append(responses, toTaskResponse(t))
		}

		if limit < 1 {
			limit = defaultPageLimit
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"count":   len(items),
			"total":   total,
			"page":    page,
			"pages":   (total + limit - 1) / limit,
			"data":    responses,
		})
	}
}

// handleGetByID はタスク詳細を返すハンドラ。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := s.store.GetTask(c.Request.Context(), c.Param("id"))
		if err != nil {
			s.writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": toTaskResponse(*t)})
	}
}

// handleUpdate はタスク更新を処理するハンドラを返す。
// 状態がcompletedに遷移した場合、アサインしたユーザーへtask_completedイベントを送信する。
// 遷移の検出は更新前後の状態比較で行う（スケジューラーは関与しない）。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		var req updateTaskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}
		if req.Status != nil && !ValidStatus(*req.Status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("不正なタスク状態です: %s", *req.Status)})
			return
		}

		t, err := s.store.GetTask(c.Request.Context(), c.Param("id"))
		if err != nil {
			s.writeStoreError(c, err)
			return
		}
		oldStatus := t.Status

		applyTaskUpdate(t, req)

		// completedへの遷移を検出して完了日時を記録する
		completedNow := oldStatus != StatusCompleted && t.Status == StatusCompleted
		if completedNow {
			now := time.Now().UTC()
			t.CompletedAt = &now
		}

		if err := s.store.UpdateTask(c.Request.Context(), t); err != nil {
			s.writeStoreError(c, err)
			return
		}

		if completedNow {
			// タスク完了フック: アサインしたユーザーへtask_completed通知を送る
			event.SendBestEffort(c.Request.Context(), s.notifier, event.SendRequest{
				UserID:    t.AssignedBy,
				TaskID:    t.ID,
				Kind:      event.KindTaskCompleted,
				TaskTitle: t.Title,
				ActorName: middleware.GetUserName(c),
			})
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "data": toTaskResponse(*t)})
	}
}

// applyTaskUpdate は更新リクエストの非nilフィールドをタスクに適用する。
func applyTaskUpdate(t *Task, req updateTaskRequest) {
	if req.Title != nil {
		t.Title = *req.Title
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Status != nil {
		t.Status = *req.Status
	}
	if req.Priority != nil {
		t.Priority = *req.Priority
	}
	if req.Category != nil {
		t.Category = *req.Category
	}
	if req.DueDate != nil {
		t.DueDate = *req.DueDate
	}
	if req.Project != nil {
		t.Project = req.Project
	}
}

// handleDelete はタスクの論理削除を処理するハンドラを返す。
// 削除済みタスクはスケジューラーのスキャン対象から外れる。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.store.SoftDeleteTask(c.Request.Context(), c.Param("id")); err != nil {
			s.writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "タスクを削除しました"})
	}
}

// handleAddComment はコメント追加を処理するハンドラを返す。
// 追加に成功した場合、コメントした本人を除く担当者とアサインしたユーザーへ
// task_commentedイベントを送信する（ベストエフォート）。
func (s *Server) handleAddComment() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		var req addCommentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		t, err := s.store.GetTask(c.Request.Context(), c.Param("id"))
		if err != nil {
			s.writeStoreError(c, err)
			return
		}

		comment := Comment{
			TaskID:  t.ID,
			UserID:  userID,
			Comment: req.Comment,
		}
		id, err := s.store.AddComment(c.Request.Context(), &comment)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "コメントの追加に失敗しました"})
			log.Printf("コメント追加エラー: %v", err)
			return
		}
		comment.ID = id

		// コメントフック: 本人を除く担当者とアサインしたユーザーへ通知を送る
		s.notifyCommented(c, *t, userID)

		c.JSON(http.StatusCreated, gin.H{"success": true, "data": gin.H{"id": id}})
	}
}

// handleListComments はコメント一覧を返すハンドラ。
func (s *Server) handleListComments() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := s.store.GetTask(c.Request.Context(), c.Param("id")); err != nil {
			s.writeStoreError(c, err)
			return
		}

		comments, err := s.store.ListComments(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "コメント一覧の取得に失敗しました"})
			log.Printf("コメント一覧取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": comments})
	}
}

// handleStats はタスク統計を返すハンドラ。
func (s *Server) handleStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := s.store.CountStats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "タスク統計の取得に失敗しました"})
			log.Printf("タスク統計取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
	}
}

// dueTaskResponse はスケジューラー照会のJSONレスポンス構造。
// notificationサービスのTaskSourceが期待する形式と同期すること。
type dueTaskResponse struct {
	// ID はタスクの一意識別子。
	ID string `json:"id"`
	// Title はタスクのタイトル。
	Title string `json:"title"`
	// Description はタスクの説明。
	Description string `json:"description"`
	// Status はタスクの状態。
	Status string `json:"status"`
	// Priority はタスクの優先度。
	Priority string `json:"priority"`
	// DueDate はタスクの期限。
	DueDate time.Time `json:"due_date"`
	// Assignee は担当者の識別情報。
	Assignee assigneeResponse `json:"assignee"`
}

// assigneeResponse は担当者のJSONレスポンス構造。
type assigneeResponse struct {
	// ID は担当者のユーザーID。
	ID string `json:"id"`
	// Name は担当者の表示名。
	Name string `json:"name"`
	// Email は担当者のメールアドレス。
	Email string `json:"email"`
}

// toDueTaskResponses は照会結果をJSONレスポンスのスライスに変換する。
func toDueTaskResponses(tasks []DueTask) []dueTaskResponse {
	responses := make([]dueTaskResponse, 0, len(tasks))
	for _, t := range tasks {
		responses = append(responses, dueTaskResponse{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			Status:      t.Status,
			Priority:    t.Priority,
			DueDate:     t.DueDate,
			Assignee: assigneeResponse{
				ID:    t.AssigneeID,
				Name:  t.AssigneeName,
				Email: t.AssigneeEmail,
			},
		})
	}
	return responses
}

// handleDueWindow は期限が指定範囲にあるタスクを返す内部ハンドラ。
// クエリパラメータ: start, end（RFC3339形式）
func (s *Server) handleDueWindow() gin.HandlerFunc {
	return func(c *gin.Context) {
		start, err := time.Parse(time.RFC3339Nano, c.Query("start"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "startの形式が不正です"})
			return
		}
		end, err := time.Parse(time.RFC3339Nano, c.Query("end"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "endの形式が不正です"})
			return
		}

		tasks, err := s.store.FindDueInWindow(c.Request.Context(), start, end)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "期限内タスクの照会に失敗しました"})
			log.Printf("期限内タスク照会エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, toDueTaskResponses(tasks))
	}
}

// handleOverdue は期限切れタスクを返す内部ハンドラ。
// クエリパラメータ: before（RFC3339形式)
func (s *Server) handleOverdue() gin.HandlerFunc {
	return func(c *gin.Context) {
		before, err := time.Parse(time.RFC3339Nano, c.Query("before"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "beforeの形式が不正です"})
			return
		}

		tasks, err := s.store.FindOverdue(c.Request.Context(), before)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "期限切れタスクの照会に失敗しました"})
			log.Printf("期限切れタスク照会エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, toDueTaskResponses(tasks))
	}
}

// handleUpsertUser はユーザーの識別情報を登録する内部ハンドラ。
// 認証サービスがプロフィール変更時に呼び出し、通知の宛先解決に使用される。
func (s *Server) handleUpsertUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req upsertUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		u := User{ID: req.ID, Name: req.Name, Email: req.Email}
		if err := s.store.UpsertUser(c.Request.Context(), &u); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの保存に失敗しました"})
			log.Printf("ユーザー保存エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "id": u.ID})
	}
}

// writeStoreError はストアのエラー種別をHTTPステータスに変換してレスポンスを書き込む。
func (s *Server) writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "タスクが見つかりません"})
	case errors.Is(err, ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "内部エラーが発生しました"})
		log.Printf("ストアエラー: %v", err)
	}
}
