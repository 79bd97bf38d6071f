package tasks

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/taskhub/pkg/event"
	"github.com/nao1215/taskhub/pkg/middleware"
)

// notifyAssigned はタスク作成時に担当者へtask_assigned通知を送る。
// メール本文も添えて送信する。送信失敗はログに記録するだけで
// タスク作成自体は成功として扱う。
func (s *Server) notifyAssigned(c *gin.Context, t Task, assignee *User) {
	event.SendBestEffort(c.Request.Context(), s.notifier, event.SendRequest{
		UserID:       t.AssignedTo,
		TaskID:       t.ID,
		Kind:         event.KindTaskAssigned,
		TaskTitle:    t.Title,
		ActorName:    middleware.GetUserName(c),
		EmailTo:      assignee.Email,
		EmailSubject: "New Task Assigned",
		EmailHTML:    assignedEmailBody(t, middleware.GetUserName(c)),
	})
}

// notifyCommented はコメント追加時に担当者とアサインしたユーザーへ
// task_commented通知を送る。コメントした本人は対象から除く。
func (s *Server) notifyCommented(c *gin.Context, t Task, commenterID string) {
	req := event.SendRequest{
		TaskID:    t.ID,
		Kind:      event.KindTaskCommented,
		TaskTitle: t.Title,
		ActorName: middleware.GetUserName(c),
	}

	if t.AssignedTo != commenterID {
		req.UserID = t.AssignedTo
		event.SendBestEffort(c.Request.Context(), s.notifier, req)
	}
	if t.AssignedBy != commenterID {
		req.UserID = t.AssignedBy
		event.SendBestEffort(c.Request.Context(), s.notifier, req)
	}
}

// assignedEmailBody はタスク割り当てメールのHTML本文を組み立てる。
func assignedEmailBody(t Task, actorName string) string {
	return fmt.Sprintf(`
		<h2>New Task Assigned</h2>
		<p>You have been assigned a new task by %s.</p>
		<p><strong>Task:</strong> %s</p>
		<p><strong>Description:</strong> %s</p>
		<p><strong>Due Date:</strong> %s</p>
		<p><strong>Priority:</strong> %s</p>
		<p>Please log in to the Task Manager to view more details.</p>
	`, actorName, t.Title, t.Description, t.DueDate.Format("January 2, 2006"), t.Priority)
}
