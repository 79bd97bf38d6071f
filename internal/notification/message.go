package notification

import (
	"fmt"

	"github.com/nao1215/taskhub/pkg/event"
)

// RenderMessage は通知イベントの種類とタスク文脈からタイトルと本文を生成する。
// 副作用を持たない純粋関数で、同じ入力に対して常に同じ出力を返す。
// 未知のkindは汎用の "Task Update" メッセージにフォールバックする。
func RenderMessage(kind event.Kind, taskTitle, actorName string) (title, message string) {
	switch kind {
	case event.KindTaskAssigned:
		return "New Task Assigned",
			fmt.Sprintf("You have been assigned a new task: %q by %s", taskTitle, actorName)
	case event.KindTaskDue:
		return "Task Due Reminder",
			fmt.Sprintf("Task %q is due soon. Please complete it on time.", taskTitle)
	case event.KindTaskCompleted:
		return "Task Completed",
			fmt.Sprintf("Task %q has been marked as completed.", taskTitle)
	case event.KindTaskOverdue:
		return "Task Overdue",
			fmt.Sprintf("Task %q is overdue. Please complete it as soon as possible.", taskTitle)
	case event.KindTaskCommented:
		return "New Comment on Task",
			fmt.Sprintf("A new comment has been added to task %q.", taskTitle)
	default:
		return "Task Update", fmt.Sprintf("Update on task %q", taskTitle)
	}
}
