package report

import (
	"context"
)

// Repository defines operations for lesson reports and pending report prompts.
type Repository interface {
	CreateReport(ctx context.Context, r *LessonReport) error
	ListRecentReports(ctx context.Context, limit int) ([]*LessonReport, error)
	TotalPayment(ctx context.Context) (float64, error)
	TotalPaymentBySchool(ctx context.Context) ([]SchoolTotal, error)

	CreatePendingNotification(ctx context.Context, n *PendingNotification) error
	// ConsumeLatestPendingNotification closes the most recent open prompt and returns it.
	// It returns nil, nil when nothing is open.
	ConsumeLatestPendingNotification(ctx context.Context) (*PendingNotification, error)
	// ConsumePendingNotificationsForLesson closes every open prompt linked to the lesson.
	ConsumePendingNotificationsForLesson(ctx context.Context, lessonID int64) ([]*PendingNotification, error)

	DeleteAll(ctx context.Context) error
}
