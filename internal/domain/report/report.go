// internal/domain/report/report.go
package report

import (
	"database/sql"
	"time"
)

// LessonReport is a finalized payment record for a lesson.
// Corresponds to the 'lesson_reports' table. Reports are never updated.
type LessonReport struct {
	ID            int64
	ChatID        int64
	FullName      string // student name as typed in the report, independent of the lesson
	School        string
	Payment       string  // formatted, e.g. "700 грн"
	PaymentAmount float64 // always >= 0
	CreatedAt     time.Time
}

// PendingNotification tracks a "please file your report" prompt sent to a chat.
// Corresponds to the 'pending_report_notifications' table.
type PendingNotification struct {
	ID        int64
	ChatID    int64
	MessageID int
	IsOpen    bool
	LessonID  sql.NullInt64
	CreatedAt time.Time
}

// SchoolTotal is the sum of payments reported for one school.
type SchoolTotal struct {
	School string
	Total  float64
}
