// internal/domain/lesson/lesson.go
package lesson

import (
	"database/sql"
	"time"
)

const (
	StartReminderLead = 30 * time.Minute // start reminder goes out this long before the lesson
	EndReminderLead   = 10 * time.Minute // end reminder goes out this long before the lesson ends
	PostLessonGrace   = 5 * time.Minute  // report prompt waits this long after the lesson ends
	DefaultDuration   = time.Hour        // used when a stored lesson has no end
)

// Lesson is one scheduled teaching session.
// Corresponds to the 'lessons' table.
type Lesson struct {
	ID               int64
	ChatID           int64 // chat that booked the lesson
	School           string
	StudentName      string
	StartAt          time.Time
	EndAt            sql.NullTime // legacy rows may lack an end
	StartReminderAt  time.Time
	EndReminderAt    sql.NullTime
	Status           Status
	StartRemindedAt  sql.NullTime
	EndRemindedAt    sql.NullTime
	ReportPromptedAt sql.NullTime
	ClosedAt         sql.NullTime // set when the lesson becomes Reported or Confirmed
	CreatedAt        time.Time
}

// End returns the lesson end, deriving start+1h for rows stored without one.
func (l *Lesson) End() time.Time {
	if l.EndAt.Valid {
		return l.EndAt.Time
	}
	return l.StartAt.Add(DefaultDuration)
}

// IsClosed reports whether the lesson was reported or confirmed.
func (l *Lesson) IsClosed() bool {
	return l.Status == StatusReported || l.Status == StatusConfirmed
}

// ReminderInstants computes when the start and end reminders fire for a lesson
// scheduled at now. Instants that already passed are floored to now.
func ReminderInstants(start, end, now time.Time) (startReminder, endReminder time.Time) {
	startReminder = start.Add(-StartReminderLead)
	if startReminder.Before(now) {
		startReminder = now
	}
	endReminder = end.Add(-EndReminderLead)
	if endReminder.Before(now) {
		endReminder = now
	}
	return startReminder, endReminder
}

// StartReminder is a lesson whose start reminder is due.
type StartReminder struct {
	LessonID    int64
	ChatID      int64
	School      string
	StudentName string
	StartAt     time.Time
	EndAt       time.Time
}

// EndReminder is a lesson whose end reminder is due.
type EndReminder struct {
	LessonID    int64
	ChatID      int64
	StudentName string
	EndAt       time.Time
}

// PostLessonAction is a finished lesson whose report prompt is due.
type PostLessonAction struct {
	LessonID    int64
	ChatID      int64
	School      string
	StudentName string
	StartAt     time.Time
	EndAt       time.Time
}
