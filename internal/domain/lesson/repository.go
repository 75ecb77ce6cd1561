package lesson

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("lesson not found")

// Repository defines persistence and due-work queries for lessons.
type Repository interface {
	Create(ctx context.Context, l *Lesson) error
	// Update overwrites school, student and schedule fields. Status is left untouched.
	Update(ctx context.Context, l *Lesson) error
	GetByID(ctx context.Context, id int64) (*Lesson, error)
	ListAll(ctx context.Context) ([]*Lesson, error)
	// ListStartingBetween returns lessons with from <= start < to, ordered by start.
	ListStartingBetween(ctx context.Context, from, to time.Time) ([]*Lesson, error)

	DueStartReminders(ctx context.Context, now time.Time) ([]StartReminder, error)
	DueEndReminders(ctx context.Context, now time.Time) ([]EndReminder, error)
	DuePostLessonActions(ctx context.Context, now time.Time) ([]PostLessonAction, error)

	// Mark* are idempotent: marking an already advanced lesson is a no-op.
	MarkStartReminded(ctx context.Context, id int64, at time.Time) error
	MarkEndReminded(ctx context.Context, id int64, at time.Time) error
	MarkPostNotified(ctx context.Context, id int64, at time.Time) error
	MarkReported(ctx context.Context, id int64, at time.Time) error
	MarkConfirmed(ctx context.Context, id int64, at time.Time) error

	DeleteAll(ctx context.Context) error
}
