package chat

import (
	"context"
	"time"
)

// Registration is a chat the bot knows about and fans notifications out to.
type Registration struct {
	ChatID      int64
	TeacherName string
	UpdatedAt   time.Time
}

// Repository defines the operations for persisting chat registrations.
type Repository interface {
	// Upsert inserts the chat or refreshes its name and timestamp.
	Upsert(ctx context.Context, chatID int64, teacherName string, at time.Time) error
	// ListAll returns chats ordered by most recent activity first.
	ListAll(ctx context.Context) ([]*Registration, error)
}
