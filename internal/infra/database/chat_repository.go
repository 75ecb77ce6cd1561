package database

import (
	"context"
	"fmt"
	"time"

	"lesson_reminder_bot/internal/domain/chat"
)

type ChatRepository struct {
	s *Store
}

func NewChatRepository(s *Store) *ChatRepository {
	return &ChatRepository{s: s}
}

func (r *ChatRepository) Upsert(ctx context.Context, chatID int64, teacherName string, at time.Time) error {
	defer r.s.lock()()

	query := r.s.db.Rebind(`INSERT INTO chats (chat_id, teacher_name, updated_at)
	                        VALUES (?, ?, ?)
	                        ON CONFLICT (chat_id) DO UPDATE SET
	                            teacher_name = excluded.teacher_name,
	                            updated_at = excluded.updated_at`)
	if _, err := r.s.db.ExecContext(ctx, query, chatID, teacherName, r.s.toUnix(at)); err != nil {
		return fmt.Errorf("error upserting chat %d: %w", chatID, err)
	}
	return nil
}

func (r *ChatRepository) ListAll(ctx context.Context) ([]*chat.Registration, error) {
	defer r.s.lock()()

	var rows []struct {
		ChatID      int64  `db:"chat_id"`
		TeacherName string `db:"teacher_name"`
		UpdatedAt   int64  `db:"updated_at"`
	}
	if err := r.s.db.SelectContext(ctx, &rows, `SELECT chat_id, teacher_name, updated_at FROM chats ORDER BY updated_at DESC, chat_id ASC`); err != nil {
		return nil, fmt.Errorf("error listing chats: %w", err)
	}
	out := make([]*chat.Registration, 0, len(rows))
	for _, row := range rows {
		out = append(out, &chat.Registration{
			ChatID:      row.ChatID,
			TeacherName: row.TeacherName,
			UpdatedAt:   r.s.fromUnix(row.UpdatedAt),
		})
	}
	return out, nil
}
