package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lesson_reminder_bot/internal/domain/lesson"

	"github.com/jmoiron/sqlx"
)

const lessonColumns = `id, chat_id, school, student_name, lesson_start, lesson_end,
	start_reminder_at, end_reminder_at, status, start_reminded_at, end_reminded_at,
	report_prompted_at, closed_at, created_at`

type lessonRow struct {
	ID               int64         `db:"id"`
	ChatID           int64         `db:"chat_id"`
	School           string        `db:"school"`
	StudentName      string        `db:"student_name"`
	LessonStart      int64         `db:"lesson_start"`
	LessonEnd        sql.NullInt64 `db:"lesson_end"`
	StartReminderAt  int64         `db:"start_reminder_at"`
	EndReminderAt    sql.NullInt64 `db:"end_reminder_at"`
	Status           string        `db:"status"`
	StartRemindedAt  sql.NullInt64 `db:"start_reminded_at"`
	EndRemindedAt    sql.NullInt64 `db:"end_reminded_at"`
	ReportPromptedAt sql.NullInt64 `db:"report_prompted_at"`
	ClosedAt         sql.NullInt64 `db:"closed_at"`
	CreatedAt        int64         `db:"created_at"`
}

type LessonRepository struct {
	s *Store
}

func NewLessonRepository(s *Store) *LessonRepository {
	return &LessonRepository{s: s}
}

func (r *LessonRepository) nullTime(v sql.NullInt64) sql.NullTime {
	if !v.Valid {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: r.s.fromUnix(v.Int64), Valid: true}
}

func (r *LessonRepository) nullUnix(v sql.NullTime) sql.NullInt64 {
	if !v.Valid {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: r.s.toUnix(v.Time), Valid: true}
}

func (r *LessonRepository) toLesson(row lessonRow) *lesson.Lesson {
	return &lesson.Lesson{
		ID:               row.ID,
		ChatID:           row.ChatID,
		School:           row.School,
		StudentName:      row.StudentName,
		StartAt:          r.s.fromUnix(row.LessonStart),
		EndAt:            r.nullTime(row.LessonEnd),
		StartReminderAt:  r.s.fromUnix(row.StartReminderAt),
		EndReminderAt:    r.nullTime(row.EndReminderAt),
		Status:           lesson.Status(row.Status),
		StartRemindedAt:  r.nullTime(row.StartRemindedAt),
		EndRemindedAt:    r.nullTime(row.EndRemindedAt),
		ReportPromptedAt: r.nullTime(row.ReportPromptedAt),
		ClosedAt:         r.nullTime(row.ClosedAt),
		CreatedAt:        r.s.fromUnix(row.CreatedAt),
	}
}

func (r *LessonRepository) Create(ctx context.Context, l *lesson.Lesson) error {
	defer r.s.lock()()

	if l.Status == "" {
		l.Status = lesson.StatusBooked
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	query := r.s.db.Rebind(`INSERT INTO lessons (chat_id, school, student_name, lesson_start, lesson_end,
	                        start_reminder_at, end_reminder_at, status, created_at)
	                        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	                        RETURNING id`)
	err := r.s.db.QueryRowxContext(ctx, query,
		l.ChatID, l.School, l.StudentName, r.s.toUnix(l.StartAt), r.nullUnix(l.EndAt),
		r.s.toUnix(l.StartReminderAt), r.nullUnix(l.EndReminderAt), string(l.Status), r.s.toUnix(l.CreatedAt),
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("error creating lesson: %w", err)
	}
	return nil
}

func (r *LessonRepository) Update(ctx context.Context, l *lesson.Lesson) error {
	defer r.s.lock()()

	query := r.s.db.Rebind(`UPDATE lessons
	                        SET school = ?, student_name = ?, lesson_start = ?, lesson_end = ?,
	                            start_reminder_at = ?, end_reminder_at = ?
	                        WHERE id = ?`)
	res, err := r.s.db.ExecContext(ctx, query,
		l.School, l.StudentName, r.s.toUnix(l.StartAt), r.nullUnix(l.EndAt),
		r.s.toUnix(l.StartReminderAt), r.nullUnix(l.EndReminderAt), l.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating lesson: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error updating lesson: %w", err)
	}
	if n == 0 {
		return lesson.ErrNotFound
	}
	return nil
}

func (r *LessonRepository) GetByID(ctx context.Context, id int64) (*lesson.Lesson, error) {
	defer r.s.lock()()

	var row lessonRow
	err := r.s.db.GetContext(ctx, &row, r.s.db.Rebind(`SELECT `+lessonColumns+` FROM lessons WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lesson.ErrNotFound
		}
		return nil, fmt.Errorf("error getting lesson by ID: %w", err)
	}
	return r.toLesson(row), nil
}

func (r *LessonRepository) ListAll(ctx context.Context) ([]*lesson.Lesson, error) {
	defer r.s.lock()()

	var rows []lessonRow
	if err := r.s.db.SelectContext(ctx, &rows, `SELECT `+lessonColumns+` FROM lessons ORDER BY lesson_start ASC, id ASC`); err != nil {
		return nil, fmt.Errorf("error listing lessons: %w", err)
	}
	return r.toLessons(rows), nil
}

func (r *LessonRepository) ListStartingBetween(ctx context.Context, from, to time.Time) ([]*lesson.Lesson, error) {
	defer r.s.lock()()

	var rows []lessonRow
	query := r.s.db.Rebind(`SELECT ` + lessonColumns + ` FROM lessons
	                        WHERE lesson_start >= ? AND lesson_start < ?
	                        ORDER BY lesson_start ASC, id ASC`)
	if err := r.s.db.SelectContext(ctx, &rows, query, r.s.toUnix(from), r.s.toUnix(to)); err != nil {
		return nil, fmt.Errorf("error listing lessons between %s and %s: %w", from, to, err)
	}
	return r.toLessons(rows), nil
}

func (r *LessonRepository) toLessons(rows []lessonRow) []*lesson.Lesson {
	out := make([]*lesson.Lesson, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.toLesson(row))
	}
	return out
}

// selectDue runs a due-work query restricted to lessons whose status is below target.
func (r *LessonRepository) selectDue(ctx context.Context, where string, target lesson.Status, orderBy string, args ...interface{}) ([]lessonRow, error) {
	statuses := make([]string, 0, 4)
	for _, st := range target.Before() {
		statuses = append(statuses, string(st))
	}
	query, inArgs, err := sqlx.In(`SELECT `+lessonColumns+` FROM lessons
	                               WHERE status IN (?) AND `+where+`
	                               ORDER BY `+orderBy, append([]interface{}{statuses}, args...)...)
	if err != nil {
		return nil, err
	}
	var rows []lessonRow
	if err := r.s.db.SelectContext(ctx, &rows, r.s.db.Rebind(query), inArgs...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *LessonRepository) DueStartReminders(ctx context.Context, now time.Time) ([]lesson.StartReminder, error) {
	defer r.s.lock()()

	rows, err := r.selectDue(ctx, `start_reminder_at <= ?`, lesson.StatusStartReminded,
		`lesson_start ASC, id ASC`, r.s.toUnix(now))
	if err != nil {
		return nil, fmt.Errorf("error querying due start reminders: %w", err)
	}
	out := make([]lesson.StartReminder, 0, len(rows))
	for _, row := range rows {
		l := r.toLesson(row)
		out = append(out, lesson.StartReminder{
			LessonID:    l.ID,
			ChatID:      l.ChatID,
			School:      l.School,
			StudentName: l.StudentName,
			StartAt:     l.StartAt,
			EndAt:       l.End(),
		})
	}
	return out, nil
}

func (r *LessonRepository) DueEndReminders(ctx context.Context, now time.Time) ([]lesson.EndReminder, error) {
	defer r.s.lock()()

	rows, err := r.selectDue(ctx, `end_reminder_at IS NOT NULL AND end_reminder_at <= ? AND lesson_end IS NOT NULL`,
		lesson.StatusEndReminded, `lesson_end ASC, id ASC`, r.s.toUnix(now))
	if err != nil {
		return nil, fmt.Errorf("error querying due end reminders: %w", err)
	}
	out := make([]lesson.EndReminder, 0, len(rows))
	for _, row := range rows {
		l := r.toLesson(row)
		out = append(out, lesson.EndReminder{
			LessonID:    l.ID,
			ChatID:      l.ChatID,
			StudentName: l.StudentName,
			EndAt:       l.EndAt.Time,
		})
	}
	return out, nil
}

func (r *LessonRepository) DuePostLessonActions(ctx context.Context, now time.Time) ([]lesson.PostLessonAction, error) {
	defer r.s.lock()()

	threshold := now.Add(-lesson.PostLessonGrace)
	rows, err := r.selectDue(ctx, `lesson_end IS NOT NULL AND lesson_end <= ?`,
		lesson.StatusReportPending, `lesson_end ASC, id ASC`, r.s.toUnix(threshold))
	if err != nil {
		return nil, fmt.Errorf("error querying due post-lesson actions: %w", err)
	}
	out := make([]lesson.PostLessonAction, 0, len(rows))
	for _, row := range rows {
		l := r.toLesson(row)
		out = append(out, lesson.PostLessonAction{
			LessonID:    l.ID,
			ChatID:      l.ChatID,
			School:      l.School,
			StudentName: l.StudentName,
			StartAt:     l.StartAt,
			EndAt:       l.EndAt.Time,
		})
	}
	return out, nil
}

// advance moves a lesson to target and stamps column, unless it is already at or past target.
func (r *LessonRepository) advance(ctx context.Context, id int64, target lesson.Status, column string, at time.Time) error {
	defer r.s.lock()()

	statuses := make([]string, 0, 4)
	for _, st := range target.Before() {
		statuses = append(statuses, string(st))
	}
	query, args, err := sqlx.In(`UPDATE lessons SET status = ?, `+column+` = ?
	                             WHERE id = ? AND status IN (?)`,
		string(target), r.s.toUnix(at), id, statuses)
	if err != nil {
		return fmt.Errorf("error building %s transition: %w", target, err)
	}
	if _, err := r.s.db.ExecContext(ctx, r.s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("error marking lesson %d as %s: %w", id, target, err)
	}
	return nil
}

func (r *LessonRepository) MarkStartReminded(ctx context.Context, id int64, at time.Time) error {
	return r.advance(ctx, id, lesson.StatusStartReminded, "start_reminded_at", at)
}

func (r *LessonRepository) MarkEndReminded(ctx context.Context, id int64, at time.Time) error {
	return r.advance(ctx, id, lesson.StatusEndReminded, "end_reminded_at", at)
}

func (r *LessonRepository) MarkPostNotified(ctx context.Context, id int64, at time.Time) error {
	return r.advance(ctx, id, lesson.StatusReportPending, "report_prompted_at", at)
}

func (r *LessonRepository) MarkReported(ctx context.Context, id int64, at time.Time) error {
	return r.advance(ctx, id, lesson.StatusReported, "closed_at", at)
}

func (r *LessonRepository) MarkConfirmed(ctx context.Context, id int64, at time.Time) error {
	return r.advance(ctx, id, lesson.StatusConfirmed, "closed_at", at)
}

func (r *LessonRepository) DeleteAll(ctx context.Context) error {
	defer r.s.lock()()

	if _, err := r.s.db.ExecContext(ctx, `DELETE FROM lessons`); err != nil {
		return fmt.Errorf("error deleting lessons: %w", err)
	}
	return nil
}
