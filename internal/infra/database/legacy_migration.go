package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"lesson_reminder_bot/internal/domain/lesson"
	"lesson_reminder_bot/internal/domain/report"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// The older SQLite layout stored instants as naive ISO text in the local zone
// (lesson_dt, reminder_dt, ...) and tracked reminders with 0/1 flags. Its
// tables are kept under this suffix after the upgrade.
const legacySuffix = "_legacy"

var legacyTables = []string{"lessons", "lesson_reports", "chats", "pending_report_notifications"}

var legacyTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

type legacyLessonRow struct {
	ID            int64          `db:"id"`
	ChatID        int64          `db:"chat_id"`
	School        string         `db:"school"`
	StudentName   string         `db:"student_name"`
	LessonDT      string         `db:"lesson_dt"`
	LessonEndDT   sql.NullString `db:"lesson_end_dt"`
	ReminderDT    string         `db:"reminder_dt"`
	EndReminderDT sql.NullString `db:"end_reminder_dt"`
	Reminded      int            `db:"reminded"`
	EndReminded   int            `db:"end_reminded"`
	CreatedAt     string         `db:"created_at"`
}

type legacyReportRow struct {
	ID         int64           `db:"id"`
	ChatID     int64           `db:"chat_id"`
	FullName   string          `db:"full_name"`
	School     string          `db:"school"`
	Payment    string          `db:"payment"`
	PaymentUAH sql.NullFloat64 `db:"payment_uah"`
	CreatedAt  string          `db:"created_at"`
}

type legacyChatRow struct {
	ChatID      int64  `db:"chat_id"`
	TeacherName string `db:"teacher_name"`
	UpdatedAt   string `db:"updated_at"`
}

type legacyPendingRow struct {
	ID        int64  `db:"id"`
	ChatID    int64  `db:"chat_id"`
	MessageID int64  `db:"message_id"`
	IsOpen    int    `db:"is_open"`
	CreatedAt string `db:"created_at"`
}

func (s *Store) hasLegacyLayout(ctx context.Context) (bool, error) {
	if s.dialect.driver != sqliteDialect.driver {
		return false, nil
	}
	cols, err := s.columnsOf(ctx, s.db, "lessons")
	if err != nil {
		return false, err
	}
	return cols["lesson_dt"], nil
}

// upgradeLegacyLayout moves the old tables aside, creates the current schema
// and copies every row over in one transaction. Reminder flags become lesson
// statuses so nothing already delivered is sent again.
func (s *Store) upgradeLegacyLayout(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting upgrade: %w", err)
	}
	defer tx.Rollback()

	present := make(map[string]map[string]bool, len(legacyTables))
	for _, table := range legacyTables {
		cols, err := s.columnsOf(ctx, tx, table)
		if err != nil {
			return err
		}
		if len(cols) == 0 {
			continue
		}
		present[table] = cols
		stmt := fmt.Sprintf("ALTER TABLE %s RENAME TO %s%s", table, table, legacySuffix)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error renaming %s: %w", table, err)
		}
	}

	if err := s.createSchema(ctx, tx); err != nil {
		return err
	}

	fields := logrus.Fields{}
	if cols, ok := present["lessons"]; ok {
		n, err := s.copyLegacyLessons(ctx, tx, cols)
		if err != nil {
			return err
		}
		fields["lessons"] = n
	}
	if cols, ok := present["lesson_reports"]; ok {
		n, err := s.copyLegacyReports(ctx, tx, cols)
		if err != nil {
			return err
		}
		fields["reports"] = n
	}
	if _, ok := present["chats"]; ok {
		n, err := s.copyLegacyChats(ctx, tx)
		if err != nil {
			return err
		}
		fields["chats"] = n
	}
	if _, ok := present["pending_report_notifications"]; ok {
		n, err := s.copyLegacyPending(ctx, tx)
		if err != nil {
			return err
		}
		fields["pending_notifications"] = n
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing upgrade: %w", err)
	}
	s.logger.WithFields(fields).Info("Legacy layout upgraded")
	return nil
}

// parseLegacyTime reads an ISO timestamp; values without an offset are in the store zone.
func (s *Store) parseLegacyTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	for _, layout := range legacyTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, s.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (s *Store) legacyNullUnix(v sql.NullString) sql.NullInt64 {
	if !v.Valid {
		return sql.NullInt64{}
	}
	t, ok := s.parseLegacyTime(v.String)
	if !ok {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: s.toUnix(t), Valid: true}
}

func orNull(cols map[string]bool, name, fallback string) string {
	if cols[name] {
		return name
	}
	return fallback + " AS " + name
}

func (s *Store) copyLegacyLessons(ctx context.Context, tx *sqlx.Tx, cols map[string]bool) (int, error) {
	query := fmt.Sprintf(`SELECT id, chat_id, school, student_name, lesson_dt, %s, reminder_dt, %s,
	                             reminded, %s, created_at
	                      FROM lessons%s ORDER BY id`,
		orNull(cols, "lesson_end_dt", "NULL"), orNull(cols, "end_reminder_dt", "NULL"),
		orNull(cols, "end_reminded", "1"), legacySuffix)
	var rows []legacyLessonRow
	if err := tx.SelectContext(ctx, &rows, query); err != nil {
		return 0, fmt.Errorf("error reading legacy lessons: %w", err)
	}

	insert := tx.Rebind(`INSERT INTO lessons (id, chat_id, school, student_name, lesson_start, lesson_end,
	                     start_reminder_at, end_reminder_at, status, start_reminded_at, end_reminded_at, created_at)
	                     VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	copied := 0
	for _, r := range rows {
		start, ok := s.parseLegacyTime(r.LessonDT)
		if !ok {
			s.logger.WithFields(logrus.Fields{"lesson_id": r.ID, "lesson_dt": r.LessonDT}).Warn("Skipping legacy lesson with unreadable start")
			continue
		}
		startRem, ok := s.parseLegacyTime(r.ReminderDT)
		if !ok {
			startRem = start.Add(-lesson.StartReminderLead)
		}
		created, ok := s.parseLegacyTime(r.CreatedAt)
		if !ok {
			created = start
		}
		end := s.legacyNullUnix(r.LessonEndDT)
		endRem := s.legacyNullUnix(r.EndReminderDT)

		status := lesson.StatusBooked
		var startRemindedAt, endRemindedAt sql.NullInt64
		if r.Reminded != 0 {
			status = lesson.StatusStartReminded
			startRemindedAt = sql.NullInt64{Int64: s.toUnix(startRem), Valid: true}
		}
		// Rows that predate end reminders carry end_reminded=1 without an instant.
		if r.EndReminded != 0 && endRem.Valid {
			status = lesson.StatusEndReminded
			endRemindedAt = endRem
		}

		if _, err := tx.ExecContext(ctx, insert,
			r.ID, r.ChatID, r.School, r.StudentName, s.toUnix(start), end,
			s.toUnix(startRem), endRem, string(status), startRemindedAt, endRemindedAt, s.toUnix(created),
		); err != nil {
			return copied, fmt.Errorf("error copying legacy lesson %d: %w", r.ID, err)
		}
		copied++
	}
	return copied, nil
}

func (s *Store) copyLegacyReports(ctx context.Context, tx *sqlx.Tx, cols map[string]bool) (int, error) {
	query := fmt.Sprintf(`SELECT id, chat_id, full_name, school, payment, %s, created_at
	                      FROM lesson_reports%s ORDER BY id`, orNull(cols, "payment_uah", "NULL"), legacySuffix)
	var rows []legacyReportRow
	if err := tx.SelectContext(ctx, &rows, query); err != nil {
		return 0, fmt.Errorf("error reading legacy reports: %w", err)
	}

	insert := tx.Rebind(`INSERT INTO lesson_reports (id, chat_id, full_name, school, payment, payment_amount, created_at)
	                     VALUES (?, ?, ?, ?, ?, ?, ?)`)
	for _, r := range rows {
		amount := r.PaymentUAH.Float64
		if !r.PaymentUAH.Valid {
			amount, _ = report.ParsePayment(r.Payment)
		}
		if amount < 0 {
			amount = 0
		}
		created, ok := s.parseLegacyTime(r.CreatedAt)
		if !ok {
			created = time.Unix(0, 0)
		}
		if _, err := tx.ExecContext(ctx, insert, r.ID, r.ChatID, r.FullName, r.School, r.Payment, amount, s.toUnix(created)); err != nil {
			return 0, fmt.Errorf("error copying legacy report %d: %w", r.ID, err)
		}
	}
	return len(rows), nil
}

func (s *Store) copyLegacyChats(ctx context.Context, tx *sqlx.Tx) (int, error) {
	var rows []legacyChatRow
	if err := tx.SelectContext(ctx, &rows, `SELECT chat_id, teacher_name, updated_at FROM chats`+legacySuffix); err != nil {
		return 0, fmt.Errorf("error reading legacy chats: %w", err)
	}

	insert := tx.Rebind(`INSERT INTO chats (chat_id, teacher_name, updated_at) VALUES (?, ?, ?)`)
	for _, r := range rows {
		updated, ok := s.parseLegacyTime(r.UpdatedAt)
		if !ok {
			updated = time.Unix(0, 0)
		}
		if _, err := tx.ExecContext(ctx, insert, r.ChatID, r.TeacherName, s.toUnix(updated)); err != nil {
			return 0, fmt.Errorf("error copying legacy chat %d: %w", r.ChatID, err)
		}
	}
	return len(rows), nil
}

func (s *Store) copyLegacyPending(ctx context.Context, tx *sqlx.Tx) (int, error) {
	var rows []legacyPendingRow
	if err := tx.SelectContext(ctx, &rows, `SELECT id, chat_id, message_id, is_open, created_at
	                                        FROM pending_report_notifications`+legacySuffix+` ORDER BY id`); err != nil {
		return 0, fmt.Errorf("error reading legacy notifications: %w", err)
	}

	insert := tx.Rebind(`INSERT INTO pending_report_notifications (id, chat_id, message_id, is_open, created_at)
	                     VALUES (?, ?, ?, ?, ?)`)
	for _, r := range rows {
		created, ok := s.parseLegacyTime(r.CreatedAt)
		if !ok {
			created = time.Unix(0, 0)
		}
		if _, err := tx.ExecContext(ctx, insert, r.ID, r.ChatID, r.MessageID, r.IsOpen, s.toUnix(created)); err != nil {
			return 0, fmt.Errorf("error copying legacy notification %d: %w", r.ID, err)
		}
	}
	return len(rows), nil
}
