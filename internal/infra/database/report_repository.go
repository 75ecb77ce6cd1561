package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lesson_reminder_bot/internal/domain/report"

	"github.com/jmoiron/sqlx"
)

type reportRow struct {
	ID            int64   `db:"id"`
	ChatID        int64   `db:"chat_id"`
	FullName      string  `db:"full_name"`
	School        string  `db:"school"`
	Payment       string  `db:"payment"`
	PaymentAmount float64 `db:"payment_amount"`
	CreatedAt     int64   `db:"created_at"`
}

type pendingRow struct {
	ID        int64         `db:"id"`
	ChatID    int64         `db:"chat_id"`
	MessageID int64         `db:"message_id"`
	IsOpen    int           `db:"is_open"`
	LessonID  sql.NullInt64 `db:"lesson_id"`
	CreatedAt int64         `db:"created_at"`
}

const pendingColumns = `id, chat_id, message_id, is_open, lesson_id, created_at`

type ReportRepository struct {
	s *Store
}

func NewReportRepository(s *Store) *ReportRepository {
	return &ReportRepository{s: s}
}

// --- LessonReport Methods ---

func (r *ReportRepository) CreateReport(ctx context.Context, rep *report.LessonReport) error {
	defer r.s.lock()()

	if rep.PaymentAmount < 0 {
		return fmt.Errorf("error creating lesson report: negative amount %v", rep.PaymentAmount)
	}
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now()
	}
	query := r.s.db.Rebind(`INSERT INTO lesson_reports (chat_id, full_name, school, payment, payment_amount, created_at)
	                        VALUES (?, ?, ?, ?, ?, ?)
	                        RETURNING id`)
	err := r.s.db.QueryRowxContext(ctx, query,
		rep.ChatID, rep.FullName, rep.School, rep.Payment, rep.PaymentAmount, r.s.toUnix(rep.CreatedAt),
	).Scan(&rep.ID)
	if err != nil {
		return fmt.Errorf("error creating lesson report: %w", err)
	}
	return nil
}

func (r *ReportRepository) ListRecentReports(ctx context.Context, limit int) ([]*report.LessonReport, error) {
	defer r.s.lock()()

	var rows []reportRow
	query := r.s.db.Rebind(`SELECT id, chat_id, full_name, school, payment, payment_amount, created_at
	                        FROM lesson_reports
	                        ORDER BY created_at DESC, id DESC
	                        LIMIT ?`)
	if err := r.s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("error listing recent reports: %w", err)
	}
	out := make([]*report.LessonReport, 0, len(rows))
	for _, row := range rows {
		out = append(out, &report.LessonReport{
			ID:            row.ID,
			ChatID:        row.ChatID,
			FullName:      row.FullName,
			School:        row.School,
			Payment:       row.Payment,
			PaymentAmount: row.PaymentAmount,
			CreatedAt:     r.s.fromUnix(row.CreatedAt),
		})
	}
	return out, nil
}

func (r *ReportRepository) TotalPayment(ctx context.Context) (float64, error) {
	defer r.s.lock()()

	var total float64
	if err := r.s.db.GetContext(ctx, &total, `SELECT COALESCE(SUM(payment_amount), 0) FROM lesson_reports`); err != nil {
		return 0, fmt.Errorf("error summing payments: %w", err)
	}
	return total, nil
}

func (r *ReportRepository) TotalPaymentBySchool(ctx context.Context) ([]report.SchoolTotal, error) {
	defer r.s.lock()()

	var rows []struct {
		School string  `db:"school"`
		Total  float64 `db:"total"`
	}
	query := `SELECT school, COALESCE(SUM(payment_amount), 0) AS total
	          FROM lesson_reports
	          GROUP BY school
	          ORDER BY school`
	if err := r.s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("error summing payments by school: %w", err)
	}
	out := make([]report.SchoolTotal, 0, len(rows))
	for _, row := range rows {
		out = append(out, report.SchoolTotal{School: row.School, Total: row.Total})
	}
	return out, nil
}

// --- PendingNotification Methods ---

func (r *ReportRepository) toPending(row pendingRow) *report.PendingNotification {
	return &report.PendingNotification{
		ID:        row.ID,
		ChatID:    row.ChatID,
		MessageID: int(row.MessageID),
		IsOpen:    row.IsOpen != 0,
		LessonID:  row.LessonID,
		CreatedAt: r.s.fromUnix(row.CreatedAt),
	}
}

func (r *ReportRepository) CreatePendingNotification(ctx context.Context, n *report.PendingNotification) error {
	defer r.s.lock()()

	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	n.IsOpen = true
	query := r.s.db.Rebind(`INSERT INTO pending_report_notifications (chat_id, message_id, is_open, lesson_id, created_at)
	                        VALUES (?, ?, 1, ?, ?)
	                        RETURNING id`)
	err := r.s.db.QueryRowxContext(ctx, query, n.ChatID, n.MessageID, n.LessonID, r.s.toUnix(n.CreatedAt)).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("error creating pending report notification: %w", err)
	}
	return nil
}

func (r *ReportRepository) ConsumeLatestPendingNotification(ctx context.Context) (*report.PendingNotification, error) {
	defer r.s.lock()()

	txn, err := r.s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for consume: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	var row pendingRow
	err = txn.GetContext(ctx, &row, `SELECT `+pendingColumns+`
	                                 FROM pending_report_notifications
	                                 WHERE is_open = 1
	                                 ORDER BY created_at DESC, id DESC
	                                 LIMIT 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error selecting latest pending notification: %w", err)
	}
	if _, err := txn.ExecContext(ctx, txn.Rebind(`UPDATE pending_report_notifications SET is_open = 0 WHERE id = ?`), row.ID); err != nil {
		return nil, fmt.Errorf("error closing pending notification %d: %w", row.ID, err)
	}
	if err := txn.Commit(); err != nil {
		return nil, fmt.Errorf("error committing consume: %w", err)
	}
	row.IsOpen = 0
	return r.toPending(row), nil
}

func (r *ReportRepository) ConsumePendingNotificationsForLesson(ctx context.Context, lessonID int64) ([]*report.PendingNotification, error) {
	defer r.s.lock()()

	txn, err := r.s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for consume: %w", err)
	}
	defer txn.Rollback()

	var rows []pendingRow
	err = txn.SelectContext(ctx, &rows, txn.Rebind(`SELECT `+pendingColumns+`
	                                                FROM pending_report_notifications
	                                                WHERE lesson_id = ? AND is_open = 1
	                                                ORDER BY created_at DESC, id DESC`), lessonID)
	if err != nil {
		return nil, fmt.Errorf("error selecting pending notifications for lesson %d: %w", lessonID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	query, args, err := sqlx.In(`UPDATE pending_report_notifications SET is_open = 0 WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("error building consume for lesson %d: %w", lessonID, err)
	}
	if _, err := txn.ExecContext(ctx, txn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("error closing pending notifications for lesson %d: %w", lessonID, err)
	}
	if err := txn.Commit(); err != nil {
		return nil, fmt.Errorf("error committing consume: %w", err)
	}

	out := make([]*report.PendingNotification, 0, len(rows))
	for _, row := range rows {
		row.IsOpen = 0
		out = append(out, r.toPending(row))
	}
	return out, nil
}

// DeleteAll removes every report and every pending prompt.
func (r *ReportRepository) DeleteAll(ctx context.Context) error {
	defer r.s.lock()()

	txn, err := r.s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for delete: %w", err)
	}
	defer txn.Rollback()

	if _, err := txn.ExecContext(ctx, `DELETE FROM lesson_reports`); err != nil {
		return fmt.Errorf("error deleting lesson reports: %w", err)
	}
	if _, err := txn.ExecContext(ctx, `DELETE FROM pending_report_notifications`); err != nil {
		return fmt.Errorf("error deleting pending notifications: %w", err)
	}
	return txn.Commit()
}
