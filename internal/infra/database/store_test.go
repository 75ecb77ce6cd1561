package database

import (
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"testing"
	"time"

	"lesson_reminder_bot/internal/domain/lesson"
	"lesson_reminder_bot/internal/domain/report"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot.sqlite3")
	s, err := Open(context.Background(), Config{Path: path, Location: time.UTC}, discardLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createLesson(t *testing.T, repo *LessonRepository, chatID int64, start, end, now time.Time) *lesson.Lesson {
	t.Helper()
	startRem, endRem := lesson.ReminderInstants(start, end, now)
	l := &lesson.Lesson{
		ChatID:          chatID,
		School:          "Yarko",
		StudentName:     "Олег",
		StartAt:         start,
		EndAt:           sql.NullTime{Time: end, Valid: true},
		StartReminderAt: startRem,
		EndReminderAt:   sql.NullTime{Time: endRem, Valid: true},
		CreatedAt:       now,
	}
	if err := repo.Create(context.Background(), l); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return l
}

func TestDueStartRemindersAndMark(t *testing.T) {
	ctx := context.Background()
	repo := NewLessonRepository(newTestStore(t))
	booked := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	l := createLesson(t, repo, 1, start, start.Add(time.Hour), booked)

	due, err := repo.DueStartReminders(ctx, start.Add(-31*time.Minute))
	if err != nil {
		t.Fatalf("DueStartReminders: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected nothing due before the reminder instant, got %d", len(due))
	}

	due, err = repo.DueStartReminders(ctx, start.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("DueStartReminders: %v", err)
	}
	if len(due) != 1 || due[0].LessonID != l.ID {
		t.Fatalf("expected lesson %d due, got %+v", l.ID, due)
	}
	if !due[0].EndAt.Equal(start.Add(time.Hour)) {
		t.Fatalf("unexpected end: %v", due[0].EndAt)
	}

	at := start.Add(-30 * time.Minute)
	if err := repo.MarkStartReminded(ctx, l.ID, at); err != nil {
		t.Fatalf("MarkStartReminded: %v", err)
	}
	if err := repo.MarkStartReminded(ctx, l.ID, at.Add(time.Minute)); err != nil {
		t.Fatalf("second MarkStartReminded: %v", err)
	}

	for _, now := range []time.Time{at, at.Add(time.Hour)} {
		due, err = repo.DueStartReminders(ctx, now)
		if err != nil {
			t.Fatalf("DueStartReminders: %v", err)
		}
		if len(due) != 0 {
			t.Fatalf("expected no start reminders after mark at %v, got %d", now, len(due))
		}
	}

	got, err := repo.GetByID(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != lesson.StatusStartReminded {
		t.Fatalf("status = %s, want %s", got.Status, lesson.StatusStartReminded)
	}
	if !got.StartRemindedAt.Valid || !got.StartRemindedAt.Time.Equal(at) {
		t.Fatalf("StartRemindedAt = %+v, want first mark %v", got.StartRemindedAt, at)
	}
}

func TestDueStartRemindersOrderedByStart(t *testing.T) {
	ctx := context.Background()
	repo := NewLessonRepository(newTestStore(t))
	booked := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)
	late := createLesson(t, repo, 1, time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC), time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC), booked)
	early := createLesson(t, repo, 1, time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC), time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC), booked)

	due, err := repo.DueStartReminders(ctx, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DueStartReminders: %v", err)
	}
	if len(due) != 2 || due[0].LessonID != early.ID || due[1].LessonID != late.ID {
		t.Fatalf("unexpected order: %+v", due)
	}
}

func TestDueEndRemindersAndMark(t *testing.T) {
	ctx := context.Background()
	repo := NewLessonRepository(newTestStore(t))
	booked := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	l := createLesson(t, repo, 1, start, end, booked)

	due, err := repo.DueEndReminders(ctx, end.Add(-11*time.Minute))
	if err != nil {
		t.Fatalf("DueEndReminders: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected nothing due, got %d", len(due))
	}
	due, err = repo.DueEndReminders(ctx, end.Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("DueEndReminders: %v", err)
	}
	if len(due) != 1 || !due[0].EndAt.Equal(end) {
		t.Fatalf("unexpected due end reminders: %+v", due)
	}

	if err := repo.MarkEndReminded(ctx, l.ID, end.Add(-10*time.Minute)); err != nil {
		t.Fatalf("MarkEndReminded: %v", err)
	}
	due, err = repo.DueEndReminders(ctx, end)
	if err != nil {
		t.Fatalf("DueEndReminders: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected end reminder retired, got %d", len(due))
	}

	// Start reminder is no longer due once the lesson moved past it.
	starts, err := repo.DueStartReminders(ctx, end)
	if err != nil {
		t.Fatalf("DueStartReminders: %v", err)
	}
	if len(starts) != 0 {
		t.Fatalf("expected stale start reminder to be retired, got %d", len(starts))
	}
}

func TestDuePostLessonActionsGraceBoundary(t *testing.T) {
	ctx := context.Background()
	repo := NewLessonRepository(newTestStore(t))
	booked := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	l := createLesson(t, repo, 1, start, end, booked)

	due, err := repo.DuePostLessonActions(ctx, end.Add(4*time.Minute+59*time.Second))
	if err != nil {
		t.Fatalf("DuePostLessonActions: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("lesson ended 4m59s ago must not be due, got %d", len(due))
	}

	due, err = repo.DuePostLessonActions(ctx, end.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("DuePostLessonActions: %v", err)
	}
	if len(due) != 1 || due[0].LessonID != l.ID {
		t.Fatalf("lesson ended exactly 5m ago must be due, got %+v", due)
	}

	if err := repo.MarkPostNotified(ctx, l.ID, end.Add(5*time.Minute)); err != nil {
		t.Fatalf("MarkPostNotified: %v", err)
	}
	due, err = repo.DuePostLessonActions(ctx, end.Add(time.Hour))
	if err != nil {
		t.Fatalf("DuePostLessonActions: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected prompt retired, got %d", len(due))
	}

	// The lesson row survives the prompt and can still be confirmed.
	if err := repo.MarkConfirmed(ctx, l.ID, end.Add(2*time.Hour)); err != nil {
		t.Fatalf("MarkConfirmed: %v", err)
	}
	if err := repo.MarkReported(ctx, l.ID, end.Add(3*time.Hour)); err != nil {
		t.Fatalf("MarkReported: %v", err)
	}
	got, err := repo.GetByID(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != lesson.StatusConfirmed {
		t.Fatalf("status = %s, want %s", got.Status, lesson.StatusConfirmed)
	}
}

func TestUpdateKeepsStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewLessonRepository(newTestStore(t))
	booked := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	l := createLesson(t, repo, 1, start, start.Add(time.Hour), booked)
	if err := repo.MarkStartReminded(ctx, l.ID, start); err != nil {
		t.Fatalf("MarkStartReminded: %v", err)
	}

	l.StudentName = "Ира"
	l.School = "Uknow"
	if err := repo.Update(ctx, l); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := repo.GetByID(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.StudentName != "Ира" || got.School != "Uknow" {
		t.Fatalf("update not applied: %+v", got)
	}
	if got.Status != lesson.StatusStartReminded {
		t.Fatalf("status rewound to %s", got.Status)
	}

	missing := *l
	missing.ID = 9999
	if err := repo.Update(ctx, &missing); err != lesson.ErrNotFound {
		t.Fatalf("Update(missing) err = %v, want ErrNotFound", err)
	}
	if _, err := repo.GetByID(ctx, 9999); err != lesson.ErrNotFound {
		t.Fatalf("GetByID(missing) err = %v, want ErrNotFound", err)
	}
}

func TestListStartingBetween(t *testing.T) {
	ctx := context.Background()
	repo := NewLessonRepository(newTestStore(t))
	booked := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	createLesson(t, repo, 1, day.Add(-time.Hour), day, booked)
	in1 := createLesson(t, repo, 1, day, day.Add(time.Hour), booked)
	in2 := createLesson(t, repo, 2, day.Add(23*time.Hour), day.Add(24*time.Hour), booked)
	createLesson(t, repo, 1, day.Add(24*time.Hour), day.Add(25*time.Hour), booked)

	got, err := repo.ListStartingBetween(ctx, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListStartingBetween: %v", err)
	}
	if len(got) != 2 || got[0].ID != in1.ID || got[1].ID != in2.ID {
		t.Fatalf("unexpected lessons: %+v", got)
	}
}

func TestPendingNotificationConsumption(t *testing.T) {
	ctx := context.Background()
	repo := NewReportRepository(newTestStore(t))
	base := time.Date(2025, 3, 10, 15, 5, 0, 0, time.UTC)

	linked := []*report.PendingNotification{
		{ChatID: 1, MessageID: 10, LessonID: sql.NullInt64{Int64: 7, Valid: true}, CreatedAt: base},
		{ChatID: 2, MessageID: 20, LessonID: sql.NullInt64{Int64: 7, Valid: true}, CreatedAt: base},
	}
	for _, n := range linked {
		if err := repo.CreatePendingNotification(ctx, n); err != nil {
			t.Fatalf("CreatePendingNotification: %v", err)
		}
	}
	latest := &report.PendingNotification{ChatID: 1, MessageID: 30, LessonID: sql.NullInt64{Int64: 8, Valid: true}, CreatedAt: base.Add(time.Minute)}
	if err := repo.CreatePendingNotification(ctx, latest); err != nil {
		t.Fatalf("CreatePendingNotification: %v", err)
	}

	consumed, err := repo.ConsumePendingNotificationsForLesson(ctx, 7)
	if err != nil {
		t.Fatalf("ConsumePendingNotificationsForLesson: %v", err)
	}
	if len(consumed) != 2 {
		t.Fatalf("expected 2 consumed, got %d", len(consumed))
	}
	again, err := repo.ConsumePendingNotificationsForLesson(ctx, 7)
	if err != nil {
		t.Fatalf("second consume: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("consumption must be idempotent, got %d", len(again))
	}

	n, err := repo.ConsumeLatestPendingNotification(ctx)
	if err != nil {
		t.Fatalf("ConsumeLatestPendingNotification: %v", err)
	}
	if n == nil || n.MessageID != 30 || n.IsOpen {
		t.Fatalf("unexpected latest notification: %+v", n)
	}
	n, err = repo.ConsumeLatestPendingNotification(ctx)
	if err != nil {
		t.Fatalf("ConsumeLatestPendingNotification: %v", err)
	}
	if n != nil {
		t.Fatalf("expected nothing open, got %+v", n)
	}
}

func TestReportTotals(t *testing.T) {
	ctx := context.Background()
	repo := NewReportRepository(newTestStore(t))

	total, err := repo.TotalPayment(ctx)
	if err != nil {
		t.Fatalf("TotalPayment: %v", err)
	}
	if total != 0 {
		t.Fatalf("empty total = %v", total)
	}

	for _, r := range []*report.LessonReport{
		{ChatID: 1, FullName: "Олег Петров", School: "Yarko", Payment: "500 грн", PaymentAmount: 500},
		{ChatID: 2, FullName: "Ира Ким", School: "Uknow", Payment: "700 грн", PaymentAmount: 700},
		{ChatID: 1, FullName: "Олег Петров", School: "Yarko", Payment: "250.50 грн", PaymentAmount: 250.5},
	} {
		if err := repo.CreateReport(ctx, r); err != nil {
			t.Fatalf("CreateReport: %v", err)
		}
	}
	if err := repo.CreateReport(ctx, &report.LessonReport{PaymentAmount: -1}); err == nil {
		t.Fatal("expected negative amount to be rejected")
	}

	total, err = repo.TotalPayment(ctx)
	if err != nil {
		t.Fatalf("TotalPayment: %v", err)
	}
	if total != 1450.5 {
		t.Fatalf("total = %v, want 1450.5", total)
	}

	bySchool, err := repo.TotalPaymentBySchool(ctx)
	if err != nil {
		t.Fatalf("TotalPaymentBySchool: %v", err)
	}
	got := map[string]float64{}
	for _, st := range bySchool {
		got[st.School] = st.Total
	}
	if got["Yarko"] != 750.5 || got["Uknow"] != 700 {
		t.Fatalf("unexpected totals by school: %+v", got)
	}

	recent, err := repo.ListRecentReports(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecentReports: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 recent reports, got %d", len(recent))
	}

	if err := repo.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	total, err = repo.TotalPayment(ctx)
	if err != nil {
		t.Fatalf("TotalPayment: %v", err)
	}
	if total != 0 {
		t.Fatalf("total after delete = %v", total)
	}
}

func TestChatUpsert(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(newTestStore(t))
	t0 := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	if err := repo.Upsert(ctx, 1, "Анна", t0); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := repo.Upsert(ctx, 2, "Ира", t0.Add(time.Minute)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := repo.Upsert(ctx, 1, "Анна Викторовна", t0.Add(2*time.Minute)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	chats, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(chats))
	}
	if chats[0].ChatID != 1 || chats[0].TeacherName != "Анна Викторовна" {
		t.Fatalf("expected refreshed chat first, got %+v", chats[0])
	}
}

func TestMigrateAddsMissingColumns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "early.sqlite3")

	legacy, err := sqlx.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open legacy: %v", err)
	}
	for _, stmt := range sqliteDialect.baseTables() {
		if _, err := legacy.Exec(stmt); err != nil {
			t.Fatalf("create legacy table: %v", err)
		}
	}
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	_, err = legacy.Exec(`INSERT INTO lessons (chat_id, school, student_name, lesson_start, start_reminder_at, created_at)
	                      VALUES (?, ?, ?, ?, ?, ?)`,
		5, "Shabadoo", "Лев", start.Unix(), start.Add(-30*time.Minute).Unix(), start.Add(-24*time.Hour).Unix())
	if err != nil {
		t.Fatalf("insert legacy lesson: %v", err)
	}
	legacy.Close()

	s, err := Open(ctx, Config{Path: path, Location: time.UTC}, discardLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	repo := NewLessonRepository(s)
	due, err := repo.DueStartReminders(ctx, start)
	if err != nil {
		t.Fatalf("DueStartReminders: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("legacy lesson must keep its pending start reminder, got %d", len(due))
	}
	if !due[0].EndAt.Equal(start.Add(time.Hour)) {
		t.Fatalf("legacy end should default to start+1h, got %v", due[0].EndAt)
	}
	ends, err := repo.DueEndReminders(ctx, start.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("DueEndReminders: %v", err)
	}
	if len(ends) != 0 {
		t.Fatalf("legacy lesson without end reminder must not produce one, got %d", len(ends))
	}

	// Reopening is a no-op migration.
	s.Close()
	s2, err := Open(ctx, Config{Path: path, Location: time.UTC}, discardLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	s2.Close()
}

// Layout written by the earlier release of the bot: ISO text instants and 0/1 reminder flags.
var earlyReleaseDDL = []string{
	`CREATE TABLE lessons (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL,
		school TEXT NOT NULL,
		student_name TEXT NOT NULL,
		lesson_dt TEXT NOT NULL,
		lesson_end_dt TEXT NOT NULL,
		reminder_dt TEXT NOT NULL,
		end_reminder_dt TEXT NOT NULL,
		reminded INTEGER NOT NULL DEFAULT 0,
		end_reminded INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE lesson_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL,
		full_name TEXT NOT NULL,
		school TEXT NOT NULL,
		payment TEXT NOT NULL,
		payment_uah REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE chats (
		chat_id INTEGER PRIMARY KEY,
		teacher_name TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE pending_report_notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL,
		message_id INTEGER NOT NULL,
		is_open INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	)`,
}

func TestMigrateUpgradesEarlyReleaseLayout(t *testing.T) {
	ctx := context.Background()
	loc := time.FixedZone("UTC+2", 2*3600)
	path := filepath.Join(t.TempDir(), "bot_data.sqlite3")

	early, err := sqlx.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open early db: %v", err)
	}
	for _, stmt := range earlyReleaseDDL {
		if _, err := early.Exec(stmt); err != nil {
			t.Fatalf("create early table: %v", err)
		}
	}
	seed := []string{
		// start reminded, end reminder pending
		`INSERT INTO lessons VALUES (3, 5, 'Yarko', 'Иван', '2025-03-10T14:00:00', '2025-03-10T15:00:00',
		                             '2025-03-10T13:30:00', '2025-03-10T14:50:00', 1, 0, '2025-03-09T10:00:00')`,
		// nothing sent yet
		`INSERT INTO lessons VALUES (4, 6, 'Uknow', 'Оля', '2025-03-11T10:00:00', '2025-03-11T11:00:00',
		                             '2025-03-11T09:30:00', '2025-03-11T10:50:00', 0, 0, '2025-03-09T11:00:00')`,
		// both reminders sent, report prompt pending
		`INSERT INTO lessons VALUES (7, 5, 'Shabadoo', 'Лев', '2025-03-10T12:00:00', '2025-03-10T13:00:00',
		                             '2025-03-10T11:30:00', '2025-03-10T12:50:00', 1, 1, '2025-03-09T12:00:00')`,
		`INSERT INTO lesson_reports VALUES (1, 5, 'Иван Петров', 'Yarko', '700 грн', 700, '2025-03-09T18:00:00')`,
		`INSERT INTO chats VALUES (5, 'Анна', '2025-03-01T09:00:00')`,
		`INSERT INTO pending_report_notifications VALUES (2, 5, 99, 1, '2025-03-09T18:05:00')`,
	}
	for _, stmt := range seed {
		if _, err := early.Exec(stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	early.Close()

	s, err := Open(ctx, Config{Path: path, Location: loc}, discardLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	lessons := NewLessonRepository(s)
	l, err := lessons.GetByID(ctx, 3)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !l.StartAt.Equal(time.Date(2025, 3, 10, 14, 0, 0, 0, loc)) || !l.End().Equal(time.Date(2025, 3, 10, 15, 0, 0, 0, loc)) {
		t.Fatalf("times = %v - %v", l.StartAt, l.End())
	}
	if l.Status != lesson.StatusStartReminded {
		t.Fatalf("status = %s, want start_reminded", l.Status)
	}

	now := time.Date(2025, 3, 10, 14, 55, 0, 0, loc)
	starts, err := lessons.DueStartReminders(ctx, now)
	if err != nil || len(starts) != 0 {
		t.Fatalf("DueStartReminders = %v, %v; delivered reminders must not repeat", starts, err)
	}
	ends, err := lessons.DueEndReminders(ctx, now)
	if err != nil || len(ends) != 1 || ends[0].LessonID != 3 {
		t.Fatalf("DueEndReminders = %+v, %v", ends, err)
	}
	posts, err := lessons.DuePostLessonActions(ctx, now)
	if err != nil || len(posts) != 1 || posts[0].LessonID != 7 {
		t.Fatalf("DuePostLessonActions = %+v, %v", posts, err)
	}
	starts, err = lessons.DueStartReminders(ctx, time.Date(2025, 3, 11, 9, 30, 0, 0, loc))
	if err != nil || len(starts) != 1 || starts[0].LessonID != 4 {
		t.Fatalf("next day DueStartReminders = %+v, %v", starts, err)
	}

	reports := NewReportRepository(s)
	total, err := reports.TotalPayment(ctx)
	if err != nil || total != 700 {
		t.Fatalf("TotalPayment = %v, %v", total, err)
	}
	n, err := reports.ConsumeLatestPendingNotification(ctx)
	if err != nil || n == nil || n.MessageID != 99 || n.ChatID != 5 {
		t.Fatalf("ConsumeLatestPendingNotification = %+v, %v", n, err)
	}

	chats, err := NewChatRepository(s).ListAll(ctx)
	if err != nil || len(chats) != 1 || chats[0].TeacherName != "Анна" {
		t.Fatalf("chats = %+v, %v", chats, err)
	}

	fresh := createLesson(t, lessons, 5, time.Date(2025, 3, 12, 9, 0, 0, 0, loc), time.Date(2025, 3, 12, 10, 0, 0, 0, loc), now)
	if fresh.ID <= 7 {
		t.Fatalf("new lesson id = %d, want above the copied ids", fresh.ID)
	}

	var kept int
	if err := s.db.Get(&kept, `SELECT COUNT(*) FROM lessons_legacy`); err != nil || kept != 3 {
		t.Fatalf("legacy rows kept = %d, %v", kept, err)
	}

	s.Close()
	s2, err := Open(ctx, Config{Path: path, Location: loc}, discardLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	all, err := NewLessonRepository(s2).ListAll(ctx)
	if err != nil || len(all) != 4 {
		t.Fatalf("lessons after reopen = %d, %v", len(all), err)
	}
}
