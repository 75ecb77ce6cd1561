package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"lesson_reminder_bot/internal/domain/lesson"
	"lesson_reminder_bot/internal/domain/report"
)

func TestBookValidation(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)

	tests := []struct {
		name string
		in   BookingInput
		want error
	}{
		{
			name: "start in the past",
			in:   BookingInput{ChatID: 1, School: "Yarko", StudentName: "Олег", StartAt: now.Add(-time.Minute), EndAt: now.Add(time.Hour)},
			want: ErrStartInPast,
		},
		{
			name: "start equals now",
			in:   BookingInput{ChatID: 1, School: "Yarko", StudentName: "Олег", StartAt: now, EndAt: now.Add(time.Hour)},
			want: ErrStartInPast,
		},
		{
			name: "end equals start",
			in:   BookingInput{ChatID: 1, School: "Yarko", StudentName: "Олег", StartAt: now.Add(time.Hour), EndAt: now.Add(time.Hour)},
			want: ErrEndBeforeStart,
		},
		{
			name: "blank student",
			in:   BookingInput{ChatID: 1, School: "Yarko", StudentName: "   ", StartAt: now.Add(time.Hour), EndAt: now.Add(2 * time.Hour)},
			want: ErrIncompleteLesson,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.lessonSvc.Book(context.Background(), tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	all, err := env.lessons.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("rejected bookings must not be stored, got %d", len(all))
	}
}

func TestBookFloorsReminderInstants(t *testing.T) {
	now := time.Date(2025, 3, 10, 13, 45, 0, 0, time.UTC)
	env := newTestEnv(t, now)

	l := env.book(t, 1, time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC), time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC))
	if !l.StartReminderAt.Equal(now) {
		t.Fatalf("start reminder = %v, want floored to %v", l.StartReminderAt, now)
	}
	if !l.EndReminderAt.Time.Equal(time.Date(2025, 3, 10, 14, 50, 0, 0, time.UTC)) {
		t.Fatalf("end reminder = %v", l.EndReminderAt.Time)
	}
}

func TestEditKeepsStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC))
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	l := env.book(t, 1, start, start.Add(time.Hour))
	env.sweepAt(t, time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC), 1)

	newStart := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	edited, err := env.lessonSvc.Edit(ctx, l.ID, BookingInput{
		ChatID:      1,
		School:      "Shabadoo",
		StudentName: "Лев",
		StartAt:     newStart,
		EndAt:       newStart.Add(90 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if edited.Status != lesson.StatusStartReminded {
		t.Fatalf("status = %s, want %s", edited.Status, lesson.StatusStartReminded)
	}

	got, err := env.lessons.GetByID(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.School != "Shabadoo" || !got.End().Equal(newStart.Add(90*time.Minute)) {
		t.Fatalf("edit not stored: %+v", got)
	}

	if _, err := env.lessonSvc.Edit(ctx, 999, BookingInput{ChatID: 1, School: "Yarko", StudentName: "Олег", StartAt: newStart, EndAt: newStart.Add(time.Hour)}); !errors.Is(err, lesson.ErrNotFound) {
		t.Fatalf("Edit(missing) err = %v, want ErrNotFound", err)
	}
}

func TestConfirmClosesLessonAndPrompts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC))
	env.register(t, 1, "Анна")
	env.register(t, 2, "Ира")
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	l := env.book(t, 1, start, start.Add(time.Hour))
	env.sweepAt(t, time.Date(2025, 3, 10, 11, 5, 0, 0, time.UTC), 1)
	env.client.reset()

	confirmed, err := env.lessonSvc.Confirm(ctx, l.ID, 2)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if confirmed.Status != lesson.StatusConfirmed {
		t.Fatalf("status = %s", confirmed.Status)
	}
	if len(env.client.deleted) != 2 {
		t.Fatalf("want both prompts retracted, got %d", len(env.client.deleted))
	}
	if n := len(env.client.sentTo(1, "Урок подтвержден")); n != 1 {
		t.Fatalf("other chat should hear about the confirmation, got %d", n)
	}

	if _, err := env.lessonSvc.Confirm(ctx, l.ID, 2); !errors.Is(err, ErrLessonClosed) {
		t.Fatalf("second Confirm err = %v, want ErrLessonClosed", err)
	}

	// Confirmed lessons are not editable and are never prompted again.
	editable, err := env.lessonSvc.Editable(ctx)
	if err != nil {
		t.Fatalf("Editable: %v", err)
	}
	if len(editable) != 0 {
		t.Fatalf("confirmed lesson listed as editable")
	}
}

func TestDeleteAllClearsSharedWorkspace(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)
	env.register(t, 1, "Анна")
	env.register(t, 2, "Ира")
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	env.book(t, 2, start, start.Add(time.Hour))
	if err := env.reports.CreateReport(ctx, &report.LessonReport{ChatID: 2, FullName: "Олег", School: "Yarko", Payment: "500 грн", PaymentAmount: 500}); err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	if err := env.reports.CreatePendingNotification(ctx, &report.PendingNotification{ChatID: 2, MessageID: 5, LessonID: sql.NullInt64{}}); err != nil {
		t.Fatalf("CreatePendingNotification: %v", err)
	}
	env.client.reset()

	if err := env.lessonSvc.DeleteAll(ctx, 1); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	lessons, _ := env.lessons.ListAll(ctx)
	total, _ := env.reports.TotalPayment(ctx)
	latest, _ := env.reports.ConsumeLatestPendingNotification(ctx)
	if len(lessons) != 0 || total != 0 || latest != nil {
		t.Fatalf("workspace not cleared: lessons=%d total=%v prompt=%+v", len(lessons), total, latest)
	}
	if n := len(env.client.sentTo(2, AllDeletedText)); n != 1 {
		t.Fatalf("other chat should be told, got %d", n)
	}
}

func TestOverview(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC))
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	env.book(t, 1, day.Add(10*time.Hour), day.Add(11*time.Hour))
	other, err := env.lessonSvc.Book(ctx, BookingInput{ChatID: 1, School: "Art Club", StudentName: "Ева", StartAt: day.Add(9 * time.Hour), EndAt: day.Add(10 * time.Hour)})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if err := env.lessons.MarkConfirmed(ctx, other.ID, day); err != nil {
		t.Fatalf("MarkConfirmed: %v", err)
	}
	if _, err := env.reportSvc.Submit(ctx, ReportInput{ChatID: 1, FullName: "Олег", School: "Yarko", RawPayment: "500"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	text, err := env.lessonSvc.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	yarko := strings.Index(text, "<i>Yarko</i>")
	club := strings.Index(text, "<i>Art Club</i>")
	if yarko < 0 || club < 0 || yarko > club {
		t.Fatalf("known schools must come first:\n%s", text)
	}
	if !strings.Contains(text, "<s>- 09:00 - 10:00 | Ева</s>") {
		t.Fatalf("confirmed lesson not struck through:\n%s", text)
	}
	if !strings.Contains(text, "Общая сумма оплат: 500 грн") {
		t.Fatalf("grand total missing:\n%s", text)
	}
}

func TestRegisterChatFallsBackToDefaultName(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC))
	name, err := env.lessonSvc.RegisterChat(ctx, 5, "")
	if err != nil {
		t.Fatalf("RegisterChat: %v", err)
	}
	if name != "Анастасия" {
		t.Fatalf("name = %q", name)
	}
	chats, err := env.chats.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(chats) != 1 || chats[0].TeacherName != "Анастасия" {
		t.Fatalf("unexpected chats: %+v", chats)
	}
}
