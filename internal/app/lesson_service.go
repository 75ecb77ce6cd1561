package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lesson_reminder_bot/internal/domain/chat"
	"lesson_reminder_bot/internal/domain/lesson"
	"lesson_reminder_bot/internal/domain/report"
	domainTelegram "lesson_reminder_bot/internal/domain/telegram"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// Custom application-level errors for lesson management
var (
	ErrStartInPast      = errors.New("lesson start is not in the future")
	ErrEndBeforeStart   = errors.New("lesson end must be after its start")
	ErrIncompleteLesson = errors.New("lesson is missing school or student name")
	ErrLessonClosed     = errors.New("lesson is already reported or confirmed")
)

// recentReportsLimit caps the reports listed in the overview.
const recentReportsLimit = 100

// BookingInput carries the fields collected by the booking dialogue.
type BookingInput struct {
	ChatID      int64  `validate:"required"`
	School      string `validate:"required"`
	StudentName string `validate:"required"`
	StartAt     time.Time
	EndAt       time.Time
}

type LessonService struct {
	lessonRepo  lesson.Repository
	reportRepo  report.Repository
	chatRepo    chat.Repository
	out         *broadcaster
	validate    *validator.Validate
	logger      *logrus.Entry
	now         func() time.Time
	defaultName string
}

func NewLessonService(
	lr lesson.Repository,
	rr report.Repository,
	cr chat.Repository,
	tc domainTelegram.Client,
	logger *logrus.Entry,
	now func() time.Time,
	defaultTeacherName string,
) *LessonService {
	if now == nil {
		now = time.Now
	}
	logger = logger.WithField("service", "lessons")
	return &LessonService{
		lessonRepo:  lr,
		reportRepo:  rr,
		chatRepo:    cr,
		out:         &broadcaster{chats: cr, client: tc, logger: logger},
		validate:    validator.New(),
		logger:      logger,
		now:         now,
		defaultName: defaultTeacherName,
	}
}

func (s *LessonService) checkBooking(in *BookingInput, now time.Time) error {
	in.School = strings.TrimSpace(in.School)
	in.StudentName = strings.TrimSpace(in.StudentName)
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrIncompleteLesson, err)
	}
	if !in.StartAt.After(now) {
		return ErrStartInPast
	}
	if !in.EndAt.After(in.StartAt) {
		return ErrEndBeforeStart
	}
	return nil
}

// Book stores a new lesson and tells the other chats about it.
func (s *LessonService) Book(ctx context.Context, in BookingInput) (*lesson.Lesson, error) {
	now := s.now()
	if err := s.checkBooking(&in, now); err != nil {
		return nil, err
	}

	startRem, endRem := lesson.ReminderInstants(in.StartAt, in.EndAt, now)
	l := &lesson.Lesson{
		ChatID:          in.ChatID,
		School:          in.School,
		StudentName:     in.StudentName,
		StartAt:         in.StartAt,
		StartReminderAt: startRem,
		Status:          lesson.StatusBooked,
		CreatedAt:       now,
	}
	l.EndAt.Time, l.EndAt.Valid = in.EndAt, true
	l.EndReminderAt.Time, l.EndReminderAt.Valid = endRem, true

	if err := s.lessonRepo.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to create lesson: %w", err)
	}
	logCtx := s.logger.WithFields(logrus.Fields{"lesson_id": l.ID, "chat_id": l.ChatID})
	logCtx.WithField("start", l.StartAt.Format(time.RFC3339)).Info("Lesson booked")

	s.out.send(ctx, s.out.others(ctx, in.ChatID), lessonSavedText(l), htmlOptions(), logCtx)
	return l, nil
}

// Edit rewrites a lesson's school, student and schedule. Its lifecycle status
// is kept, so reminders already sent are not repeated.
func (s *LessonService) Edit(ctx context.Context, id int64, in BookingInput) (*lesson.Lesson, error) {
	now := s.now()
	if err := s.checkBooking(&in, now); err != nil {
		return nil, err
	}

	l, err := s.lessonRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	startRem, endRem := lesson.ReminderInstants(in.StartAt, in.EndAt, now)
	l.School = in.School
	l.StudentName = in.StudentName
	l.StartAt = in.StartAt
	l.EndAt.Time, l.EndAt.Valid = in.EndAt, true
	l.StartReminderAt = startRem
	l.EndReminderAt.Time, l.EndReminderAt.Valid = endRem, true

	if err := s.lessonRepo.Update(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to update lesson %d: %w", id, err)
	}
	logCtx := s.logger.WithFields(logrus.Fields{"lesson_id": l.ID, "chat_id": in.ChatID})
	logCtx.Info("Lesson updated")

	s.out.send(ctx, s.out.others(ctx, in.ChatID), lessonUpdatedText(l), htmlOptions(), logCtx)
	return l, nil
}

// Confirm closes a lesson without a report and retracts its open prompts.
func (s *LessonService) Confirm(ctx context.Context, id int64, byChat int64) (*lesson.Lesson, error) {
	l, err := s.lessonRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.IsClosed() {
		return l, ErrLessonClosed
	}

	now := s.now()
	if err := s.lessonRepo.MarkConfirmed(ctx, id, now); err != nil {
		return nil, fmt.Errorf("failed to confirm lesson %d: %w", id, err)
	}
	l.Status = lesson.StatusConfirmed
	l.ClosedAt.Time, l.ClosedAt.Valid = now, true

	logCtx := s.logger.WithFields(logrus.Fields{"lesson_id": id, "chat_id": byChat})
	pending, err := s.reportRepo.ConsumePendingNotificationsForLesson(ctx, id)
	if err != nil {
		logCtx.WithError(err).Error("Failed to close report prompts of confirmed lesson")
	}
	prompts := make([]sentMessage, 0, len(pending))
	for _, n := range pending {
		prompts = append(prompts, sentMessage{ChatID: n.ChatID, MessageID: n.MessageID})
	}
	s.out.retract(ctx, prompts, logCtx)

	logCtx.Info("Lesson confirmed")
	s.out.send(ctx, s.out.others(ctx, byChat), lessonConfirmedText(l), htmlOptions(), logCtx)
	return l, nil
}

// DeleteAll wipes lessons, reports and prompts for every chat.
func (s *LessonService) DeleteAll(ctx context.Context, byChat int64) error {
	if err := s.lessonRepo.DeleteAll(ctx); err != nil {
		return err
	}
	if err := s.reportRepo.DeleteAll(ctx); err != nil {
		return err
	}
	logCtx := s.logger.WithField("chat_id", byChat)
	logCtx.Warn("All lessons and reports deleted")
	s.out.send(ctx, s.out.others(ctx, byChat), allDeletedText, nil, logCtx)
	return nil
}

// Editable returns lessons that are not yet reported or confirmed.
func (s *LessonService) Editable(ctx context.Context) ([]*lesson.Lesson, error) {
	all, err := s.lessonRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*lesson.Lesson, 0, len(all))
	for _, l := range all {
		if !l.IsClosed() {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *LessonService) Get(ctx context.Context, id int64) (*lesson.Lesson, error) {
	return s.lessonRepo.GetByID(ctx, id)
}

// Overview renders every lesson, the recent reports and payment totals.
func (s *LessonService) Overview(ctx context.Context) (string, error) {
	lessons, err := s.lessonRepo.ListAll(ctx)
	if err != nil {
		return "", err
	}
	reports, err := s.reportRepo.ListRecentReports(ctx, recentReportsLimit)
	if err != nil {
		return "", err
	}
	totals, err := s.reportRepo.TotalPaymentBySchool(ctx)
	if err != nil {
		return "", err
	}
	grand, err := s.reportRepo.TotalPayment(ctx)
	if err != nil {
		return "", err
	}
	return overviewText(lessons, reports, totals, grand), nil
}

// RegisterChat records the chat as a notification recipient and returns the
// name used to greet the teacher.
func (s *LessonService) RegisterChat(ctx context.Context, chatID int64, teacherName string) (string, error) {
	name := strings.TrimSpace(teacherName)
	if name == "" {
		name = s.defaultName
	}
	if err := s.chatRepo.Upsert(ctx, chatID, name, s.now()); err != nil {
		return "", fmt.Errorf("failed to register chat: %w", err)
	}
	s.logger.WithField("chat_id", chatID).Debug("Chat registered")
	return name, nil
}

// Texts for confirmations shown to the acting chat.
func LessonSavedText(l *lesson.Lesson) string     { return lessonSavedText(l) }
func LessonUpdatedText(l *lesson.Lesson) string   { return lessonUpdatedText(l) }
func LessonConfirmedText(l *lesson.Lesson) string { return lessonConfirmedText(l) }

const AllDeletedText = allDeletedText
