package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lesson_reminder_bot/internal/domain/chat"
	"lesson_reminder_bot/internal/domain/lesson"
	domainTelegram "lesson_reminder_bot/internal/domain/telegram"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SummaryService sends the morning digest of today's lessons.
type SummaryService struct {
	lessonRepo  lesson.Repository
	chatRepo    chat.Repository
	client      domainTelegram.Client
	logger      *logrus.Entry
	now         func() time.Time
	loc         *time.Location
	defaultName string
}

func NewSummaryService(
	lr lesson.Repository,
	cr chat.Repository,
	tc domainTelegram.Client,
	logger *logrus.Entry,
	now func() time.Time,
	loc *time.Location,
	defaultTeacherName string,
) *SummaryService {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &SummaryService{
		lessonRepo:  lr,
		chatRepo:    cr,
		client:      tc,
		logger:      logger.WithField("service", "summary"),
		now:         now,
		loc:         loc,
		defaultName: defaultTeacherName,
	}
}

// SendDailySummary sends every registered chat the list of lessons starting today.
// A failed delivery to one chat does not stop the others.
func (s *SummaryService) SendDailySummary(ctx context.Context) error {
	from, to := dayBounds(s.now().In(s.loc))
	logCtx := s.logger.WithFields(logrus.Fields{
		"run_id": uuid.NewString(),
		"day":    from.Format("2006-01-02"),
	})

	lessons, err := s.lessonRepo.ListStartingBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("failed to list today's lessons: %w", err)
	}
	chats, err := s.chatRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list chats for summary: %w", err)
	}
	if len(chats) == 0 {
		logCtx.Info("No registered chats, daily summary skipped")
		return nil
	}

	delivered := 0
	for _, c := range chats {
		name := strings.TrimSpace(c.TeacherName)
		if name == "" {
			name = s.defaultName
		}
		if _, err := s.client.SendMessage(ctx, c.ChatID, summaryText(name, lessons), htmlOptions()); err != nil {
			logCtx.WithError(err).WithField("chat_id", c.ChatID).Warn("Failed to send daily summary")
			continue
		}
		delivered++
	}
	logCtx.WithFields(logrus.Fields{
		"lessons":   len(lessons),
		"chats":     len(chats),
		"delivered": delivered,
	}).Info("Daily summary sent")
	return nil
}
