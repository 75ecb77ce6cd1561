package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"lesson_reminder_bot/internal/domain/chat"
	"lesson_reminder_bot/internal/domain/lesson"
	"lesson_reminder_bot/internal/domain/report"
	domainTelegram "lesson_reminder_bot/internal/domain/telegram"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// retractTimeout bounds a single delayed delete of a reminder message.
const retractTimeout = 30 * time.Second

// ReminderService runs the periodic sweep: start reminders, end reminders and
// post-lesson report prompts.
type ReminderService struct {
	lessonRepo lesson.Repository
	reportRepo report.Repository
	out        *broadcaster
	logger     *logrus.Entry
	now        func() time.Time

	messageTTL time.Duration
	// afterFunc schedules delayed retraction and returns its cancel; replaced in tests.
	afterFunc func(d time.Duration, f func()) (stop func() bool)

	mu          sync.Mutex
	retractions map[uint64]pendingRetraction
	nextID      uint64
	closed      bool
	inflight    sync.WaitGroup
}

type pendingRetraction struct {
	sent   []sentMessage
	logCtx *logrus.Entry
	stop   func() bool
}

func NewReminderService(
	lr lesson.Repository,
	rr report.Repository,
	cr chat.Repository,
	tc domainTelegram.Client,
	logger *logrus.Entry,
	now func() time.Time,
	messageTTL time.Duration,
) *ReminderService {
	if now == nil {
		now = time.Now
	}
	logger = logger.WithField("service", "reminders")
	return &ReminderService{
		lessonRepo: lr,
		reportRepo: rr,
		out:        &broadcaster{chats: cr, client: tc, logger: logger},
		logger:     logger,
		now:        now,
		messageTTL: messageTTL,
		afterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		retractions: make(map[uint64]pendingRetraction),
	}
}

// Sweep processes all three categories of due work at the current instant.
// Delivery failures are logged and leave the item due. The returned error only
// reports categories whose due query failed; the others still run.
func (s *ReminderService) Sweep(ctx context.Context) error {
	now := s.now()
	logCtx := s.logger.WithFields(logrus.Fields{
		"sweep_id": uuid.NewString(),
		"now":      now.Format(time.RFC3339),
	})
	logCtx.Debug("Sweep started")

	errStart := s.processStartReminders(ctx, now, logCtx)
	errEnd := s.processEndReminders(ctx, now, logCtx)
	errPost := s.processPostLessonActions(ctx, now, logCtx)

	if err := errors.Join(errStart, errEnd, errPost); err != nil {
		logCtx.WithError(err).Error("Sweep finished with errors")
		return err
	}
	logCtx.Debug("Sweep finished")
	return nil
}

func (s *ReminderService) processStartReminders(ctx context.Context, now time.Time, logCtx *logrus.Entry) error {
	due, err := s.lessonRepo.DueStartReminders(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to query due start reminders: %w", err)
	}
	for _, r := range due {
		itemLog := logCtx.WithFields(logrus.Fields{"lesson_id": r.LessonID, "chat_id": r.ChatID, "kind": "start"})
		sent := s.out.send(ctx, s.out.recipients(ctx, r.ChatID), startReminderText(r), htmlOptions(), itemLog)
		if len(sent) == 0 {
			itemLog.Warn("Start reminder not delivered to any chat, will retry")
			continue
		}
		if err := s.lessonRepo.MarkStartReminded(ctx, r.LessonID, now); err != nil {
			itemLog.WithError(err).Error("Failed to mark start reminder as sent")
			continue
		}
		s.scheduleRetraction(sent, itemLog)
		itemLog.WithField("delivered", len(sent)).Info("Start reminder sent")
	}
	return nil
}

func (s *ReminderService) processEndReminders(ctx context.Context, now time.Time, logCtx *logrus.Entry) error {
	due, err := s.lessonRepo.DueEndReminders(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to query due end reminders: %w", err)
	}
	for _, r := range due {
		itemLog := logCtx.WithFields(logrus.Fields{"lesson_id": r.LessonID, "chat_id": r.ChatID, "kind": "end"})
		sent := s.out.send(ctx, s.out.recipients(ctx, r.ChatID), endReminderText(r), htmlOptions(), itemLog)
		if len(sent) == 0 {
			itemLog.Warn("End reminder not delivered to any chat, will retry")
			continue
		}
		if err := s.lessonRepo.MarkEndReminded(ctx, r.LessonID, now); err != nil {
			itemLog.WithError(err).Error("Failed to mark end reminder as sent")
			continue
		}
		s.scheduleRetraction(sent, itemLog)
		itemLog.WithField("delivered", len(sent)).Info("End reminder sent")
	}
	return nil
}

func (s *ReminderService) processPostLessonActions(ctx context.Context, now time.Time, logCtx *logrus.Entry) error {
	due, err := s.lessonRepo.DuePostLessonActions(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to query due post-lesson actions: %w", err)
	}
	for _, a := range due {
		itemLog := logCtx.WithFields(logrus.Fields{"lesson_id": a.LessonID, "chat_id": a.ChatID, "kind": "report_prompt"})
		opts := htmlOptions()
		opts.ReplyMarkup = reportPromptMarkup(a.LessonID)

		sent := s.out.send(ctx, s.out.recipients(ctx, a.ChatID), reportPromptText(a), opts, itemLog)
		if len(sent) == 0 {
			itemLog.Warn("Report prompt not delivered to any chat, will retry")
			continue
		}
		for _, m := range sent {
			n := &report.PendingNotification{
				ChatID:    m.ChatID,
				MessageID: m.MessageID,
				LessonID:  sql.NullInt64{Int64: a.LessonID, Valid: true},
				CreatedAt: now,
			}
			if err := s.reportRepo.CreatePendingNotification(ctx, n); err != nil {
				itemLog.WithError(err).WithField("recipient", m.ChatID).Error("Failed to record pending report prompt")
			}
		}
		if err := s.lessonRepo.MarkPostNotified(ctx, a.LessonID, now); err != nil {
			itemLog.WithError(err).Error("Failed to mark report prompt as sent")
			continue
		}
		itemLog.WithField("delivered", len(sent)).Info("Report prompt sent")
	}
	return nil
}

// scheduleRetraction deletes reminder messages once they are no longer useful.
func (s *ReminderService) scheduleRetraction(sent []sentMessage, logCtx *logrus.Entry) {
	if s.messageTTL <= 0 || len(sent) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	id := s.nextID
	s.nextID++
	s.inflight.Add(1)
	stop := s.afterFunc(s.messageTTL, func() {
		r, ok := s.takeRetraction(id)
		if !ok {
			return
		}
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), retractTimeout)
		defer cancel()
		s.out.retract(ctx, r.sent, r.logCtx)
	})
	s.retractions[id] = pendingRetraction{sent: sent, logCtx: logCtx, stop: stop}
}

func (s *ReminderService) takeRetraction(id uint64) (pendingRetraction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.retractions[id]
	delete(s.retractions, id)
	return r, ok
}

// Shutdown deletes every reminder still waiting for its retraction timer and
// waits for retractions already in progress. Reminders sent afterwards are
// left in place.
func (s *ReminderService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	pending := s.retractions
	s.retractions = make(map[uint64]pendingRetraction)
	s.mu.Unlock()

	if len(pending) > 0 {
		s.logger.WithField("pending", len(pending)).Info("Retracting reminders before shutdown")
	}
	for _, r := range pending {
		r.stop()
		s.out.retract(ctx, r.sent, r.logCtx)
		s.inflight.Done()
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for reminder retractions: %w", ctx.Err())
	}
}
