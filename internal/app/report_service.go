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

var ErrIncompleteReport = errors.New("report is missing student name or school")

// ReportInput is a report collected by the dialogue. LessonID is zero when the
// report was not started from a lesson's prompt.
type ReportInput struct {
	ChatID     int64  `validate:"required"`
	FullName   string `validate:"required"`
	School     string `validate:"required"`
	RawPayment string
	LessonID   int64
}

type ReportResult struct {
	Report    *report.LessonReport
	Total     float64
	Retracted int // prompt messages closed by this report
}

type ReportService struct {
	reportRepo report.Repository
	lessonRepo lesson.Repository
	out        *broadcaster
	validate   *validator.Validate
	logger     *logrus.Entry
	now        func() time.Time
}

func NewReportService(
	rr report.Repository,
	lr lesson.Repository,
	cr chat.Repository,
	tc domainTelegram.Client,
	logger *logrus.Entry,
	now func() time.Time,
) *ReportService {
	if now == nil {
		now = time.Now
	}
	logger = logger.WithField("service", "reports")
	return &ReportService{
		reportRepo: rr,
		lessonRepo: lr,
		out:        &broadcaster{chats: cr, client: tc, logger: logger},
		validate:   validator.New(),
		logger:     logger,
		now:        now,
	}
}

// Submit parses the payment, stores the report, closes the matching prompts and
// returns the new running total. A payment that cannot be parsed yields
// report.ErrInvalidPayment and nothing is stored.
func (s *ReportService) Submit(ctx context.Context, in ReportInput) (*ReportResult, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.School = strings.TrimSpace(in.School)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompleteReport, err)
	}

	amount, err := report.ParsePayment(in.RawPayment)
	if err != nil {
		return nil, err
	}

	now := s.now()
	logCtx := s.logger.WithFields(logrus.Fields{"chat_id": in.ChatID, "lesson_id": in.LessonID})

	rep := &report.LessonReport{
		ChatID:        in.ChatID,
		FullName:      in.FullName,
		School:        in.School,
		Payment:       report.FormatAmount(amount),
		PaymentAmount: amount,
		CreatedAt:     now,
	}
	if err := s.reportRepo.CreateReport(ctx, rep); err != nil {
		return nil, fmt.Errorf("failed to save lesson report: %w", err)
	}
	logCtx = logCtx.WithField("report_id", rep.ID)

	consumed, lessonID := s.consumePrompts(ctx, in.LessonID, logCtx)
	s.out.retract(ctx, consumed, logCtx)

	if lessonID != 0 {
		if err := s.lessonRepo.MarkReported(ctx, lessonID, now); err != nil {
			logCtx.WithError(err).Error("Failed to mark lesson as reported")
		}
	}

	total, err := s.reportRepo.TotalPayment(ctx)
	if err != nil {
		return nil, fmt.Errorf("report saved but total is unavailable: %w", err)
	}

	s.out.send(ctx, s.out.others(ctx, in.ChatID), reportSavedText(rep, total), htmlOptions(), logCtx)
	logCtx.WithFields(logrus.Fields{"amount": amount, "total": total}).Info("Lesson report saved")

	return &ReportResult{Report: rep, Total: total, Retracted: len(consumed)}, nil
}

// consumePrompts closes the prompts of the lesson. A report not tied to a
// lesson answers the latest open prompt, and through it every other prompt of
// that prompt's lesson. The returned id is the lesson the report closes, if any.
func (s *ReportService) consumePrompts(ctx context.Context, lessonID int64, logCtx *logrus.Entry) ([]sentMessage, int64) {
	var pending []*report.PendingNotification
	if lessonID == 0 {
		n, err := s.reportRepo.ConsumeLatestPendingNotification(ctx)
		if err != nil {
			logCtx.WithError(err).Error("Failed to close latest report prompt")
			return nil, 0
		}
		if n == nil {
			return nil, 0
		}
		pending = append(pending, n)
		if !n.LessonID.Valid {
			return toSent(pending), 0
		}
		lessonID = n.LessonID.Int64
		logCtx = logCtx.WithField("lesson_id", lessonID)
	}

	ns, err := s.reportRepo.ConsumePendingNotificationsForLesson(ctx, lessonID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to close report prompts of lesson")
		return toSent(pending), lessonID
	}
	return toSent(append(pending, ns...)), lessonID
}

func toSent(pending []*report.PendingNotification) []sentMessage {
	out := make([]sentMessage, 0, len(pending))
	for _, n := range pending {
		out = append(out, sentMessage{ChatID: n.ChatID, MessageID: n.MessageID})
	}
	return out
}

// ReportText renders the confirmation shown to the reporting chat.
func ReportText(res *ReportResult) string {
	return reportSavedText(res.Report, res.Total)
}
