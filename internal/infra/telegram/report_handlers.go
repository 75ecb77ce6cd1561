package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"lesson_reminder_bot/internal/app"
	"lesson_reminder_bot/internal/domain/lesson"
	"lesson_reminder_bot/internal/domain/report"

	"gopkg.in/telebot.v3"
)

const paymentHint = "Неверный формат оплаты. Пример: 500 или 2*350"

func (h *Handlers) registerReportHandlers(ctx context.Context, b *telebot.Bot) {
	b.Handle(&btnReport, h.onReportStart)
	b.Handle(&telebot.Btn{Unique: app.CallbackOpenReport}, h.onOpenReport(ctx))
	b.Handle(&telebot.Btn{Unique: app.CallbackConfirmLesson}, h.onConfirmLesson(ctx))
}

func (h *Handlers) onReportStart(c telebot.Context) error {
	h.sessions.put(c.Chat().ID, session{Flow: flowReport, Step: stepReportName})
	return c.Send("Введите имя и фамилию ученика:")
}

// onOpenReport starts a report tied to the lesson whose prompt was pressed.
func (h *Handlers) onOpenReport(ctx context.Context) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		logCtx := h.handlerLogger(c, app.CallbackOpenReport)
		id, err := strconv.ParseInt(c.Data(), 10, 64)
		if err != nil {
			return h.abort(c, logCtx, "bad lesson id in callback")
		}
		logCtx = logCtx.WithField("lesson_id", id)

		l, err := h.lessons.Get(ctx, id)
		switch {
		case errors.Is(err, lesson.ErrNotFound):
			return c.Respond(&telebot.CallbackResponse{Text: "Урок не найден"})
		case err != nil:
			logCtx.WithError(err).Error("Failed to load lesson for report")
			return c.Respond(&telebot.CallbackResponse{Text: "Произошла ошибка"})
		case l.IsClosed():
			return c.Respond(&telebot.CallbackResponse{Text: "Урок уже закрыт"})
		}
		_ = c.Respond()

		h.sessions.put(c.Chat().ID, session{Flow: flowReport, Step: stepReportName, LessonID: id})
		return c.Send(fmt.Sprintf("Отчет по уроку: %s, %s - %s.\nВведите имя и фамилию ученика:",
			l.StudentName, l.StartAt.Format("15:04"), l.End().Format("15:04")))
	}
}

func (h *Handlers) onConfirmLesson(ctx context.Context) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		logCtx := h.handlerLogger(c, app.CallbackConfirmLesson)
		id, err := strconv.ParseInt(c.Data(), 10, 64)
		if err != nil {
			return h.abort(c, logCtx, "bad lesson id in callback")
		}
		logCtx = logCtx.WithField("lesson_id", id)

		l, err := h.lessons.Confirm(ctx, id, c.Chat().ID)
		switch {
		case errors.Is(err, app.ErrLessonClosed):
			return c.Respond(&telebot.CallbackResponse{Text: "Урок уже закрыт"})
		case errors.Is(err, lesson.ErrNotFound):
			return c.Respond(&telebot.CallbackResponse{Text: "Урок не найден"})
		case err != nil:
			logCtx.WithError(err).Error("Failed to confirm lesson")
			return c.Respond(&telebot.CallbackResponse{Text: "Произошла ошибка"})
		}
		_ = c.Respond(&telebot.CallbackResponse{Text: "Урок подтвержден"})
		return c.Send(app.LessonConfirmedText(l), &telebot.SendOptions{ParseMode: telebot.ModeHTML})
	}
}

// onReportText handles the steps of the report dialogue.
func (h *Handlers) onReportText(ctx context.Context, c telebot.Context, s session, text string) error {
	logCtx := h.handlerLogger(c, "report_dialogue").WithField("lesson_id", s.LessonID)
	if text == "" {
		return c.Send("Пустой ответ. Попробуйте еще раз.")
	}

	switch s.Step {
	case stepReportName:
		s.ReportName = text
		s.Step = stepReportSchool
		h.sessions.put(c.Chat().ID, s)
		return c.Send("Выберите школу или введите название:", schoolKeyboard())

	case stepReportSchool:
		s.School = text
		s.Step = stepReportPayment
		h.sessions.put(c.Chat().ID, s)
		return c.Send("Введите оплату (например 500 или 2*350):")

	case stepReportPayment:
		if s.ReportName == "" || s.School == "" {
			return h.abort(c, logCtx, "report context missing")
		}
		res, err := h.reports.Submit(ctx, app.ReportInput{
			ChatID:     c.Chat().ID,
			FullName:   s.ReportName,
			School:     s.School,
			RawPayment: text,
			LessonID:   s.LessonID,
		})
		switch {
		case errors.Is(err, report.ErrInvalidPayment):
			return c.Send(paymentHint)
		case errors.Is(err, app.ErrIncompleteReport):
			return h.abort(c, logCtx, err.Error())
		case err != nil:
			logCtx.WithError(err).Error("Failed to submit report")
			h.sessions.clear(c.Chat().ID)
			return c.Send("Не удалось сохранить отчет. Попробуйте позже.", menu)
		}
		h.sessions.clear(c.Chat().ID)
		return c.Send(app.ReportText(res), &telebot.SendOptions{ParseMode: telebot.ModeHTML, ReplyMarkup: menu})
	}
	return h.abort(c, logCtx, "unexpected step")
}
