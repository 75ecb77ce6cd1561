package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"lesson_reminder_bot/internal/app"
	"lesson_reminder_bot/internal/domain/lesson"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func (h *Handlers) registerLessonHandlers(ctx context.Context, b *telebot.Bot) {
	b.Handle(&btnBook, h.onBookStart)
	b.Handle(&btnEdit, h.onEditStart(ctx))
	b.Handle(&cbPick, h.onPick(ctx))
	b.Handle(&cbSchool, h.onSchool(ctx))
	b.Handle(&cbDay, h.onDay)
	b.Handle(&cbHour, h.onHour)
	b.Handle(&cbMinute, h.onMinute(ctx))
}

func (h *Handlers) onBookStart(c telebot.Context) error {
	h.sessions.put(c.Chat().ID, session{Flow: flowBooking, Step: stepSchool})
	return c.Send("Выберите школу или введите название:", schoolKeyboard())
}

func (h *Handlers) onEditStart(ctx context.Context) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		logCtx := h.handlerLogger(c, "edit")
		lessons, err := h.lessons.Editable(ctx)
		if err != nil {
			logCtx.WithError(err).Error("Failed to list editable lessons")
			return c.Send("Не удалось загрузить записи. Попробуйте позже.", menu)
		}
		if len(lessons) == 0 {
			h.sessions.clear(c.Chat().ID)
			return c.Send("Нет записей для редактирования.", menu)
		}
		h.sessions.put(c.Chat().ID, session{Flow: flowEditing, Step: stepPickLesson})
		return c.Send("Выберите запись:", lessonPickKeyboard(lessons))
	}
}

func (h *Handlers) onPick(ctx context.Context) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		logCtx := h.handlerLogger(c, "pick")
		s := h.sessions.get(c.Chat().ID)
		if s.Step != stepPickLesson {
			return h.abort(c, logCtx, "pick outside of edit dialogue")
		}
		id, err := strconv.ParseInt(c.Data(), 10, 64)
		if err != nil {
			return h.abort(c, logCtx, "bad lesson id in callback")
		}
		l, err := h.lessons.Get(ctx, id)
		if err != nil {
			if errors.Is(err, lesson.ErrNotFound) {
				h.sessions.clear(c.Chat().ID)
				_ = c.Respond(&telebot.CallbackResponse{Text: "Запись не найдена"})
				return c.Send("Запись не найдена.", menu)
			}
			logCtx.WithError(err).Error("Failed to load lesson")
			return h.abort(c, logCtx, "lesson lookup failed")
		}
		_ = c.Respond()

		h.sessions.put(c.Chat().ID, session{Flow: flowEditing, Step: stepSchool, LessonID: l.ID})
		return c.Send(fmt.Sprintf("Редактирование: %s, %s %s.\nВыберите школу или введите название:",
			l.StudentName, l.StartAt.Format("02.01.2006"), l.StartAt.Format("15:04")), schoolKeyboard())
	}
}

func (h *Handlers) onSchool(ctx context.Context) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		s := h.sessions.get(c.Chat().ID)
		switch s.Step {
		case stepSchool:
			_ = c.Respond()
			return h.onLessonText(ctx, c, s, c.Data())
		case stepReportSchool:
			_ = c.Respond()
			return h.onReportText(ctx, c, s, c.Data())
		default:
			return h.abort(c, h.handlerLogger(c, "school"), "school chosen outside of a dialogue")
		}
	}
}

func (h *Handlers) onDay(c telebot.Context) error {
	logCtx := h.handlerLogger(c, "day")
	s := h.sessions.get(c.Chat().ID)
	if s.Step != stepDay {
		return h.abort(c, logCtx, "day chosen outside of booking")
	}
	day, err := time.ParseInLocation(dayPayloadShape, c.Data(), h.loc)
	if err != nil {
		return h.abort(c, logCtx, "bad day in callback")
	}
	_ = c.Respond()
	return h.setDay(c, s, day)
}

func (h *Handlers) onHour(c telebot.Context) error {
	logCtx := h.handlerLogger(c, "hour")
	s := h.sessions.get(c.Chat().ID)
	hour, err := strconv.Atoi(c.Data())
	if err != nil {
		return h.abort(c, logCtx, "bad hour in callback")
	}

	switch s.Step {
	case stepStartHour:
		s.Step = stepStartMinute
	case stepEndHour:
		s.Step = stepEndMinute
	default:
		return h.abort(c, logCtx, "hour chosen outside of booking")
	}
	_ = c.Respond()
	s.Hour = hour
	h.sessions.put(c.Chat().ID, s)
	return c.Send(fmt.Sprintf("%02d:?? - выберите минуты:", hour), minuteKeyboard())
}

func (h *Handlers) onMinute(ctx context.Context) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		logCtx := h.handlerLogger(c, "minute")
		s := h.sessions.get(c.Chat().ID)
		minute, err := strconv.Atoi(c.Data())
		if err != nil {
			return h.abort(c, logCtx, "bad minute in callback")
		}

		switch s.Step {
		case stepStartMinute:
			_ = c.Respond()
			return h.setStart(c, logCtx, s, s.Hour, minute)
		case stepEndMinute:
			_ = c.Respond()
			return h.finishBooking(ctx, c, logCtx, s, s.Hour, minute)
		default:
			return h.abort(c, logCtx, "minute chosen outside of booking")
		}
	}
}

// onLessonText handles typed answers, and chosen schools, in the booking and edit dialogues.
func (h *Handlers) onLessonText(ctx context.Context, c telebot.Context, s session, text string) error {
	logCtx := h.handlerLogger(c, "lesson_dialogue")
	if text == "" {
		return c.Send("Пустой ответ. Попробуйте еще раз.")
	}

	switch s.Step {
	case stepSchool:
		s.School = text
		s.Step = stepStudent
		h.sessions.put(c.Chat().ID, s)
		return c.Send(fmt.Sprintf("Школа: %s.\nВведите имя ученика:", text))

	case stepStudent:
		s.Student = text
		s.Step = stepDay
		h.sessions.put(c.Chat().ID, s)
		return c.Send("Выберите дату урока или введите ее (ДД.ММ.ГГГГ):", dayKeyboard(h.now().In(h.loc)))

	case stepDay:
		day, ok := parseDay(text, h.now().In(h.loc))
		if !ok {
			return c.Send("Не понял дату. Пример: 10.03.2025")
		}
		return h.setDay(c, s, day)

	case stepStartHour, stepStartMinute:
		hour, minute, ok := parseClock(text)
		if !ok {
			return c.Send("Не понял время. Пример: 14:30")
		}
		return h.setStart(c, logCtx, s, hour, minute)

	case stepEndHour, stepEndMinute:
		hour, minute, ok := parseClock(text)
		if !ok {
			return c.Send("Не понял время. Пример: 15:30")
		}
		return h.finishBooking(ctx, c, logCtx, s, hour, minute)
	}
	return h.abort(c, logCtx, "unexpected step")
}

func (h *Handlers) setDay(c telebot.Context, s session, day time.Time) error {
	s.Day = day
	s.Step = stepStartHour
	h.sessions.put(c.Chat().ID, s)
	return c.Send(fmt.Sprintf("Дата: %s.\nВыберите час начала или введите время (ЧЧ:ММ):", day.Format("02.01.2006")), hourKeyboard())
}

func (h *Handlers) setStart(c telebot.Context, logCtx *logrus.Entry, s session, hour, minute int) error {
	if s.Day.IsZero() {
		return h.abort(c, logCtx, "no day recorded")
	}
	s.Start = atClock(s.Day, hour, minute)
	s.Step = stepEndHour
	h.sessions.put(c.Chat().ID, s)
	return c.Send(fmt.Sprintf("Начало: %s.\nВыберите час окончания или введите время (ЧЧ:ММ):", s.Start.Format("15:04")), hourKeyboard())
}

func (h *Handlers) finishBooking(ctx context.Context, c telebot.Context, logCtx *logrus.Entry, s session, hour, minute int) error {
	if s.Day.IsZero() || s.Start.IsZero() {
		return h.abort(c, logCtx, "no start time recorded")
	}
	in := app.BookingInput{
		ChatID:      c.Chat().ID,
		School:      s.School,
		StudentName: s.Student,
		StartAt:     s.Start,
		EndAt:       atClock(s.Day, hour, minute),
	}

	var (
		l   *lesson.Lesson
		err error
	)
	if s.Flow == flowEditing {
		l, err = h.lessons.Edit(ctx, s.LessonID, in)
	} else {
		l, err = h.lessons.Book(ctx, in)
	}

	switch {
	case err == nil:
		h.sessions.clear(c.Chat().ID)
		text := app.LessonSavedText(l)
		if s.Flow == flowEditing {
			text = app.LessonUpdatedText(l)
		}
		return c.Send(text, &telebot.SendOptions{ParseMode: telebot.ModeHTML, ReplyMarkup: menu})

	case errors.Is(err, app.ErrEndBeforeStart):
		s.Step = stepEndHour
		h.sessions.put(c.Chat().ID, s)
		return c.Send("Время окончания должно быть позже начала. Выберите час окончания:", hourKeyboard())

	case errors.Is(err, app.ErrStartInPast):
		s.Step = stepDay
		h.sessions.put(c.Chat().ID, s)
		return c.Send("Это время уже прошло. Выберите дату урока:", dayKeyboard(h.now().In(h.loc)))

	case errors.Is(err, app.ErrIncompleteLesson):
		return h.abort(c, logCtx, err.Error())

	case errors.Is(err, lesson.ErrNotFound):
		h.sessions.clear(c.Chat().ID)
		return c.Send("Запись не найдена, возможно, она была удалена.", menu)

	default:
		logCtx.WithError(err).Error("Failed to save lesson")
		h.sessions.clear(c.Chat().ID)
		return c.Send("Не удалось сохранить запись. Попробуйте позже.", menu)
	}
}
