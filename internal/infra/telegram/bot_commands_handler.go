// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lesson_reminder_bot/internal/app"
	"lesson_reminder_bot/internal/domain/lesson"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// LessonManager is the lesson side of the application used by the dialogues.
type LessonManager interface {
	Book(ctx context.Context, in app.BookingInput) (*lesson.Lesson, error)
	Edit(ctx context.Context, id int64, in app.BookingInput) (*lesson.Lesson, error)
	Confirm(ctx context.Context, id int64, byChat int64) (*lesson.Lesson, error)
	DeleteAll(ctx context.Context, byChat int64) error
	Editable(ctx context.Context) ([]*lesson.Lesson, error)
	Get(ctx context.Context, id int64) (*lesson.Lesson, error)
	Overview(ctx context.Context) (string, error)
	RegisterChat(ctx context.Context, chatID int64, teacherName string) (string, error)
}

// ReportSubmitter stores payment reports.
type ReportSubmitter interface {
	Submit(ctx context.Context, in app.ReportInput) (*app.ReportResult, error)
}

// Handlers holds the conversational state and the services behind the bot.
type Handlers struct {
	lessons  LessonManager
	reports  ReportSubmitter
	sessions *sessionStore
	loc      *time.Location
	now      func() time.Time
	logger   *logrus.Entry
}

func NewHandlers(lm LessonManager, rs ReportSubmitter, loc *time.Location, now func() time.Time, baseLogger *logrus.Entry) *Handlers {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &Handlers{
		lessons:  lm,
		reports:  rs,
		sessions: newSessionStore(),
		loc:      loc,
		now:      now,
		logger:   baseLogger.WithField("component", "telegram"),
	}
}

// Register wires every command, menu button and callback into the bot.
func (h *Handlers) Register(ctx context.Context, b *telebot.Bot) {
	b.Use(h.registerChat(ctx))

	b.Handle("/start", h.onStart(ctx))
	b.Handle("/help", h.onHelp)
	b.Handle(&btnBack, h.onBack)
	b.Handle(&btnOverview, h.onOverview(ctx))
	b.Handle(&btnDeleteAll, h.onDeleteAllAsk)
	b.Handle(&cbDeleteAll, h.onDeleteAll(ctx))

	h.registerLessonHandlers(ctx, b)
	h.registerReportHandlers(ctx, b)

	b.Handle(telebot.OnText, h.onText(ctx))
}

func (h *Handlers) handlerLogger(c telebot.Context, handler string) *logrus.Entry {
	fields := logrus.Fields{"handler": handler}
	if c.Chat() != nil {
		fields["chat_id"] = c.Chat().ID
	}
	if c.Sender() != nil {
		fields["sender_id"] = c.Sender().ID
	}
	return h.logger.WithFields(fields)
}

func (h *Handlers) onStart(ctx context.Context) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		logCtx := h.handlerLogger(c, "/start")
		logCtx.Info("Processing /start command")

		h.sessions.clear(c.Chat().ID)
		firstName := ""
		if c.Sender() != nil {
			firstName = c.Sender().FirstName
		}
		name, err := h.lessons.RegisterChat(ctx, c.Chat().ID, firstName)
		if err != nil {
			logCtx.WithError(err).Error("Failed to register chat")
			return c.Send("Произошла ошибка при регистрации. Пожалуйста, попробуйте позже.")
		}
		return c.Send(fmt.Sprintf("Привет, %s! Я веду записи на уроки, напоминаю о начале и конце урока и собираю отчеты об оплате.", name), menu)
	}
}

func (h *Handlers) onHelp(c telebot.Context) error {
	h.handlerLogger(c, "/help").Info("Processing /help command")

	var helpText strings.Builder
	helpText.WriteString("Что я умею:\n\n")
	helpText.WriteString("«Записать на урок» - выбрать школу, ученика, дату и время.\n")
	helpText.WriteString("«Отчет о уроке» - записать оплату за урок.\n")
	helpText.WriteString("«Все записи» - уроки, отчеты и суммы оплат.\n")
	helpText.WriteString("«Редактировать запись» - изменить незакрытый урок.\n")
	helpText.WriteString("«Удалить все записи» - очистить уроки и отчеты.\n\n")
	helpText.WriteString("За 30 минут до урока и за 10 минут до конца я пришлю напоминание, а через 5 минут после урока попрошу заполнить отчет.\n\n")
	helpText.WriteString("/start - регистрация чата для уведомлений\n/help - это сообщение")
	return c.Send(helpText.String(), menu)
}

func (h *Handlers) onBack(c telebot.Context) error {
	h.sessions.clear(c.Chat().ID)
	return c.Send("Главное меню.", menu)
}

func (h *Handlers) onOverview(ctx context.Context) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		logCtx := h.handlerLogger(c, "overview")
		h.sessions.clear(c.Chat().ID)

		text, err := h.lessons.Overview(ctx)
		if err != nil {
			logCtx.WithError(err).Error("Failed to build overview")
			return c.Send("Не удалось загрузить записи. Попробуйте позже.", menu)
		}
		for _, chunk := range app.SplitMessage(text) {
			if err := c.Send(chunk, &telebot.SendOptions{ParseMode: telebot.ModeHTML, ReplyMarkup: menu}); err != nil {
				return err
			}
		}
		return nil
	}
}

func (h *Handlers) onDeleteAllAsk(c telebot.Context) error {
	h.sessions.clear(c.Chat().ID)
	return c.Send("Удалить все записи и отчеты? Это действие нельзя отменить.", deleteConfirmKeyboard())
}

func (h *Handlers) onDeleteAll(ctx context.Context) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		logCtx := h.handlerLogger(c, "delete_all")
		if c.Data() != "yes" {
			_ = c.Respond(&telebot.CallbackResponse{Text: "Отменено"})
			return c.Send("Удаление отменено.", menu)
		}

		if err := h.lessons.DeleteAll(ctx, c.Chat().ID); err != nil {
			logCtx.WithError(err).Error("Failed to delete all records")
			_ = c.Respond(&telebot.CallbackResponse{Text: "Ошибка"})
			return c.Send("Не удалось удалить записи. Попробуйте позже.", menu)
		}
		_ = c.Respond()
		return c.Send(app.AllDeletedText, menu)
	}
}

// onText routes free text to the step the chat's dialogue is waiting on.
func (h *Handlers) onText(ctx context.Context) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		s := h.sessions.get(c.Chat().ID)
		text := strings.TrimSpace(c.Text())

		switch s.Step {
		case stepSchool, stepStudent, stepDay, stepStartHour, stepStartMinute, stepEndHour, stepEndMinute:
			return h.onLessonText(ctx, c, s, text)
		case stepReportName, stepReportSchool, stepReportPayment:
			return h.onReportText(ctx, c, s, text)
		case stepPickLesson:
			return c.Send("Выберите запись кнопкой выше или нажмите «Назад».")
		default:
			return c.Send("Выберите действие в меню.", menu)
		}
	}
}

// abort drops a dialogue whose context went missing and returns to the menu.
func (h *Handlers) abort(c telebot.Context, logCtx *logrus.Entry, reason string) error {
	logCtx.WithField("reason", reason).Warn("Dialogue aborted")
	h.sessions.clear(c.Chat().ID)
	if c.Callback() != nil {
		_ = c.Respond()
	}
	return c.Send("Что-то пошло не так, данные диалога потеряны. Начните заново.", menu)
}
