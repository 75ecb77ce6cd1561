package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"lesson_reminder_bot/internal/domain/lesson"

	"gopkg.in/telebot.v3"
)

// Main menu.
var (
	menu         = &telebot.ReplyMarkup{ResizeKeyboard: true}
	btnBook      = menu.Text("Записать на урок")
	btnReport    = menu.Text("Отчет о уроке")
	btnOverview  = menu.Text("Все записи")
	btnEdit      = menu.Text("Редактировать запись")
	btnDeleteAll = menu.Text("Удалить все записи")
	btnBack      = menu.Text("Назад")
)

// Inline callback endpoints.
var (
	cbSchool    = telebot.Btn{Unique: "school"}
	cbDay       = telebot.Btn{Unique: "day"}
	cbHour      = telebot.Btn{Unique: "hour"}
	cbMinute    = telebot.Btn{Unique: "minute"}
	cbPick      = telebot.Btn{Unique: "pick"}
	cbDeleteAll = telebot.Btn{Unique: "delete_all"}
)

func init() {
	menu.Reply(
		menu.Row(btnBook, btnReport),
		menu.Row(btnOverview, btnEdit),
		menu.Row(btnDeleteAll, btnBack),
	)
}

const (
	pickerDays      = 14
	firstHour       = 7
	lastHour        = 22
	minuteStep      = 15
	maxPickLessons  = 30
	dayPayloadShape = "2006-01-02"
)

var weekdays = [...]string{"Вс", "Пн", "Вт", "Ср", "Чт", "Пт", "Сб"}

func schoolKeyboard() *telebot.ReplyMarkup {
	m := &telebot.ReplyMarkup{}
	btns := make([]telebot.Btn, 0, len(lesson.Schools))
	for _, s := range lesson.Schools {
		btns = append(btns, m.Data(s, cbSchool.Unique, s))
	}
	m.Inline(m.Row(btns...))
	return m
}

// dayKeyboard offers the next pickerDays days starting from today.
func dayKeyboard(today time.Time) *telebot.ReplyMarkup {
	m := &telebot.ReplyMarkup{}
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	btns := make([]telebot.Btn, 0, pickerDays)
	for i := 0; i < pickerDays; i++ {
		d := day.AddDate(0, 0, i)
		label := fmt.Sprintf("%s %s", d.Format("02.01"), weekdays[d.Weekday()])
		btns = append(btns, m.Data(label, cbDay.Unique, d.Format(dayPayloadShape)))
	}
	m.Inline(m.Split(3, btns)...)
	return m
}

func hourKeyboard() *telebot.ReplyMarkup {
	m := &telebot.ReplyMarkup{}
	btns := make([]telebot.Btn, 0, lastHour-firstHour+1)
	for h := firstHour; h <= lastHour; h++ {
		btns = append(btns, m.Data(fmt.Sprintf("%02d", h), cbHour.Unique, strconv.Itoa(h)))
	}
	m.Inline(m.Split(4, btns)...)
	return m
}

func minuteKeyboard() *telebot.ReplyMarkup {
	m := &telebot.ReplyMarkup{}
	btns := make([]telebot.Btn, 0, 60/minuteStep)
	for mm := 0; mm < 60; mm += minuteStep {
		btns = append(btns, m.Data(fmt.Sprintf("%02d", mm), cbMinute.Unique, strconv.Itoa(mm)))
	}
	m.Inline(m.Row(btns...))
	return m
}

func lessonPickKeyboard(lessons []*lesson.Lesson) *telebot.ReplyMarkup {
	m := &telebot.ReplyMarkup{}
	if len(lessons) > maxPickLessons {
		lessons = lessons[:maxPickLessons]
	}
	rows := make([]telebot.Row, 0, len(lessons))
	for _, l := range lessons {
		label := fmt.Sprintf("%s %s | %s | %s", l.StartAt.Format("02.01"), l.StartAt.Format("15:04"), l.School, l.StudentName)
		rows = append(rows, m.Row(m.Data(label, cbPick.Unique, strconv.FormatInt(l.ID, 10))))
	}
	m.Inline(rows...)
	return m
}

func deleteConfirmKeyboard() *telebot.ReplyMarkup {
	m := &telebot.ReplyMarkup{}
	m.Inline(m.Row(
		m.Data("Да, удалить", cbDeleteAll.Unique, "yes"),
		m.Data("Отмена", cbDeleteAll.Unique, "no"),
	))
	return m
}

// parseClock reads "14:30", "14.30" or "14" as a time of day.
func parseClock(raw string) (hour, minute int, ok bool) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ".", ":"))
	parts := strings.Split(raw, ":")
	if len(parts) > 2 || parts[0] == "" {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, false
	}
	if len(parts) == 2 {
		minute, err = strconv.Atoi(parts[1])
		if err != nil || minute < 0 || minute > 59 || len(parts[1]) != 2 {
			return 0, 0, false
		}
	}
	return hour, minute, true
}

// parseDay reads "10.03.2025" or "10.03" (current year) in loc.
func parseDay(raw string, now time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if d, err := time.ParseInLocation("02.01.2006", raw, now.Location()); err == nil {
		return d, true
	}
	if d, err := time.ParseInLocation("02.01", raw, now.Location()); err == nil {
		return time.Date(now.Year(), d.Month(), d.Day(), 0, 0, 0, 0, now.Location()), true
	}
	return time.Time{}, false
}

func atClock(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}
