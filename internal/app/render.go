package app

import (
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"lesson_reminder_bot/internal/domain/lesson"
	"lesson_reminder_bot/internal/domain/report"

	"gopkg.in/telebot.v3"
)

// Inline callback identifiers shared with the telegram handlers.
const (
	CallbackOpenReport    = "open_report"
	CallbackConfirmLesson = "confirm_lesson"
)

const (
	dateLayout  = "02.01.2006"
	clockLayout = "15:04"

	// Telegram rejects messages above 4096 characters.
	maxMessageLength = 4000
)

func esc(s string) string {
	return html.EscapeString(s)
}

func startReminderText(r lesson.StartReminder) string {
	return fmt.Sprintf("Напоминание: урок через 30 минут.\n\nШкола: <b>%s</b>\nИмя ученика: %s\nУрок: с %s до %s\nДата: %s",
		esc(r.School), esc(r.StudentName),
		r.StartAt.Format(clockLayout), r.EndAt.Format(clockLayout), r.StartAt.Format(dateLayout))
}

func endReminderText(r lesson.EndReminder) string {
	return fmt.Sprintf("%s, урок подходит к концу. Осталось 10 минут.", esc(r.StudentName))
}

func reportPromptText(a lesson.PostLessonAction) string {
	return fmt.Sprintf("<b>Заполните отчет</b>\nУрок завершен: %s\nШкола: <b>%s</b>\nВремя: %s - %s",
		esc(a.StudentName), esc(a.School), a.StartAt.Format(clockLayout), a.EndAt.Format(clockLayout))
}

func reportPromptMarkup(lessonID int64) *telebot.ReplyMarkup {
	m := &telebot.ReplyMarkup{}
	id := strconv.FormatInt(lessonID, 10)
	m.Inline(m.Row(
		m.Data("Заполнить отчет", CallbackOpenReport, id),
		m.Data("Подтвердить урок", CallbackConfirmLesson, id),
	))
	return m
}

func summaryText(teacherName string, lessons []*lesson.Lesson) string {
	if len(lessons) == 0 {
		return fmt.Sprintf("Доброе утро, %s. На сегодня у вас 0 уроков.", esc(teacherName))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Доброе утро, %s. На сегодня у вас %d урока(ов):\n", esc(teacherName), len(lessons))
	for _, l := range lessons {
		fmt.Fprintf(&b, "\n- %s - %s | %s | %s",
			l.StartAt.Format(clockLayout), l.End().Format(clockLayout), esc(l.School), esc(l.StudentName))
	}
	return b.String()
}

func lessonDetails(l *lesson.Lesson) string {
	return fmt.Sprintf("Школа: <b>%s</b>\nИмя ученика: %s\nДата: %s\nВремя: %s - %s",
		esc(l.School), esc(l.StudentName), l.StartAt.Format(dateLayout),
		l.StartAt.Format(clockLayout), l.End().Format(clockLayout))
}

func lessonSavedText(l *lesson.Lesson) string {
	return "Урок записан:\n" + lessonDetails(l)
}

func lessonUpdatedText(l *lesson.Lesson) string {
	return "Запись обновлена:\n" + lessonDetails(l)
}

func lessonConfirmedText(l *lesson.Lesson) string {
	return fmt.Sprintf("Урок подтвержден: %s (%s), %s %s - %s",
		esc(l.StudentName), esc(l.School), l.StartAt.Format(dateLayout),
		l.StartAt.Format(clockLayout), l.End().Format(clockLayout))
}

func reportSavedText(r *report.LessonReport, total float64) string {
	return fmt.Sprintf("Отчет сохранен:\nИмя Фамилия: %s\nШкола: %s\nОплата: %s\nОбщая сумма оплат: %s",
		esc(r.FullName), esc(r.School), esc(r.Payment), report.FormatAmount(total))
}

const allDeletedText = "Все записи удалены."

// overviewText lists lessons grouped by day then school, followed by recent
// reports and payment totals.
func overviewText(lessons []*lesson.Lesson, reports []*report.LessonReport, totals []report.SchoolTotal, grand float64) string {
	var b strings.Builder

	if len(lessons) == 0 {
		b.WriteString("Записей на уроки нет.\n")
	} else {
		b.WriteString("<b>Записи на уроки</b>\n")
		var days []string
		byDay := map[string][]*lesson.Lesson{}
		for _, l := range lessons {
			day := l.StartAt.Format("2006-01-02")
			if _, ok := byDay[day]; !ok {
				days = append(days, day)
			}
			byDay[day] = append(byDay[day], l)
		}
		sort.Strings(days)

		for _, day := range days {
			dayLessons := byDay[day]
			fmt.Fprintf(&b, "\n<b>%s</b>\n", dayLessons[0].StartAt.Format(dateLayout))

			bySchool := map[string][]*lesson.Lesson{}
			names := make([]string, 0, len(dayLessons))
			for _, l := range dayLessons {
				bySchool[l.School] = append(bySchool[l.School], l)
				names = append(names, l.School)
			}
			for _, school := range lesson.OrderSchools(names) {
				fmt.Fprintf(&b, "<i>%s</i>\n", esc(school))
				for _, l := range bySchool[school] {
					line := fmt.Sprintf("- %s - %s | %s",
						l.StartAt.Format(clockLayout), l.End().Format(clockLayout), esc(l.StudentName))
					if l.IsClosed() {
						line = "<s>" + line + "</s>"
					}
					b.WriteString(line + "\n")
				}
			}
		}
	}

	b.WriteString("\n<b>Отчеты</b>\n")
	if len(reports) == 0 {
		b.WriteString("Отчетов нет.\n")
	}
	for _, r := range reports {
		fmt.Fprintf(&b, "- %s | %s | %s | %s\n",
			r.CreatedAt.Format("02.01 15:04"), esc(r.FullName), esc(r.School), esc(r.Payment))
	}

	if len(totals) > 0 {
		b.WriteString("\n<b>Сумма по школам</b>\n")
		names := make([]string, 0, len(totals))
		bySchool := make(map[string]float64, len(totals))
		for _, t := range totals {
			names = append(names, t.School)
			bySchool[t.School] = t.Total
		}
		for _, school := range lesson.OrderSchools(names) {
			fmt.Fprintf(&b, "%s: %s\n", esc(school), report.FormatAmount(bySchool[school]))
		}
	}
	fmt.Fprintf(&b, "\nОбщая сумма оплат: %s", report.FormatAmount(grand))
	return b.String()
}

// SplitMessage cuts text on line boundaries into chunks Telegram accepts.
func SplitMessage(text string) []string {
	if len(text) <= maxMessageLength {
		return []string{text}
	}
	var (
		chunks []string
		cur    strings.Builder
	)
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > maxMessageLength {
			if cur.Len() > 0 {
				chunks = append(chunks, cur.String())
				cur.Reset()
			}
			cut := maxMessageLength
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if cur.Len()+len(line) > maxMessageLength {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// dayBounds returns [00:00, next 00:00) of the day containing t, in t's location.
func dayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}
