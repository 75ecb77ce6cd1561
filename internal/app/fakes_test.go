package app

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"lesson_reminder_bot/internal/domain/lesson"
	"lesson_reminder_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

var errTransport = errors.New("telegram unavailable")

type sentRecord struct {
	ChatID    int64
	MessageID int
	Text      string
	Options   *telebot.SendOptions
}

// fakeClient records outgoing traffic. Chats listed in failFor reject sends.
type fakeClient struct {
	mu         sync.Mutex
	nextID     int
	failAll    bool
	failFor    map[int64]bool
	failDelete bool
	sent       []sentRecord
	deleted    []sentMessage
}

func newFakeClient() *fakeClient {
	return &fakeClient{nextID: 100, failFor: map[int64]bool{}}
}

func (f *fakeClient) SendMessage(_ context.Context, chatID int64, text string, options *telebot.SendOptions) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll || f.failFor[chatID] {
		return 0, errTransport
	}
	f.nextID++
	f.sent = append(f.sent, sentRecord{ChatID: chatID, MessageID: f.nextID, Text: text, Options: options})
	return f.nextID, nil
}

func (f *fakeClient) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		return errTransport
	}
	f.deleted = append(f.deleted, sentMessage{ChatID: chatID, MessageID: messageID})
	return nil
}

// sentTo returns messages delivered to chatID whose text starts with prefix.
func (f *fakeClient) sentTo(chatID int64, prefix string) []sentRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentRecord
	for _, s := range f.sent {
		if s.ChatID == chatID && strings.HasPrefix(s.Text, prefix) {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeClient) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
	f.deleted = nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type testEnv struct {
	store   *database.Store
	lessons *database.LessonRepository
	reports *database.ReportRepository
	chats   *database.ChatRepository
	client  *fakeClient
	clock   *clock
	logger  *logrus.Entry

	reminders *ReminderService
	summary   *SummaryService
	reportSvc *ReportService
	lessonSvc *LessonService
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)
	logger := logrus.NewEntry(l)

	store, err := database.Open(context.Background(), database.Config{
		Path:     filepath.Join(t.TempDir(), "bot.sqlite3"),
		Location: time.UTC,
	}, logger)
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	env := &testEnv{
		store:   store,
		lessons: database.NewLessonRepository(store),
		reports: database.NewReportRepository(store),
		chats:   database.NewChatRepository(store),
		client:  newFakeClient(),
		clock:   &clock{now: now},
		logger:  logger,
	}
	env.reminders = NewReminderService(env.lessons, env.reports, env.chats, env.client, logger, env.clock.Now, 0)
	env.summary = NewSummaryService(env.lessons, env.chats, env.client, logger, env.clock.Now, time.UTC, "Анастасия")
	env.reportSvc = NewReportService(env.reports, env.lessons, env.chats, env.client, logger, env.clock.Now)
	env.lessonSvc = NewLessonService(env.lessons, env.reports, env.chats, env.client, logger, env.clock.Now, "Анастасия")
	return env
}

func (e *testEnv) register(t *testing.T, chatID int64, name string) {
	t.Helper()
	if _, err := e.lessonSvc.RegisterChat(context.Background(), chatID, name); err != nil {
		t.Fatalf("RegisterChat: %v", err)
	}
}

func (e *testEnv) book(t *testing.T, chatID int64, start, end time.Time) *lesson.Lesson {
	t.Helper()
	l, err := e.lessonSvc.Book(context.Background(), BookingInput{
		ChatID:      chatID,
		School:      "Yarko",
		StudentName: "Олег",
		StartAt:     start,
		EndAt:       end,
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	return l
}

func (e *testEnv) sweepAt(t *testing.T, at time.Time, times int) {
	t.Helper()
	e.clock.Set(at)
	for i := 0; i < times; i++ {
		if err := e.reminders.Sweep(context.Background()); err != nil {
			t.Fatalf("Sweep at %v: %v", at, err)
		}
	}
}

// failingStarts breaks the start-reminder query only.
type failingStarts struct {
	lesson.Repository
}

func (failingStarts) DueStartReminders(context.Context, time.Time) ([]lesson.StartReminder, error) {
	return nil, errors.New("disk I/O error")
}
