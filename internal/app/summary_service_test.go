package app

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestDailySummary(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC))
	env.register(t, 1, "Анна")
	env.register(t, 2, "")
	env.register(t, 3, "Ира")

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	env.book(t, 1, day.Add(10*time.Hour), day.Add(11*time.Hour))
	env.book(t, 2, day.Add(23*time.Hour), day.Add(24*time.Hour))
	env.book(t, 1, day.Add(24*time.Hour), day.Add(25*time.Hour))
	env.client.reset()
	env.client.failFor[3] = true

	env.clock.Set(day.Add(9 * time.Hour))
	if err := env.summary.SendDailySummary(ctx); err != nil {
		t.Fatalf("SendDailySummary: %v", err)
	}

	got := env.client.sentTo(1, "Доброе утро, Анна.")
	if len(got) != 1 {
		t.Fatalf("chat 1: want one summary, got %d", len(got))
	}
	if !strings.Contains(got[0].Text, "2 урока(ов)") || !strings.Contains(got[0].Text, "- 10:00 - 11:00 | Yarko | Олег") {
		t.Fatalf("unexpected summary:\n%s", got[0].Text)
	}
	if n := len(env.client.sentTo(2, "Доброе утро, Анастасия.")); n != 1 {
		t.Fatalf("chat 2 should be greeted with the default name, got %d", n)
	}
}

func TestDailySummaryWithoutLessons(t *testing.T) {
	env := newTestEnv(t, time.Date(2025, 3, 9, 9, 0, 0, 0, time.UTC))
	env.register(t, 1, "Анна")
	env.client.reset()

	if err := env.summary.SendDailySummary(context.Background()); err != nil {
		t.Fatalf("SendDailySummary: %v", err)
	}
	got := env.client.sentTo(1, "")
	if len(got) != 1 || got[0].Text != "Доброе утро, Анна. На сегодня у вас 0 уроков." {
		t.Fatalf("unexpected summary: %+v", got)
	}
}
