package telegram

import (
	"sync"
	"time"
)

type flow int

const (
	flowNone flow = iota
	flowBooking
	flowEditing
	flowReport
)

type step int

const (
	stepNone step = iota
	stepSchool
	stepStudent
	stepDay
	stepStartHour
	stepStartMinute
	stepEndHour
	stepEndMinute
	stepPickLesson
	stepReportName
	stepReportSchool
	stepReportPayment
)

// session is the in-progress dialogue of one chat.
type session struct {
	Flow     flow
	Step     step
	LessonID int64 // lesson being edited or reported on, 0 otherwise

	School  string
	Student string
	Day     time.Time
	Hour    int
	Start   time.Time

	ReportName string
}

type sessionStore struct {
	mu     sync.Mutex
	byChat map[int64]session
}

func newSessionStore() *sessionStore {
	return &sessionStore{byChat: make(map[int64]session)}
}

func (s *sessionStore) get(chatID int64) session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byChat[chatID]
}

func (s *sessionStore) put(chatID int64, st session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byChat[chatID] = st
}

func (s *sessionStore) clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byChat, chatID)
}
