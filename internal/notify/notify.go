// Package notify is the toast channel: short user-facing messages produced by
// the cart layer and drained by the UI.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type Notifier interface {
	Notify(level Level, message string)
}

// Queue keeps the newest notices up to a fixed capacity.
type Queue struct {
	mu      sync.Mutex
	notices []Notice
	limit   int
	log     *slog.Logger
}

func NewQueue(limit int, log *slog.Logger) *Queue {
	if limit <= 0 {
		limit = 50
	}
	return &Queue{limit: limit, log: log}
}

func (q *Queue) Notify(level Level, message string) {
	if q.log != nil {
		q.log.Debug("notice", "level", string(level), "message", message)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.notices = append(q.notices, Notice{Level: level, Message: message, At: time.Now()})
	if over := len(q.notices) - q.limit; over > 0 {
		q.notices = append([]Notice(nil), q.notices[over:]...)
	}
}

// Drain returns pending notices oldest first and empties the queue.
func (q *Queue) Drain() []Notice {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.notices
	q.notices = nil
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.notices)
}
