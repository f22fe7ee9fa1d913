package conversation

import (
	"strings"
	"sync"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one finalized utterance. Turns are never modified after append.
type Turn struct {
	Seq       int       `json:"seq"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Observer is notified after each mutation, outside the log's lock.
type Observer interface {
	TurnAppended(t Turn)
	StreamingUpdated(text string)
	Reset()
}

// Snapshot is a point-in-time copy of the log for presentation.
type Snapshot struct {
	Turns     []Turn `json:"turns"`
	Streaming string `json:"streaming"`
}

// Log is the ordered record of finalized turns plus the in-flight
// streaming buffer of the assistant turn currently being received.
type Log struct {
	mu        sync.Mutex
	turns     []Turn
	streaming strings.Builder
	nextSeq   int
	observer  Observer
}

func NewLog(observer Observer) *Log {
	return &Log{observer: observer, nextSeq: 1}
}

func (l *Log) AppendUser(text string) Turn {
	return l.append(RoleUser, text)
}

func (l *Log) AppendAssistant(text string) Turn {
	return l.append(RoleAssistant, text)
}

func (l *Log) append(role Role, text string) Turn {
	l.mu.Lock()
	t := l.appendLocked(role, text)
	l.mu.Unlock()

	if l.observer != nil {
		l.observer.TurnAppended(t)
	}
	return t
}

func (l *Log) appendLocked(role Role, text string) Turn {
	t := Turn{
		Seq:       l.nextSeq,
		Role:      role,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	l.nextSeq++
	l.turns = append(l.turns, t)
	return t
}

// UpdateStreaming replaces the streaming buffer content.
func (l *Log) UpdateStreaming(text string) {
	l.mu.Lock()
	l.streaming.Reset()
	l.streaming.WriteString(text)
	l.mu.Unlock()

	if l.observer != nil {
		l.observer.StreamingUpdated(text)
	}
}

// AppendStreaming appends one delta and returns the buffer's new content.
func (l *Log) AppendStreaming(delta string) string {
	l.mu.Lock()
	l.streaming.WriteString(delta)
	text := l.streaming.String()
	l.mu.Unlock()

	if l.observer != nil {
		l.observer.StreamingUpdated(text)
	}
	return text
}

// FlushStreaming finalizes a non-empty streaming buffer as an assistant
// turn and clears it. ok is false when the buffer was empty.
func (l *Log) FlushStreaming() (Turn, bool) {
	l.mu.Lock()
	text := l.streaming.String()
	if text == "" {
		l.mu.Unlock()
		return Turn{}, false
	}
	t := l.appendLocked(RoleAssistant, text)
	l.streaming.Reset()
	l.mu.Unlock()

	if l.observer != nil {
		l.observer.TurnAppended(t)
		l.observer.StreamingUpdated("")
	}
	return t, true
}

func (l *Log) ClearStreaming() {
	l.mu.Lock()
	wasEmpty := l.streaming.Len() == 0
	l.streaming.Reset()
	l.mu.Unlock()

	if !wasEmpty && l.observer != nil {
		l.observer.StreamingUpdated("")
	}
}

// Reset drops all turns and the streaming buffer.
func (l *Log) Reset() {
	l.mu.Lock()
	l.turns = nil
	l.streaming.Reset()
	l.nextSeq = 1
	l.mu.Unlock()

	if l.observer != nil {
		l.observer.Reset()
	}
}

func (l *Log) Streaming() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.streaming.String()
}

func (l *Log) Turns() []Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.turns)
}

func (l *Log) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	turns := make([]Turn, len(l.turns))
	copy(turns, l.turns)
	return Snapshot{Turns: turns, Streaming: l.streaming.String()}
}
