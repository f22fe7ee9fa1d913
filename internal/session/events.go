package session

import (
	"sync"
	"time"

	"github.com/omochi-ai/voicechat/internal/conversation"
)

type EventType string

const (
	EventState     EventType = "state"
	EventStreaming EventType = "streaming"
	EventTurn      EventType = "turn"
	EventReset     EventType = "reset"
	EventSpeaking  EventType = "speaking"
	EventMuted     EventType = "muted"
	EventStatus    EventType = "status"
)

// Event is a presentation update. Subscribers mirror state from events but
// never feed them back into control flow.
type Event struct {
	Type      EventType          `json:"type"`
	At        time.Time          `json:"at"`
	State     State              `json:"state,omitempty"`
	Reason    StopReason         `json:"reason,omitempty"`
	Text      string             `json:"text,omitempty"`
	Turn      *conversation.Turn `json:"turn,omitempty"`
	Value     *bool              `json:"value,omitempty"`
	SessionID string             `json:"session_id,omitempty"`
}

type eventBus struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan Event
	onDrop func()
}

func newEventBus(onDrop func()) *eventBus {
	return &eventBus{subs: make(map[int]chan Event), onDrop: onDrop}
}

func (b *eventBus) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// publish never blocks; a full subscriber misses the event.
func (b *eventBus) publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			if b.onDrop != nil {
				b.onDrop()
			}
		}
	}
}

// logObserver mirrors conversation log mutations onto the bus.
type logObserver struct {
	bus *eventBus
}

func (o logObserver) TurnAppended(t conversation.Turn) {
	o.bus.publish(Event{Type: EventTurn, Turn: &t})
}

func (o logObserver) StreamingUpdated(text string) {
	o.bus.publish(Event{Type: EventStreaming, Text: text})
}

func (o logObserver) Reset() {
	o.bus.publish(Event{Type: EventReset})
}

func flag(v bool) *bool { return &v }
