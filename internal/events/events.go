// Package events carries jar notifications from the coordinators to any
// observer (UI, MCP, tests) without coupling them to rendering.
package events

import (
	"sync"
	"time"

	"github.com/hpungsan/stickerjar/internal/sticker"
)

// Kind identifies an event.
type Kind string

const (
	StickerPending   Kind = "sticker_pending"
	StickerUpdated   Kind = "sticker_updated"
	StickerCommitted Kind = "sticker_committed"
	StickerFailed    Kind = "sticker_failed"
	StickerSelected  Kind = "sticker_selected"
	JarArchived      Kind = "jar_archived"
	ArchiveFailed    Kind = "archive_failed"
)

// Event is a single notification. Sticker is a copy and may be partially
// populated.
type Event struct {
	Kind      Kind             `json:"kind"`
	StickerID string           `json:"sticker_id,omitempty"`
	JarID     string           `json:"jar_id,omitempty"`
	Sticker   *sticker.Sticker `json:"sticker,omitempty"`
	Err       error            `json:"-"`
	At        time.Time        `json:"at"`

	// Unpersisted lists archived stickers whose images were still
	// uploading. Their image references in the record stay empty.
	Unpersisted []string `json:"unpersisted,omitempty"`
}

// Publisher accepts events.
type Publisher interface {
	Publish(Event)
}

// Bus fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
	now    func() time.Time
}

// NewBus returns a bus with no subscribers.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event), now: time.Now}
}

// Subscribe returns a channel receiving future events and a function that
// unsubscribes and closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
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

// Publish delivers e to every subscriber that has room.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.At.IsZero() {
		e.At = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
