// Package publisher fans status payloads out to observers keyed by channel.
//
// Contract:
//   - Publish never blocks and never fails.
//   - A payload published to a channel with no subscribers is dropped.
//   - A subscriber whose buffer is full misses that payload.
package publisher

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultBuffer = 16

// Message is one published payload.
type Message struct {
	Channel string    `json:"channel"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// Publisher is the producer side consumed by the domain services.
type Publisher interface {
	Publish(channel string, payload any)
}

// Hub is an in-memory channel-keyed fan-out. It owns no goroutines.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[string]chan Message
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[string]chan Message{}}
}

func (h *Hub) Publish(channel string, payload any) {
	msg := Message{Channel: channel, Time: time.Now(), Payload: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[channel] {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribe registers an observer on channel. The returned func removes the
// subscription and closes the channel; calling it twice is safe.
func (h *Hub) Subscribe(channel string, buffer int) (<-chan Message, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan Message, buffer)
	id := uuid.NewString()

	h.mu.Lock()
	if h.subs[channel] == nil {
		h.subs[channel] = map[string]chan Message{}
	}
	h.subs[channel][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[channel], id)
			if len(h.subs[channel]) == 0 {
				delete(h.subs, channel)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports how many observers are attached to channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}

// SessionChannel is the channel key for session lifecycle events.
func SessionChannel(sessionID string) string {
	return "whatsapp:status:" + sessionID
}

// SenderChannel is the channel key for bulk send progress events.
func SenderChannel(numberID string) string {
	return "background-sender:status:" + numberID
}
